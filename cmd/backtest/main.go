// cmd/backtest replays a contract's price history through the signal
// generator and prints the simulated trades. Runs are journaled to SQLite.
//
// Usage:
//
//	go run ./cmd/backtest run --contract=ADDR --start=2024-01-01 --end=2024-03-01
//	go run ./cmd/backtest run --prices=1,2,3,...
//	go run ./cmd/backtest list --limit=10
//	go run ./cmd/backtest show RUN_ID
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tokenwatch/config"
	"tokenwatch/internal/logger"
	"tokenwatch/internal/model"
	"tokenwatch/internal/source"
	sqlitestore "tokenwatch/internal/store/sqlite"
	"tokenwatch/internal/tracker"

	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v2"
)

const dateLayout = "2006-01-02"

var (
	dbPath     string
	jsonOut    bool
	logLevel   string
	historyURL string
)

func main() {
	app := cli.NewApp()
	app.Name = "backtest"
	app.Usage = "replay token price history through the trading signals"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "db",
			Usage:       "SQLite database for prices and the run journal (default from SQLITE_PATH)",
			Destination: &dbPath,
		},
		&cli.StringFlag{
			Name:        "history-url",
			Usage:       "historical price API base url (default from HISTORICAL_API_URL)",
			Destination: &historyURL,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print results as JSON",
			Destination: &jsonOut,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Value:       "warn",
			Destination: &logLevel,
		},
	}
	app.Commands = []*cli.Command{runCommand, listCommand, showCommand}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "backtest:", err)
		os.Exit(1)
	}
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "simulate trades over a date range or an explicit price list",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "contract", Usage: "token contract address", Value: "manual"},
		&cli.StringFlag{Name: "start", Usage: "first day, YYYY-MM-DD (default: 30 days before end)"},
		&cli.StringFlag{Name: "end", Usage: "last day, YYYY-MM-DD (default: today)"},
		&cli.StringFlag{Name: "prices", Usage: "comma-separated prices; skips the history lookup"},
		&cli.StringFlag{Name: "prices-file", Usage: "file with a JSON array or one price per line"},
	},
	Action: func(c *cli.Context) error {
		tr, closeFn, err := setup()
		if err != nil {
			return err
		}
		defer closeFn()

		series, err := loadSeries(c.String("prices"), c.String("prices-file"))
		if err != nil {
			return err
		}

		var run *model.BacktestRun
		if len(series) > 0 {
			run, err = tr.BacktestSeries(c.Context, c.String("contract"), series)
		} else {
			start, end, perr := dates(c.String("start"), c.String("end"), time.Now())
			if perr != nil {
				return perr
			}
			run, err = tr.Backtest(c.Context, c.String("contract"), start, end)
		}
		if run == nil {
			return err
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning: run not journaled:", err)
		}
		return printRun(run)
	},
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "list journaled runs, newest first",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 20},
	},
	Action: func(c *cli.Context) error {
		tr, closeFn, err := setup()
		if err != nil {
			return err
		}
		defer closeFn()

		runs, err := tr.Runs(c.Context, c.Int("limit"))
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(runs)
		}
		for _, r := range runs {
			fmt.Printf("%s  %-44s  points=%-5d trades=%-4d balance=%s -> %s  %s\n",
				r.ID, r.Contract, r.Points, r.Trades,
				r.InitialBalance.StringFixed(2), r.FinalBalance.StringFixed(2),
				r.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var showCommand = &cli.Command{
	Name:      "show",
	Usage:     "print one journaled run with its trades",
	ArgsUsage: "RUN_ID",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("show needs exactly one run id")
		}
		tr, closeFn, err := setup()
		if err != nil {
			return err
		}
		defer closeFn()

		run, err := tr.Run(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", c.Args().First())
		}
		return printRun(run)
	},
}

// setup builds a tracker backed by the Solana source, the historical API
// and the SQLite store.
func setup() (*tracker.Tracker, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.SQLitePath = dbPath
	}
	if historyURL != "" {
		cfg.HistoricalAPIURL = historyURL
	}

	log, err := logger.Init("backtest", logLevel)
	if err != nil {
		return nil, nil, err
	}

	st, err := sqlitestore.Open(cfg.SQLitePath, log)
	if err != nil {
		return nil, nil, err
	}
	sol, err := source.NewSolana(context.Background(), source.SolanaConfig{URL: cfg.SolanaAPIURL, Mint: cfg.SolanaMint}, nil, nil, log)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	deps := tracker.Deps{Source: sol, Prices: st, Journal: st}
	if cfg.HistoricalAPIURL != "" {
		deps.History = source.NewHistory(cfg.HistoricalAPIURL, 30*time.Second, nil, log)
	}

	tr, err := tracker.New(tracker.FromConfig(cfg), deps, log)
	closeFn := func() {
		sol.Close()
		st.Close()
		log.Sync()
	}
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return tr, closeFn, nil
}

func dates(startS, endS string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	if endS != "" {
		t, err := time.Parse(dateLayout, endS)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad --end: %w", err)
		}
		end = t
	}
	start := end.AddDate(0, 0, -30)
	if startS != "" {
		t, err := time.Parse(dateLayout, startS)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad --start: %w", err)
		}
		start = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, errors.New("--start is after --end")
	}
	return start, end, nil
}

// loadSeries reads prices from the flag value or the file. Neither set
// returns an empty series.
func loadSeries(list, file string) (model.PriceSeries, error) {
	if list != "" {
		return parsePrices(strings.Split(list, ","))
	}
	if file == "" {
		return nil, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var series model.PriceSeries
		if err := sonic.UnmarshalString(trimmed, &series); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		return series, nil
	}
	return parsePrices(strings.Split(trimmed, "\n"))
}

func parsePrices(parts []string) (model.PriceSeries, error) {
	series := make(model.PriceSeries, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q", p)
		}
		series = append(series, v)
	}
	return series, nil
}

func printJSON(v interface{}) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printRun(run *model.BacktestRun) error {
	if jsonOut {
		return printJSON(run)
	}
	for _, ev := range run.Events {
		ts := ""
		if !ev.TS.IsZero() {
			ts = ev.TS.Format(dateLayout)
		}
		fmt.Printf("  #%-4d %-10s %-4s price=%-12.6f balance=%s\n",
			ev.Index, ts, ev.Action, ev.Price, ev.Balance.StringFixed(2))
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Run:             %-18.18s ║\n", run.ID)
	fmt.Printf("║  Points:          %-18d ║\n", run.Points)
	fmt.Printf("║  Trades:          %-18d ║\n", run.Trades)
	fmt.Printf("║  Initial balance: %-18s ║\n", run.InitialBalance.StringFixed(2))
	fmt.Printf("║  Final balance:   %-18s ║\n", run.FinalBalance.StringFixed(2))
	fmt.Printf("║  P/L:             %-18s ║\n", run.FinalBalance.Sub(run.InitialBalance).StringFixed(2))
	fmt.Println("╚══════════════════════════════════════╝")
	return nil
}
