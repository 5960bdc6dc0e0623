// cmd/analyze runs one-off analyses against a contract.
//
// Usage:
//
//	go run ./cmd/analyze levels ADDR
//	go run ./cmd/analyze signals --start=2024-01-01 ADDR
//	go run ./cmd/analyze alert ADDR [ADDR...]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokenwatch/config"
	"tokenwatch/internal/logger"
	"tokenwatch/internal/notification"
	"tokenwatch/internal/source"
	"tokenwatch/internal/tracker"

	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var logLevel string

func main() {
	app := cli.NewApp()
	app.Name = "analyze"
	app.Usage = "support/resistance and signal analysis for token contracts"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Value:       "info",
			Destination: &logLevel,
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "levels",
			Usage:     "print support, resistance and entry/exit points from live balances",
			ArgsUsage: "ADDR",
			Action:    levels,
		},
		{
			Name:      "signals",
			Usage:     "print SMA/RSI/MACD signals over a historical range",
			ArgsUsage: "ADDR",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "start", Usage: "first day, YYYY-MM-DD (default: 30 days before end)"},
				&cli.StringFlag{Name: "end", Usage: "last day, YYYY-MM-DD (default: today)"},
			},
			Action: signals,
		},
		{
			Name:      "alert",
			Usage:     "analyse contracts once and send the alerts",
			ArgsUsage: "ADDR [ADDR...]",
			Action:    alert,
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "analyze:", err)
		os.Exit(1)
	}
}

type env struct {
	tr    *tracker.Tracker
	log   *zap.Logger
	close func()
}

func setup(withNotifier bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.Init("analyze", logLevel)
	if err != nil {
		return nil, err
	}
	sol, err := source.NewSolana(context.Background(), source.SolanaConfig{
		URL:  cfg.SolanaAPIURL,
		Mint: cfg.SolanaMint,
	}, nil, nil, logger.Component(log, "solana"))
	if err != nil {
		return nil, err
	}
	deps := tracker.Deps{Source: sol}
	if cfg.HistoricalAPIURL != "" {
		deps.History = source.NewHistory(cfg.HistoricalAPIURL, 30*time.Second, nil, logger.Component(log, "history"))
	}
	if withNotifier {
		n, err := notification.New(notification.Options{
			SendAlerts:  cfg.SendAlerts,
			BotToken:    cfg.TelegramBotToken,
			ChatID:      cfg.TelegramChatID,
			WebhookURL:  cfg.WebhookURL,
			LogFallback: true,
		}, log)
		if err != nil {
			sol.Close()
			return nil, err
		}
		deps.Notifier = n
	}
	tr, err := tracker.New(tracker.FromConfig(cfg), deps, log)
	if err != nil {
		sol.Close()
		return nil, err
	}
	return &env{tr: tr, log: log, close: func() {
		sol.Close()
		log.Sync()
	}}, nil
}

func contractArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.New("expected exactly one contract address")
	}
	return c.Args().First(), nil
}

func printJSON(v interface{}) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func levels(c *cli.Context) error {
	contract, err := contractArg(c)
	if err != nil {
		return err
	}
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.close()

	res, err := e.tr.Analyze(c.Context, contract)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func signals(c *cli.Context) error {
	contract, err := contractArg(c)
	if err != nil {
		return err
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if s := c.String("end"); s != "" {
		if end, err = time.Parse(dateLayout, s); err != nil {
			return fmt.Errorf("bad --end: %w", err)
		}
	}
	start := end.AddDate(0, 0, -30)
	if s := c.String("start"); s != "" {
		if start, err = time.Parse(dateLayout, s); err != nil {
			return fmt.Errorf("bad --start: %w", err)
		}
	}

	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.close()

	rep, err := e.tr.Signals(c.Context, contract, start, end)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func alert(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("expected at least one contract address")
	}
	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.close()

	var errs []error
	for _, contract := range c.Args().Slice() {
		if err := e.tr.AnalyzeAndAlert(c.Context, contract); err != nil {
			e.log.Error("analysis failed", zap.String("contract", contract), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
