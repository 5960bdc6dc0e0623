package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokenwatch/internal/analysis"
	"tokenwatch/internal/backtest"
	"tokenwatch/internal/model"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// ErrNoHistory is returned when neither the history source nor the price
// store can supply points for a range.
var ErrNoHistory = errors.New("no historical data")

// SignalReport is the historical analysis of a contract over a range.
type SignalReport struct {
	Contract   string                 `json:"contract"`
	Start      time.Time              `json:"start"`
	End        time.Time              `json:"end"`
	Points     int                    `json:"points"`
	Historical model.HistoricalSignal `json:"historical"`
	Signals    *model.SignalSet       `json:"signals,omitempty"`
}

// LoadHistory returns the contract's points in [start, end]. It prefers the
// history source, stores what it fetched, and falls back to the price
// store when the source fails or is not configured.
func (t *Tracker) LoadHistory(ctx context.Context, contract string, start, end time.Time) ([]model.PricePoint, error) {
	log := t.log.With(zap.String("contract", contract))

	if t.deps.History != nil {
		points, err := t.deps.History.FetchHistory(ctx, contract, start, end)
		if err == nil {
			if t.deps.Prices != nil {
				if err := t.deps.Prices.SavePrices(ctx, contract, points); err != nil {
					log.Warn("persist prices failed", zap.Error(err))
				}
			}
			return points, nil
		}
		if t.deps.Prices == nil {
			return nil, fmt.Errorf("history %s: %w", contract, err)
		}
		log.Warn("history fetch failed, using stored prices", zap.Error(err))
	}

	if t.deps.Prices == nil {
		return nil, ErrNoHistory
	}
	// stored rows are keyed by second; cover the whole end day
	points, err := t.deps.Prices.LoadPrices(ctx, contract, start, end.Add(24*time.Hour-time.Second))
	if err != nil {
		return nil, fmt.Errorf("stored prices %s: %w", contract, err)
	}
	if len(points) == 0 {
		return nil, ErrNoHistory
	}
	return points, nil
}

// Signals computes the latest SMA verdict and the full SignalSet over the
// contract's history. Signals is nil when the series is too short for the
// generator but long enough for the SMA.
func (t *Tracker) Signals(ctx context.Context, contract string, start, end time.Time) (*SignalReport, error) {
	points, err := t.LoadHistory(ctx, contract, start, end)
	if err != nil {
		return nil, err
	}
	series := model.Prices(points)

	hist, err := analysis.HistoricalSignal(series, t.cfg.Window)
	if err != nil {
		t.log.Warn("not enough historical data", zap.String("contract", contract), zap.Int("points", len(series)))
		return nil, err
	}
	rep := &SignalReport{Contract: contract, Start: start, End: end, Points: len(series), Historical: hist}

	if sig, err := t.generator.Analyze(series); err == nil {
		rep.Signals = &sig
	} else if !analysis.IsInsufficient(err) {
		return nil, err
	}
	return rep, nil
}

// Backtest replays the contract's history between start and end and
// journals the run.
func (t *Tracker) Backtest(ctx context.Context, contract string, start, end time.Time) (*model.BacktestRun, error) {
	points, err := t.LoadHistory(ctx, contract, start, end)
	if err != nil {
		return nil, err
	}
	run, err := t.replay(contract, points)
	if err != nil {
		return nil, err
	}
	run.Start, run.End = start, end
	return run, t.save(ctx, run)
}

// BacktestSeries replays an explicit price series and journals the run.
func (t *Tracker) BacktestSeries(ctx context.Context, contract string, series model.PriceSeries) (*model.BacktestRun, error) {
	points := make([]model.PricePoint, len(series))
	for i, p := range series {
		points[i].Price = p
	}
	run, err := t.replay(contract, points)
	if err != nil {
		return nil, err
	}
	return run, t.save(ctx, run)
}

func (t *Tracker) replay(contract string, points []model.PricePoint) (*model.BacktestRun, error) {
	sim, err := backtest.NewSimulator(t.generator, backtest.Config{
		InitialBalance: t.cfg.InitialBalance,
		Window:         t.cfg.Window,
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	st, err := sim.RunPoints(points)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", contract, err)
	}
	if t.deps.Metrics != nil {
		t.deps.Metrics.Backtest(time.Since(started), st.Count(model.ActionBuy), st.Count(model.ActionSell))
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("backtest id: %w", err)
	}
	t.log.Info("backtest complete",
		zap.String("contract", contract),
		zap.String("run_id", id.String()),
		zap.Int("points", len(points)),
		zap.Int("events", len(st.Events)),
		zap.String("final_balance", st.Balance.String()))

	return &model.BacktestRun{
		ID:             id.String(),
		Contract:       contract,
		Points:         len(points),
		InitialBalance: st.InitialBalance,
		FinalBalance:   st.Balance,
		Trades:         len(st.Events),
		Events:         st.Events,
		CreatedAt:      t.now().UTC(),
	}, nil
}

func (t *Tracker) save(ctx context.Context, run *model.BacktestRun) error {
	if t.deps.Journal == nil {
		return nil
	}
	if err := t.deps.Journal.SaveRun(ctx, run); err != nil {
		t.log.Error("journal backtest failed", zap.String("run_id", run.ID), zap.Error(err))
		return err
	}
	return nil
}

// Runs lists journaled backtests, newest first.
func (t *Tracker) Runs(ctx context.Context, limit int) ([]model.BacktestRun, error) {
	if t.deps.Journal == nil {
		return []model.BacktestRun{}, nil
	}
	return t.deps.Journal.ListRuns(ctx, limit)
}

// Run returns one journaled backtest or nil.
func (t *Tracker) Run(ctx context.Context, id string) (*model.BacktestRun, error) {
	if t.deps.Journal == nil {
		return nil, nil
	}
	return t.deps.Journal.GetRun(ctx, id)
}
