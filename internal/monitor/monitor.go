// Package monitor drives the periodic contract analysis loop and the
// real-time change watchers.
package monitor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Analyzer runs one fetch, analyze and alert cycle for a contract.
type Analyzer interface {
	AnalyzeAndAlert(ctx context.Context, contract string) error
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, contract string) error

func (f AnalyzerFunc) AnalyzeAndAlert(ctx context.Context, contract string) error {
	return f(ctx, contract)
}

// Config controls the periodic loop.
type Config struct {
	Contracts []string
	// Interval is the pause between rounds.
	Interval time.Duration
	// ContractDelay spaces out the start of consecutive analyses.
	ContractDelay time.Duration
	// Concurrency bounds in-flight analyses. Values below 1 mean 1.
	Concurrency int
}

// DefaultConfig returns a 5 minute round with 5 seconds between contracts.
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		ContractDelay: 5 * time.Second,
		Concurrency:   1,
	}
}

// Monitor analyses every configured contract once per round.
type Monitor struct {
	cfg     Config
	an      Analyzer
	limiter *rate.Limiter
	log     *zap.Logger

	// OnRound, if set, is called after each completed round.
	OnRound func(round int, took time.Duration)
}

// New creates a Monitor.
func New(cfg Config, an Analyzer, log *zap.Logger) (*Monitor, error) {
	if len(cfg.Contracts) == 0 {
		return nil, errors.New("monitor: no contracts configured")
	}
	if an == nil {
		return nil, errors.New("monitor: nil analyzer")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.ContractDelay > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.ContractDelay), 1)
	}
	return &Monitor{cfg: cfg, an: an, limiter: lim, log: log}, nil
}

// RunRound analyses each contract once. Analyzer failures are logged and do
// not stop the round; only cancellation is returned.
func (m *Monitor) RunRound(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)

	for _, contract := range m.cfg.Contracts {
		if err := m.limiter.Wait(gctx); err != nil {
			g.Wait()
			return ctx.Err()
		}
		contract := contract
		g.Go(func() error {
			if err := m.an.AnalyzeAndAlert(gctx, contract); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				m.log.Error("contract analysis failed", zap.String("contract", contract), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Run repeats RunRound every Interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor started",
		zap.Int("contracts", len(m.cfg.Contracts)),
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("contract_delay", m.cfg.ContractDelay))

	for round := 1; ; round++ {
		start := time.Now()
		if err := m.RunRound(ctx); err != nil {
			m.log.Info("monitor stopped", zap.Int("round", round))
			return nil
		}
		took := time.Since(start)
		m.log.Debug("round complete", zap.Int("round", round), zap.Duration("took", took))
		if m.OnRound != nil {
			m.OnRound(round, took)
		}

		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped", zap.Int("round", round))
			return nil
		case <-time.After(m.cfg.Interval):
		}
	}
}
