// Package tracker wires data sources, the analysis core and the alert,
// storage and metrics collaborators into the operations exposed by the
// daemon, the CLIs and the HTTP API.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokenwatch/config"
	"tokenwatch/internal/analysis"
	"tokenwatch/internal/backtest"
	"tokenwatch/internal/indicator"
	"tokenwatch/internal/metrics"
	"tokenwatch/internal/model"
	"tokenwatch/internal/notification"
	"tokenwatch/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher broadcasts analysis results (redis.Publisher).
type Publisher interface {
	PublishAnalysis(ctx context.Context, res *model.AnalysisResult) error
}

// Deps are the collaborators. Only Source is required; every other field
// may be nil, which disables the matching feature.
type Deps struct {
	Source    model.DataSource
	History   model.HistorySource
	Prices    model.PriceStore
	Journal   model.BacktestJournal
	Notifier  notification.Notifier
	Publisher Publisher
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
}

// Config holds the analysis parameters.
type Config struct {
	// AlertThreshold is the entry/exit offset used by AnalyzeAndAlert.
	AlertThreshold float64
	// Offset is the entry/exit offset used by Analyze.
	Offset         float64
	Strategy       strategy.Config
	InitialBalance decimal.Decimal
	// Window is the backtest warm-up and the historical SMA window.
	Window int
}

// FromConfig maps application configuration onto a tracker Config.
func FromConfig(c *config.Config) Config {
	s := c.Strategy
	return Config{
		AlertThreshold: c.AlertThreshold,
		Offset:         s.SupportResistanceOffset,
		Strategy: strategy.Config{
			Indicators: indicator.Config{
				SMAWindow:  s.SMAWindow,
				RSIWindow:  s.RSIWindow,
				MACDFast:   s.MACDFast,
				MACDSlow:   s.MACDSlow,
				MACDSignal: s.MACDSignal,
				Mode:       indicator.Mode(s.IndicatorMode),
			},
			RSIOversold: s.RSIOversold,
		},
		InitialBalance: decimal.NewFromFloat(s.InitialBalance),
		Window:         s.SMAWindow,
	}
}

// Tracker runs analyses and backtests for contracts.
type Tracker struct {
	cfg       Config
	deps      Deps
	estimator *analysis.Estimator
	generator *strategy.Generator
	log       *zap.Logger
	now       func() time.Time
}

// New validates cfg and builds a Tracker.
func New(cfg Config, deps Deps, log *zap.Logger) (*Tracker, error) {
	if deps.Source == nil {
		return nil, errors.New("tracker: nil data source")
	}
	if cfg.AlertThreshold < 0 || cfg.AlertThreshold >= 1 {
		return nil, fmt.Errorf("tracker: alert threshold %v outside [0,1)", cfg.AlertThreshold)
	}
	if cfg.Window <= 0 {
		cfg.Window = backtest.DefaultWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	est, err := analysis.NewEstimator(cfg.Offset, log)
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	gen, err := strategy.NewGenerator(cfg.Strategy, strategy.LogObserver(log))
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	return &Tracker{
		cfg:       cfg,
		deps:      deps,
		estimator: est,
		generator: gen,
		log:       log,
		now:       time.Now,
	}, nil
}

func (t *Tracker) countAnalysis(result string) {
	if t.deps.Metrics != nil {
		t.deps.Metrics.Analysis(result)
	}
}

func (t *Tracker) fetchResult(err error) {
	if t.deps.Health != nil {
		t.deps.Health.SetFetchResult(err == nil, t.now())
	}
}
