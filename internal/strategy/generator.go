// Package strategy turns a price series into entry signals.
//
// The Generator evaluates SMA, RSI and MACD at the latest point of a series
// and reports three independent entry flags. It has no side effects besides
// notifying registered observers.
package strategy

import (
	"errors"
	"fmt"

	"tokenwatch/internal/indicator"
	"tokenwatch/internal/model"

	"go.uber.org/zap"
)

// DefaultRSIOversold is the RSI level below which rsi_entry is raised.
const DefaultRSIOversold = 30.0

// Config configures a Generator.
type Config struct {
	Indicators  indicator.Config
	RSIOversold float64
}

// DefaultConfig returns SMA 14, RSI 14 (oversold 30), MACD 12/26/9.
func DefaultConfig() Config {
	return Config{
		Indicators:  indicator.DefaultConfig(),
		RSIOversold: DefaultRSIOversold,
	}
}

// Observer is notified of every successfully computed SignalSet.
type Observer interface {
	OnSignals(series model.PriceSeries, signals model.SignalSet)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(series model.PriceSeries, signals model.SignalSet)

func (f ObserverFunc) OnSignals(series model.PriceSeries, signals model.SignalSet) {
	f(series, signals)
}

// Generator computes SignalSets. It is stateless apart from its
// configuration and observers.
type Generator struct {
	calc      *indicator.Calculator
	oversold  float64
	observers []Observer
}

// NewGenerator creates a Generator with the given observers.
func NewGenerator(cfg Config, observers ...Observer) (*Generator, error) {
	calc, err := indicator.NewCalculator(cfg.Indicators)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	return &Generator{
		calc:      calc,
		oversold:  cfg.RSIOversold,
		observers: observers,
	}, nil
}

// MinLength is the shortest series Analyze accepts.
func (g *Generator) MinLength() int {
	return g.calc.MinLength()
}

// Analyze evaluates the signals at the last point of series.
//
//	sma_entry:  last price above SMA
//	rsi_entry:  RSI below the oversold level
//	macd_entry: MACD line above its signal line
//
// A series too short for SMA or RSI fails with indicator.ErrInsufficientData.
// A series long enough for those but too short for MACD succeeds with
// MACDReady=false and macd_entry=false.
func (g *Generator) Analyze(series model.PriceSeries) (model.SignalSet, error) {
	sma, err := g.calc.SMA(series)
	if err != nil {
		return model.SignalSet{}, fmt.Errorf("strategy: %w", err)
	}
	rsi, err := g.calc.RSI(series)
	if err != nil {
		return model.SignalSet{}, fmt.Errorf("strategy: %w", err)
	}

	last := series.Last()
	set := model.SignalSet{
		SMAEntry:  last > sma,
		RSIEntry:  rsi < g.oversold,
		LastPrice: last,
		SMA:       sma,
		RSI:       rsi,
	}

	line, sig, err := g.calc.MACD(series)
	switch {
	case err == nil:
		set.MACD, set.MACDSignal, set.MACDReady = line, sig, true
		set.MACDEntry = line > sig
	case errors.Is(err, indicator.ErrInsufficientData):
	default:
		return model.SignalSet{}, fmt.Errorf("strategy: %w", err)
	}

	for _, o := range g.observers {
		o.OnSignals(series, set)
	}
	return set, nil
}

// LogObserver logs every SignalSet at debug level.
func LogObserver(log *zap.Logger) Observer {
	return ObserverFunc(func(series model.PriceSeries, s model.SignalSet) {
		log.Debug("strategy signals",
			zap.Int("points", len(series)),
			zap.Bool("sma_entry", s.SMAEntry),
			zap.Bool("rsi_entry", s.RSIEntry),
			zap.Bool("macd_entry", s.MACDEntry),
			zap.Bool("macd_ready", s.MACDReady),
		)
	})
}
