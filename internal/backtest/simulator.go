// Package backtest replays a price series through the signal generator and
// simulates trades against a single balance.
//
// For every index i from the warm-up window to len-1, signals are computed
// over the points strictly before i and any trade executes at price[i].
// A buy is taken when sma_entry is set, otherwise a sell when macd_entry is
// set; both require a positive balance and both subtract the price from
// the balance. rsi_entry is computed but not acted on.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"tokenwatch/internal/indicator"
	"tokenwatch/internal/model"
	"tokenwatch/internal/strategy"

	"github.com/shopspring/decimal"
)

// DefaultWindow is the number of warm-up points before the first step.
const DefaultWindow = 14

// DefaultInitialBalance is the starting balance of a run.
var DefaultInitialBalance = decimal.NewFromInt(1000)

// Analyzer produces signals for a series prefix.
type Analyzer interface {
	Analyze(series model.PriceSeries) (model.SignalSet, error)
	MinLength() int
}

// Observer is notified of every trade as it is recorded.
type Observer interface {
	OnTrade(ev model.TradeEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev model.TradeEvent)

func (f ObserverFunc) OnTrade(ev model.TradeEvent) { f(ev) }

// Config configures a Simulator.
type Config struct {
	InitialBalance decimal.Decimal
	Window         int
}

// DefaultConfig returns a 1000 unit balance and a 14 point warm-up.
func DefaultConfig() Config {
	return Config{InitialBalance: DefaultInitialBalance, Window: DefaultWindow}
}

// State is the outcome of a run. It is built by a single Run call and not
// modified afterwards.
type State struct {
	InitialBalance decimal.Decimal    `json:"initial_balance"`
	Balance        decimal.Decimal    `json:"balance"`
	Events         []model.TradeEvent `json:"events"`
	Steps          int                `json:"steps"`
}

// ProfitLoss returns Balance - InitialBalance.
func (s *State) ProfitLoss() decimal.Decimal { return s.Balance.Sub(s.InitialBalance) }

// Count returns the number of events with the given action.
func (s *State) Count(a model.Action) int {
	n := 0
	for _, ev := range s.Events {
		if ev.Action == a {
			n++
		}
	}
	return n
}

// Simulator runs backtests. It keeps no state between runs and may be used
// from several goroutines as long as its observers allow it.
type Simulator struct {
	analyzer  Analyzer
	cfg       Config
	observers []Observer
}

// NewSimulator creates a Simulator driven by analyzer.
func NewSimulator(analyzer Analyzer, cfg Config, observers ...Observer) (*Simulator, error) {
	if analyzer == nil {
		return nil, errors.New("backtest: nil analyzer")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("backtest: window %d: %w", cfg.Window, indicator.ErrInvalidWindow)
	}
	if cfg.InitialBalance.IsNegative() {
		return nil, errors.New("backtest: negative initial balance")
	}
	return &Simulator{analyzer: analyzer, cfg: cfg, observers: observers}, nil
}

// NewDefault builds a Simulator with the stock generator and config.
func NewDefault(observers ...Observer) (*Simulator, error) {
	gen, err := strategy.NewGenerator(strategy.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return NewSimulator(gen, DefaultConfig(), observers...)
}

// Run replays series. A series no longer than the warm-up window produces
// zero steps and zero events.
func (s *Simulator) Run(series model.PriceSeries) (*State, error) {
	return s.run(series, nil)
}

// RunPoints replays timestamped points; events carry the point timestamp.
func (s *Simulator) RunPoints(points []model.PricePoint) (*State, error) {
	ts := make([]time.Time, len(points))
	for i, p := range points {
		ts[i] = p.TS
	}
	return s.run(model.Prices(points), ts)
}

func (s *Simulator) run(series model.PriceSeries, ts []time.Time) (*State, error) {
	st := &State{
		InitialBalance: s.cfg.InitialBalance,
		Balance:        s.cfg.InitialBalance,
		Events:         []model.TradeEvent{},
	}

	start := s.cfg.Window
	if m := s.analyzer.MinLength(); m > start {
		start = m
	}

	for i := start; i < len(series); i++ {
		signals, err := s.analyzer.Analyze(series[:i])
		if err != nil {
			return nil, fmt.Errorf("backtest: step %d: %w", i, err)
		}
		st.Steps++

		var action model.Action
		switch {
		case signals.SMAEntry && st.Balance.IsPositive():
			action = model.ActionBuy
		case signals.MACDEntry && st.Balance.IsPositive():
			action = model.ActionSell
		default:
			continue
		}

		price := series[i]
		st.Balance = st.Balance.Sub(decimal.NewFromFloat(price))
		ev := model.TradeEvent{
			Index:   i,
			Action:  action,
			Price:   price,
			Balance: st.Balance,
		}
		if ts != nil {
			ev.TS = ts[i]
		}
		st.Events = append(st.Events, ev)
		for _, o := range s.observers {
			o.OnTrade(ev)
		}
	}
	return st, nil
}
