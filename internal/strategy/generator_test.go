package strategy

import (
	"testing"

	"tokenwatch/internal/indicator"
	"tokenwatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func series(n int, f func(i int) float64) model.PriceSeries {
	out := make(model.PriceSeries, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func newGenerator(t *testing.T, obs ...Observer) *Generator {
	t.Helper()
	g, err := NewGenerator(DefaultConfig(), obs...)
	require.NoError(t, err)
	return g
}

func TestAnalyze_IncreasingSeries(t *testing.T) {
	g := newGenerator(t)
	// Quadratic growth: the MACD line keeps widening, so it sits above its
	// own trailing average.
	s := series(40, func(i int) float64 { return float64(i * i) })

	got, err := g.Analyze(s)
	require.NoError(t, err)
	assert.True(t, got.SMAEntry)
	assert.False(t, got.RSIEntry, "rsi is 100 with no losses")
	assert.Equal(t, 100.0, got.RSI)
	assert.True(t, got.MACDReady)
	assert.True(t, got.MACDEntry)
	assert.Equal(t, s.Last(), got.LastPrice)
}

func TestAnalyze_DecreasingSeries(t *testing.T) {
	g := newGenerator(t)
	s := series(40, func(i int) float64 { return float64(100 - i) })

	got, err := g.Analyze(s)
	require.NoError(t, err)
	assert.False(t, got.SMAEntry)
	assert.True(t, got.RSIEntry)
	assert.Equal(t, 0.0, got.RSI)
}

func TestAnalyze_Idempotent(t *testing.T) {
	g := newGenerator(t)
	s := model.PriceSeries{3, 4, 3.5, 5, 4.2, 6, 5.5, 7, 6.1, 6.8, 7.3, 7.0, 8.2, 7.9, 8.8, 9.1,
		8.7, 9.5, 10, 9.6, 10.4, 11, 10.2, 11.5, 12, 11.1, 12.6, 13, 12.4, 13.2, 14, 13.3, 14.8, 15, 14.1}
	orig := append(model.PriceSeries(nil), s...)

	a, err := g.Analyze(s)
	require.NoError(t, err)
	b, err := g.Analyze(s)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, orig, s)
}

func TestAnalyze_ShortSeries(t *testing.T) {
	g := newGenerator(t)
	_, err := g.Analyze(series(13, func(i int) float64 { return float64(i) }))
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
	assert.Equal(t, 14, g.MinLength())
}

func TestAnalyze_TooShortForMACD(t *testing.T) {
	g := newGenerator(t)
	got, err := g.Analyze(series(20, func(i int) float64 { return float64(i) }))
	require.NoError(t, err)
	assert.True(t, got.SMAEntry)
	assert.False(t, got.MACDReady)
	assert.False(t, got.MACDEntry)
}

func TestAnalyze_NotifiesObservers(t *testing.T) {
	var calls int
	var seen model.SignalSet
	g := newGenerator(t, ObserverFunc(func(_ model.PriceSeries, s model.SignalSet) {
		calls++
		seen = s
	}))

	got, err := g.Analyze(series(30, func(i int) float64 { return float64(i) }))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, got, seen)

	_, err = g.Analyze(series(3, func(i int) float64 { return float64(i) }))
	require.Error(t, err)
	assert.Equal(t, 1, calls, "failed analysis is not observed")
}

func TestLogObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	g := newGenerator(t, LogObserver(zap.New(core)))

	_, err := g.Analyze(series(15, func(i int) float64 { return float64(i) }))
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, true, logs.All()[0].ContextMap()["sma_entry"])
}

func TestNewGenerator_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Indicators.RSIWindow = 0
	_, err := NewGenerator(cfg)
	assert.ErrorIs(t, err, indicator.ErrInvalidWindow)
}
