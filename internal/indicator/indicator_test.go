package indicator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func linear(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// ────────────────────────────────────────────────────────────
// MovingAverage
// ────────────────────────────────────────────────────────────

func TestMovingAverage_HandComputed(t *testing.T) {
	// Prices: 1, 2, 3, 4, 5 with window 3
	// (1+2+3)/3 = 2, (2+3+4)/3 = 3, (3+4+5)/3 = 4
	got, err := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 3, 4}, got, 1e-12)
}

func TestMovingAverage_Length(t *testing.T) {
	for n := 14; n <= 40; n++ {
		got, err := MovingAverage(linear(n), 14)
		require.NoError(t, err)
		assert.Len(t, got, n-13)
	}
}

func TestMovingAverage_ConstantSeries(t *testing.T) {
	got, err := MovingAverage(constant(20, 7.5), 14)
	require.NoError(t, err)
	for i, v := range got {
		assert.InDelta(t, 7.5, v, 1e-12, "index %d", i)
	}
}

func TestMovingAverage_WindowEqualsLength(t *testing.T) {
	got, err := MovingAverage([]float64{2, 4, 6}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, got)
}

func TestMovingAverage_Errors(t *testing.T) {
	_, err := MovingAverage(linear(5), 14)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = MovingAverage(linear(5), 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = MovingAverage(nil, 1)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMovingAverage_DoesNotMutate(t *testing.T) {
	in := []float64{5, 3, 9, 1, 4}
	orig := append([]float64(nil), in...)
	_, err := MovingAverage(in, 2)
	require.NoError(t, err)
	assert.Equal(t, orig, in)
}

// ────────────────────────────────────────────────────────────
// RelativeStrengthIndex
// ────────────────────────────────────────────────────────────

func TestRSI_HandComputed(t *testing.T) {
	// Diffs: +2, -1, +2, -1, +2
	// gain = 6/5 = 1.2, loss = 2/5 = 0.4, rs = 3
	// rsi = 100 - 100/4 = 75
	got, err := RelativeStrengthIndex([]float64{10, 12, 11, 13, 12, 14}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, got, 1e-9)
}

func TestRSI_Balanced(t *testing.T) {
	got, err := RelativeStrengthIndex([]float64{1, 2, 1, 2, 1}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got, 1e-9)
}

func TestRSI_NoLossesWithGains(t *testing.T) {
	got, err := RelativeStrengthIndex(linear(20), 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestRSI_FlatSeries(t *testing.T) {
	got, err := RelativeStrengthIndex(constant(20, 3), 14)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestRSI_OnlyLosses(t *testing.T) {
	s := linear(20)
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	got, err := RelativeStrengthIndex(s, 14)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestRSI_Bounds(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		s := make([]float64, 14+r.Intn(50))
		p := 100.0
		for i := range s {
			p += r.NormFloat64()
			s[i] = p
		}
		got, err := RelativeStrengthIndex(s, 14)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
	}
}

func TestRSI_Errors(t *testing.T) {
	_, err := RelativeStrengthIndex(linear(13), 14)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = RelativeStrengthIndex([]float64{1}, 1)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = RelativeStrengthIndex(linear(20), -3)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_HandComputed(t *testing.T) {
	// Series: 1, 2, 4, 8, 16 with fast=2, slow=3, signal=2
	// SMA2: 1.5, 3, 6, 12
	// SMA3: 2.3333, 4.6667, 9.3333
	// aligned SMA2: 3, 6, 12
	// line: 0.6667, 1.3333, 2.6667
	// signal: 1.0, 2.0
	res, err := MACD([]float64{1, 2, 4, 8, 16}, 2, 3, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 4.0 / 3, 8.0 / 3}, res.Line, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 2}, res.Signal, 1e-9)
	assert.InDelta(t, 8.0/3, res.LastLine(), 1e-9)
	assert.InDelta(t, 2.0, res.LastSignal(), 1e-9)
}

func TestMACD_LinearSeries(t *testing.T) {
	// On a straight line SMA(n) lags by (n-1)/2, so the line is (26-12)/2 = 7.
	res, err := MACD(linear(60), 12, 26, 9)
	require.NoError(t, err)
	assert.Len(t, res.Line, 60-25)
	assert.Len(t, res.Signal, 60-25-8)
	for _, v := range res.Line {
		assert.InDelta(t, 7.0, v, 1e-9)
	}
	assert.InDelta(t, 7.0, res.LastSignal(), 1e-9)
}

func TestMACD_MinimumLength(t *testing.T) {
	assert.Equal(t, 34, MACDMinLength(26, 9))

	_, err := MACD(linear(33), 12, 26, 9)
	assert.ErrorIs(t, err, ErrInsufficientData)

	res, err := MACD(linear(34), 12, 26, 9)
	require.NoError(t, err)
	assert.Len(t, res.Line, 9)
	assert.Len(t, res.Signal, 1)
}

func TestMACD_InvalidWindows(t *testing.T) {
	_, err := MACD(linear(60), 26, 12, 9)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = MACD(linear(60), 12, 26, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestAlignTrailing(t *testing.T) {
	a, b := AlignTrailing([]float64{1, 2, 3, 4}, []float64{10, 20})
	assert.Equal(t, []float64{3, 4}, a)
	assert.Equal(t, []float64{10, 20}, b)

	a, b = AlignTrailing([]float64{1}, []float64{7, 8, 9})
	assert.Equal(t, []float64{1}, a)
	assert.Equal(t, []float64{9}, b)
}
