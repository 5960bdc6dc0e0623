package indicator

import "fmt"

// MACDResult holds the MACD line and its signal line. Both end at the
// latest observation; Line is at least as long as Signal.
type MACDResult struct {
	Line   []float64
	Signal []float64
}

// LastLine returns the latest MACD line value.
func (r MACDResult) LastLine() float64 { return r.Line[len(r.Line)-1] }

// LastSignal returns the latest signal line value.
func (r MACDResult) LastSignal() float64 { return r.Signal[len(r.Signal)-1] }

// MACDMinLength is the shortest series MACD can be computed on.
func MACDMinLength(slow, signal int) int { return slow + signal - 1 }

// MACD computes the moving average convergence/divergence using simple
// moving averages throughout: line = SMA(fast) - SMA(slow) over their common
// trailing length, signal = SMA(line, signal).
func MACD(series []float64, fast, slow, signal int) (MACDResult, error) {
	for _, w := range []int{fast, slow, signal} {
		if err := checkWindow("macd", w); err != nil {
			return MACDResult{}, err
		}
	}
	if fast >= slow {
		return MACDResult{}, fmt.Errorf("macd: fast %d must be below slow %d: %w", fast, slow, ErrInvalidWindow)
	}
	if need := MACDMinLength(slow, signal); len(series) < need {
		return MACDResult{}, insufficient("macd", len(series), need)
	}

	fastMA, err := MovingAverage(series, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowMA, err := MovingAverage(series, slow)
	if err != nil {
		return MACDResult{}, err
	}

	fastMA, slowMA = AlignTrailing(fastMA, slowMA)
	line := make([]float64, len(slowMA))
	for i := range line {
		line[i] = fastMA[i] - slowMA[i]
	}

	sig, err := MovingAverage(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	return MACDResult{Line: line, Signal: sig}, nil
}
