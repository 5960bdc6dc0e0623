package indicator

import (
	"fmt"

	ta "github.com/thrasher-corp/gct-ta/indicators"
)

// Mode selects how RSI and MACD are computed.
type Mode string

const (
	// ModeSimple uses whole-series RSI and SMA-based MACD.
	ModeSimple Mode = "simple"
	// ModeClassic uses Wilder-smoothed RSI and EMA-based MACD.
	ModeClassic Mode = "classic"
)

// Config holds the indicator windows.
type Config struct {
	SMAWindow  int
	RSIWindow  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	Mode       Mode
}

// DefaultConfig returns SMA 14, RSI 14, MACD 12/26/9 in simple mode.
func DefaultConfig() Config {
	return Config{
		SMAWindow:  14,
		RSIWindow:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		Mode:       ModeSimple,
	}
}

// Calculator evaluates the configured indicators at the latest point of a
// series. It holds no per-series state and is safe for concurrent use.
type Calculator struct {
	cfg Config
}

// NewCalculator validates cfg and returns a Calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeSimple
	}
	if cfg.Mode != ModeSimple && cfg.Mode != ModeClassic {
		return nil, fmt.Errorf("indicator: unknown mode %q", cfg.Mode)
	}
	for _, w := range []int{cfg.SMAWindow, cfg.RSIWindow, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal} {
		if err := checkWindow("indicator", w); err != nil {
			return nil, err
		}
	}
	if cfg.MACDFast >= cfg.MACDSlow {
		return nil, fmt.Errorf("indicator: macd fast %d must be below slow %d: %w", cfg.MACDFast, cfg.MACDSlow, ErrInvalidWindow)
	}
	return &Calculator{cfg: cfg}, nil
}

// Config returns the calculator's configuration.
func (c *Calculator) Config() Config { return c.cfg }

// MinLength is the shortest series for which both SMA and RSI succeed.
// Classic RSI needs one point more than its window.
func (c *Calculator) MinLength() int {
	rsi := c.cfg.RSIWindow
	if c.cfg.Mode == ModeClassic {
		rsi++
	}
	if rsi > c.cfg.SMAWindow {
		return rsi
	}
	return c.cfg.SMAWindow
}

// SMA returns the latest simple moving average.
func (c *Calculator) SMA(series []float64) (float64, error) {
	return LastMovingAverage(series, c.cfg.SMAWindow)
}

// RSI returns the RSI at the latest point.
func (c *Calculator) RSI(series []float64) (float64, error) {
	if c.cfg.Mode != ModeClassic {
		return RelativeStrengthIndex(series, c.cfg.RSIWindow)
	}
	if len(series) <= c.cfg.RSIWindow {
		return 0, insufficient("rsi", len(series), c.cfg.RSIWindow+1)
	}
	out := ta.RSI(series, c.cfg.RSIWindow)
	return out[len(out)-1], nil
}

// MACD returns the latest MACD line and signal values.
func (c *Calculator) MACD(series []float64) (line, signal float64, err error) {
	if c.cfg.Mode != ModeClassic {
		res, err := MACD(series, c.cfg.MACDFast, c.cfg.MACDSlow, c.cfg.MACDSignal)
		if err != nil {
			return 0, 0, err
		}
		return res.LastLine(), res.LastSignal(), nil
	}
	if need := MACDMinLength(c.cfg.MACDSlow, c.cfg.MACDSignal); len(series) < need {
		return 0, 0, insufficient("macd", len(series), need)
	}
	macd, sig, _ := ta.MACD(series, c.cfg.MACDFast, c.cfg.MACDSlow, c.cfg.MACDSignal)
	return macd[len(macd)-1], sig[len(sig)-1], nil
}
