// Package analysis estimates support/resistance levels and entry/exit
// points from price series and raw token records.
package analysis

import (
	"errors"
	"fmt"
	"time"

	"tokenwatch/internal/indicator"
	"tokenwatch/internal/model"

	"go.uber.org/zap"
)

// DefaultOffset places the entry 5% above support and the exit 5% below
// resistance.
const DefaultOffset = 0.05

// MinPoints is the fewest prices AnalyzeTokenData will work with.
const MinPoints = 2

// FindSupportResistance returns the minimum (support) and maximum
// (resistance) of series. Entry and exit points are left zero; Levels
// fills them in.
func FindSupportResistance(series model.PriceSeries) (model.SupportResistance, error) {
	if len(series) == 0 {
		return model.SupportResistance{}, fmt.Errorf("support/resistance: empty series: %w", indicator.ErrInsufficientData)
	}
	sr := model.SupportResistance{Support: series[0], Resistance: series[0]}
	for _, p := range series[1:] {
		if p < sr.Support {
			sr.Support = p
		}
		if p > sr.Resistance {
			sr.Resistance = p
		}
	}
	return sr, nil
}

// Levels computes support/resistance and the entry/exit points
// support*(1+offset) and resistance*(1-offset).
func Levels(series model.PriceSeries, offset float64) (model.SupportResistance, error) {
	sr, err := FindSupportResistance(series)
	if err != nil {
		return model.SupportResistance{}, err
	}
	sr.EntryPoint = sr.Support * (1 + offset)
	sr.ExitPoint = sr.Resistance * (1 - offset)
	return sr, nil
}

// Estimator analyses raw token records.
type Estimator struct {
	offset float64
	log    *zap.Logger
	now    func() time.Time
}

// NewEstimator creates an Estimator. A nil logger disables logging.
func NewEstimator(offset float64, log *zap.Logger) (*Estimator, error) {
	if offset < 0 || offset >= 1 {
		return nil, fmt.Errorf("analysis: offset %v outside [0,1)", offset)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{offset: offset, log: log, now: time.Now}, nil
}

// Offset returns the configured entry/exit offset.
func (e *Estimator) Offset() float64 { return e.offset }

// AnalyzeTokenData extracts prices from records and computes levels.
// Fewer than MinPoints prices yields a nil result and an error wrapping
// indicator.ErrInsufficientData; the condition is logged as a warning.
func (e *Estimator) AnalyzeTokenData(records []model.RawRecord) (*model.AnalysisResult, error) {
	prices, skipped := ExtractPrices(records)
	if skipped > 0 {
		e.log.Warn("records without token amount skipped", zap.Int("skipped", skipped), zap.Int("records", len(records)))
	}
	if len(prices) < MinPoints {
		e.log.Warn("not enough data to perform analysis", zap.Int("points", len(prices)))
		return nil, fmt.Errorf("analysis: have %d points, need %d: %w", len(prices), MinPoints, indicator.ErrInsufficientData)
	}

	sr, err := Levels(prices, e.offset)
	if err != nil {
		return nil, err
	}
	e.log.Info("analysis complete",
		zap.Float64("entry_point", sr.EntryPoint),
		zap.Float64("exit_point", sr.ExitPoint))

	return &model.AnalysisResult{
		SupportResistance: sr,
		Points:            len(prices),
		AnalysedAt:        e.now().UTC(),
	}, nil
}

// HistoricalSignal compares the latest price with the latest SMA(window):
// entry when above, exit when below.
func HistoricalSignal(series model.PriceSeries, window int) (model.HistoricalSignal, error) {
	sma, err := indicator.LastMovingAverage(series, window)
	if err != nil {
		return model.HistoricalSignal{}, fmt.Errorf("historical: %w", err)
	}
	last := series.Last()
	return model.HistoricalSignal{
		Price:       last,
		SMA:         sma,
		EntrySignal: last > sma,
		ExitSignal:  last < sma,
	}, nil
}

// IsInsufficient reports whether err stems from a too-short series.
func IsInsufficient(err error) bool {
	return errors.Is(err, indicator.ErrInsufficientData)
}
