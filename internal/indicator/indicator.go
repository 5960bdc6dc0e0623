// Package indicator provides technical indicator calculations over a price
// series.
//
// All functions are pure: they never modify their input and allocate their
// results. Windowed functions fail with ErrInsufficientData when the series
// is shorter than the window they need.
package indicator

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a series is too short for the
	// requested calculation.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidWindow is returned for non-positive windows.
	ErrInvalidWindow = errors.New("invalid window")
)

func insufficient(name string, have, need int) error {
	return fmt.Errorf("%s: have %d points, need %d: %w", name, have, need, ErrInsufficientData)
}

func checkWindow(name string, window int) error {
	if window <= 0 {
		return fmt.Errorf("%s: window %d: %w", name, window, ErrInvalidWindow)
	}
	return nil
}

// AlignTrailing truncates a and b to their common trailing length, so that
// a[i] and b[i] refer to the same point in time when both end at the latest
// observation.
func AlignTrailing(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[len(a)-n:], b[len(b)-n:]
}
