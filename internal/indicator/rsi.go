package indicator

// RelativeStrengthIndex returns a single RSI value for the whole series.
//
// Gain and loss are the means of the positive and negative first
// differences over all len-1 differences (zeros included), not a smoothed
// rolling average. The window is validated against the series length but
// does not otherwise enter the calculation.
//
// With no losses the RSI is 100 when there were gains and 0 for a flat
// series.
func RelativeStrengthIndex(series []float64, window int) (float64, error) {
	if err := checkWindow("rsi", window); err != nil {
		return 0, err
	}
	need := window
	if need < 2 {
		need = 2
	}
	if len(series) < need {
		return 0, insufficient("rsi", len(series), need)
	}

	var gain, loss float64
	for i := 1; i < len(series); i++ {
		d := series[i] - series[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	n := float64(len(series) - 1)
	gain /= n
	loss /= n

	if loss == 0 {
		if gain > 0 {
			return 100, nil
		}
		return 0, nil
	}
	rs := gain / loss
	return 100 - 100/(1+rs), nil
}
