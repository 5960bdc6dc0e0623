package indicator

// MovingAverage returns the simple moving average of every full window:
// out[i] = mean(series[i .. i+window-1]), len(out) = len(series)-window+1.
func MovingAverage(series []float64, window int) ([]float64, error) {
	if err := checkWindow("sma", window); err != nil {
		return nil, err
	}
	if len(series) < window {
		return nil, insufficient("sma", len(series), window)
	}

	out := make([]float64, len(series)-window+1)
	w := float64(window)
	for i := range out {
		sum := 0.0
		for _, p := range series[i : i+window] {
			sum += p
		}
		out[i] = sum / w
	}
	return out, nil
}

// LastMovingAverage returns only the latest SMA value.
func LastMovingAverage(series []float64, window int) (float64, error) {
	ma, err := MovingAverage(series, window)
	if err != nil {
		return 0, err
	}
	return ma[len(ma)-1], nil
}
