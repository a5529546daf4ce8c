package indicator

// RSI computes the relative strength index from the last period deltas of values.
// Flat or zero deltas count as gains. With no losses the index is exactly 100.
func RSI(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) <= period {
		return 0, false
	}

	var gains, losses float64
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta >= 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0, true
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
