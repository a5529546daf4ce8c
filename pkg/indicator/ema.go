package indicator

// EMA computes the exponential moving average over the whole of values.
// The average is seeded with values[0] and folds every later value with
// multiplier 2/(period+1). It is not defined until len(values) >= period.
func EMA(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period {
		return 0, false
	}

	k := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema, true
}
