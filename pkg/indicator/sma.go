package indicator

import "math"

// SMA returns the mean of the last period values
func SMA(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period {
		return 0, false
	}

	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// Bands holds Bollinger band levels
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes bands over the last period values using the population
// standard deviation, k deviations either side of the mean
func Bollinger(values []float64, period int, k float64) (Bands, bool) {
	mean, ok := SMA(values, period)
	if !ok {
		return Bands{}, false
	}

	var variance float64
	for _, v := range values[len(values)-period:] {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))

	return Bands{
		Upper:  mean + k*std,
		Middle: mean,
		Lower:  mean - k*std,
	}, true
}
