package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMA(t *testing.T) {
	_, ok := EMA([]float64{1, 2}, 3)
	assert.False(t, ok, "EMA requires at least period values")

	v, ok := EMA([]float64{1, 2, 3}, 3)
	assert.True(t, ok)
	assert.InDelta(t, 2.25, v, 1e-12)

	// seeded from the first value, not an SMA
	v, ok = EMA([]float64{10, 10, 10, 10, 20}, 4)
	assert.True(t, ok)
	assert.InDelta(t, 14.0, v, 1e-12)
}

func TestRSI(t *testing.T) {
	rising := make([]float64, 15)
	for i := range rising {
		rising[i] = float64(i + 1)
	}

	_, ok := RSI(rising[:14], 14)
	assert.False(t, ok, "RSI requires more than period values")

	v, ok := RSI(rising, 14)
	assert.True(t, ok)
	assert.Equal(t, 100.0, v)

	alternating := make([]float64, 15)
	for i := range alternating {
		alternating[i] = float64(1 + i%2)
	}
	v, ok = RSI(alternating, 14)
	assert.True(t, ok)
	assert.InDelta(t, 50.0, v, 1e-12)

	flat := []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}
	v, ok = RSI(flat, 14)
	assert.True(t, ok)
	assert.Equal(t, 100.0, v, "flat deltas count as gains")
}

func TestRSI_UsesOnlyLastPeriodDeltas(t *testing.T) {
	// a large early drop outside the 14-delta window must not count
	values := []float64{100, 1}
	for i := 0; i < 14; i++ {
		values = append(values, float64(2+i))
	}
	v, ok := RSI(values, 14)
	assert.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestBollinger(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	bands, ok := Bollinger(values, 8, 2)
	assert.True(t, ok)
	assert.InDelta(t, 5.0, bands.Middle, 1e-12)
	assert.InDelta(t, 9.0, bands.Upper, 1e-12)
	assert.InDelta(t, 1.0, bands.Lower, 1e-12)

	_, ok = Bollinger(values, 9, 2)
	assert.False(t, ok)
}

func TestBollinger_UsesLastPeriodValues(t *testing.T) {
	values := []float64{1000, 3, 3, 3}
	bands, ok := Bollinger(values, 3, 2)
	assert.True(t, ok)
	assert.Equal(t, 3.0, bands.Middle)
	assert.Equal(t, 3.0, bands.Upper)
	assert.Equal(t, 3.0, bands.Lower)
}

func TestSMA(t *testing.T) {
	v, ok := SMA([]float64{1, 2, 3, 4}, 2)
	assert.True(t, ok)
	assert.Equal(t, 3.5, v)

	_, ok = SMA(nil, 1)
	assert.False(t, ok)
	assert.False(t, math.IsNaN(v))
}
