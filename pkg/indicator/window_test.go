package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_PushAndEvict(t *testing.T) {
	w := NewWindow[int](3)
	assert.Empty(t, w.Values())

	w.Push(1)
	w.Push(2)
	assert.Equal(t, []int{1, 2}, w.Values())

	w.Push(3)
	w.Push(4)
	w.Push(5)

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 3, w.Cap())
	assert.Equal(t, []int{3, 4, 5}, w.Values())
}

func TestWindow_ValuesIsCopy(t *testing.T) {
	w := NewWindow[float64](2)
	w.Push(1)
	vals := w.Values()
	vals[0] = 42
	assert.Equal(t, []float64{1}, w.Values())
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := NewWindow[int](0)
	w.Push(1)
	w.Push(2)
	assert.Equal(t, []int{2}, w.Values())
}
