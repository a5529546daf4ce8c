package indicator

// Window is a fixed-capacity rolling buffer that evicts the oldest element on overflow
type Window[T any] struct {
	buf   []T
	start int
	size  int
}

// NewWindow creates a window holding at most capacity elements
func NewWindow[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the window is full
func (w *Window[T]) Push(v T) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = v
		w.size++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of elements held
func (w *Window[T]) Len() int {
	return w.size
}

// Cap returns the window capacity
func (w *Window[T]) Cap() int {
	return len(w.buf)
}

// Values returns the elements oldest first, as a fresh slice
func (w *Window[T]) Values() []T {
	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
