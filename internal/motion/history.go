package motion

import (
	"time"

	"github.com/chakramx/chakram/internal/utils"
)

// Sample is one input reading. It is never modified after being recorded.
type Sample struct {
	X float64
	Y float64
	T time.Time
}

func (s Sample) Position() utils.Vector {
	return utils.Vector{X: s.X, Y: s.Y}
}

// ring is a fixed capacity FIFO; the oldest element is evicted on overflow.
type ring[T any] struct {
	buf  []T
	head int
	size int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	idx := (r.head + r.size) % len(r.buf)
	if r.size == len(r.buf) {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[idx] = v
	r.size++
}

func (r *ring[T]) len() int {
	return r.size
}

// back returns the i-th element counted from the newest (0 is the newest).
func (r *ring[T]) back(i int) (T, bool) {
	var zero T
	if i < 0 || i >= r.size {
		return zero, false
	}
	return r.buf[(r.head+r.size-1-i)%len(r.buf)], true
}

// slice copies the contents from oldest to newest.
func (r *ring[T]) slice() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.size = 0, 0
}
