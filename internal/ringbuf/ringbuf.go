// Package ringbuf provides a fixed-capacity FIFO ring of float64 samples.
// Pushing onto a full ring overwrites the oldest sample, so the ring always
// holds the most recent Cap() values in arrival order.
//
// A Ring is not safe for concurrent use; callers confine it to one goroutine.
package ringbuf

// Ring is a bounded, FIFO-evicting sequence of samples.
type Ring struct {
	buf  []float64
	head int // index of the oldest sample
	n    int

	evicted uint64
}

// New creates a ring holding at most capacity samples. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v. If the ring was full, the oldest sample is dropped and
// Push reports true.
func (r *Ring) Push(v float64) bool {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return false
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return true
}

// At returns the i-th sample, 0 being the oldest. Panics if i is out of range.
func (r *Ring) At(i int) float64 {
	if i < 0 || i >= r.n {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Tail appends the newest min(k, Len()) samples to dst, oldest first.
func (r *Ring) Tail(dst []float64, k int) []float64 {
	if k > r.n {
		k = r.n
	}
	for i := r.n - k; i < r.n; i++ {
		dst = append(dst, r.buf[(r.head+i)%len(r.buf)])
	}
	return dst
}

// Values returns a copy of all samples, oldest first.
func (r *Ring) Values() []float64 {
	return r.Tail(make([]float64, 0, r.n), r.n)
}

// Len returns the current number of samples.
func (r *Ring) Len() int {
	return r.n
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Evicted returns how many samples have been overwritten.
func (r *Ring) Evicted() uint64 {
	return r.evicted
}
