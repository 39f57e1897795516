// Package history keeps a bounded price window per token.
//
// Windows are created lazily on a token's first sample and live for the life
// of the process. Only the window length is bounded; the number of tokens is
// not. A Store is owned by the single pipeline goroutine and is not safe for
// concurrent use.
package history

import "rsi-engine/internal/ringbuf"

// DefaultMaxHistory is the per-token window capacity.
const DefaultMaxHistory = 200

// Store maps token identifiers to their price windows.
type Store struct {
	capacity int
	windows  map[string]*ringbuf.Ring
}

// New creates a store whose windows hold at most capacity samples.
// A non-positive capacity falls back to DefaultMaxHistory.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultMaxHistory
	}
	return &Store{
		capacity: capacity,
		windows:  make(map[string]*ringbuf.Ring),
	}
}

// Append records price for token, evicting the oldest sample when the window
// is full. Reports whether an eviction happened.
func (s *Store) Append(token string, price float64) bool {
	w, ok := s.windows[token]
	if !ok {
		w = ringbuf.New(s.capacity)
		s.windows[token] = w
	}
	return w.Push(price)
}

// View returns a copy of token's window, oldest first. Nil for unknown tokens.
func (s *Store) View(token string) []float64 {
	w, ok := s.windows[token]
	if !ok {
		return nil
	}
	return w.Values()
}

// Tail returns the newest min(k, len) samples of token's window, oldest first.
func (s *Store) Tail(token string, k int) []float64 {
	w, ok := s.windows[token]
	if !ok {
		return nil
	}
	return w.Tail(make([]float64, 0, k), k)
}

// Depth returns the number of samples held for token.
func (s *Store) Depth(token string) int {
	if w, ok := s.windows[token]; ok {
		return w.Len()
	}
	return 0
}

// Len returns the number of tracked tokens.
func (s *Store) Len() int {
	return len(s.windows)
}

// Capacity returns the per-token window capacity.
func (s *Store) Capacity() int {
	return s.capacity
}
