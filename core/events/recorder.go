package events

import (
	"context"
	"sync"
)

// Recorder keeps the most recent events in a fixed-size ring.
type Recorder struct {
	mu    sync.Mutex
	ring  []Event
	next  int
	count int
}

// NewRecorder creates a recorder holding up to size events.
func NewRecorder(size int) *Recorder {
	if size < 1 {
		size = 1
	}
	return &Recorder{ring: make([]Event, size)}
}

// Handle records e. It has the Handler signature so it can be subscribed
// directly.
func (r *Recorder) Handle(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.next] = e
	r.next = (r.next + 1) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	}
	return nil
}

// Recent returns up to limit events, oldest first. A limit of zero or less
// returns everything held.
func (r *Recorder) Recent(limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	start := r.next - n
	if start < 0 {
		start += len(r.ring)
	}
	for i := range out {
		out[i] = r.ring[(start+i)%len(r.ring)]
	}
	return out
}
