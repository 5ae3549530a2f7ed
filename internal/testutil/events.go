package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/storehaus/internal/signal"
)

// EventRecorder collects events delivered by a signal.Bus.
//
// Subscribe rec.Handle on the bus; Events returns what was received so
// far in arrival order.
type EventRecorder struct {
	mu     sync.Mutex
	events []signal.Event
	notify chan struct{}
}

// NewEventRecorder returns an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{notify: make(chan struct{}, 1)}
}

// Handle is a signal.Handler that records ev.
func (r *EventRecorder) Handle(_ context.Context, ev signal.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []signal.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal.Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *EventRecorder) OfType(t signal.EventType) []signal.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []signal.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *EventRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WaitFor blocks until at least n events are recorded or timeout
// passes. It reports whether n was reached.
func (r *EventRecorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if r.Len() >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Len() >= n
		}
	}
}

// Reset drops the recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
