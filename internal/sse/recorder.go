package sse

import "sync"

// Recorder collects events in order. Test helper and the backing for
// synchronous (non-streaming) invocations.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Send(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a snapshot of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Event, len(r.events))
	copy(cp, r.events)
	return cp
}

// Last returns the final recorded event, if any.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// OfType filters recorded events by kind.
func (r *Recorder) OfType(kind EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, event := range r.events {
		if event.Type == kind {
			out = append(out, event)
		}
	}
	return out
}
