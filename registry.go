package gevent

import (
	"sync"

	"golang.org/x/exp/slices"
)

// registry is the ordered collection of events owned by a Base, in
// registration order.
type registry struct {
	events []*Event
	mu     sync.Mutex
}

// pushBack appends ev, unless it is already present.
func (r *registry) pushBack(ev *Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.events, ev) {
		return false
	}
	r.events = append(r.events, ev)
	return true
}

// erase removes ev, located by identity, preserving the order of the
// remaining entries.
func (r *registry) erase(ev *Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.events, ev)
	if i < 0 {
		return false
	}
	r.events = slices.Delete(r.events, i, i+1)
	return true
}

// popBack removes and returns the most recently registered event.
func (r *registry) popBack() *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.events)
	if n == 0 {
		return nil
	}
	ev := r.events[n-1]
	r.events[n-1] = nil
	r.events = r.events[:n-1]
	return ev
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// snapshot returns a copy of the entries, in order.
func (r *registry) snapshot() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// free releases the backing array.
func (r *registry) free() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
