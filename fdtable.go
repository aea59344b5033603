package gevent

import (
	"sync"
)

// maxFDLimit is the maximum descriptor value accepted by the built-in
// backends.
const maxFDLimit = 1 << 24

// fdTable maps descriptors to registered events, by direct indexing.
// THREAD SAFE: registration may race with a dispatch on the reactor
// goroutine, callbacks are always invoked outside the lock.
type fdTable struct {
	events []*Event
	count  int
	mu     sync.RWMutex
}

func (t *fdTable) add(ev *Event) error {
	fd := ev.fd
	if fd < 0 || fd >= maxFDLimit {
		return ErrFDOutOfRange
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if fd >= len(t.events) {
		// grow in chunks to minimize allocations
		size := max(fd*2+1, 64)
		if size > maxFDLimit {
			size = maxFDLimit
		}
		events := make([]*Event, size)
		copy(events, t.events)
		t.events = events
	}

	if t.events[fd] != nil {
		return ErrFDAlreadyRegistered
	}

	t.events[fd] = ev
	t.count++
	return nil
}

// remove unregisters ev, which must be the event registered for its fd.
func (t *fdTable) remove(ev *Event) error {
	fd := ev.fd

	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.events) || t.events[fd] != ev {
		return ErrFDNotRegistered
	}

	t.events[fd] = nil
	t.count--
	return nil
}

func (t *fdTable) lookup(fd int) *Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if fd < 0 || fd >= len(t.events) {
		return nil
	}
	return t.events[fd]
}

// each calls fn for every registered event, in descriptor order, under the
// read lock. fn must not call back into the table.
func (t *fdTable) each(fn func(ev *Event)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	remaining := t.count
	for _, ev := range t.events {
		if remaining == 0 {
			break
		}
		if ev != nil {
			remaining--
			fn(ev)
		}
	}
}

func (t *fdTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// consume removes a non-persistent event after it fired.
func (t *fdTable) consume(ev *Event) bool {
	if ev.Persistent() {
		return false
	}
	return t.remove(ev) == nil
}
