package gevent

import (
	"strings"
	"time"
)

// Flags is the set of conditions an Event is interested in.
type Flags uint8

const (
	// FlagRead indicates interest in readability.
	FlagRead Flags = 1 << iota
	// FlagWrite indicates interest in writability.
	FlagWrite
	// FlagError indicates interest in error / hangup conditions.
	FlagError
	// FlagPersist keeps the event registered after it fires.
	FlagPersist
)

// String returns a "|" separated list of the set flags.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&FlagRead != 0 {
		parts = append(parts, "read")
	}
	if f&FlagWrite != 0 {
		parts = append(parts, "write")
	}
	if f&FlagError != 0 {
		parts = append(parts, "error")
	}
	if f&FlagPersist != 0 {
		parts = append(parts, "persist")
	}
	return strings.Join(parts, "|")
}

// Callback is invoked on the reactor goroutine with the event's descriptor
// and the user argument given at construction.
type Callback func(fd int, arg any)

// IOCallbacks is the callback set of an I/O event. Nil members are not
// registered for.
type IOCallbacks struct {
	OnReadable Callback
	OnWritable Callback
	OnError    Callback
}

func (x IOCallbacks) flags() (f Flags) {
	if x.OnReadable != nil {
		f |= FlagRead
	}
	if x.OnWritable != nil {
		f |= FlagWrite
	}
	if x.OnError != nil {
		f |= FlagError
	}
	return
}

// EventKind distinguishes the two kinds of Event.
type EventKind uint8

const (
	// EventIO is an event on a caller-supplied descriptor.
	EventIO EventKind = iota
	// EventTimer is an event on a timer descriptor owned by the Event.
	EventTimer
)

// String returns the name of the kind.
func (k EventKind) String() string {
	if k == EventTimer {
		return "timer"
	}
	return "io"
}

// Event is a registered interest on one descriptor, plus its callbacks.
//
// An Event is either an I/O event (see NewIOEvent), or a timer event (see
// NewTimerEvent), and the callback sets of the two kinds never mix.
//
// Ownership: an Event belongs to its creator until it is passed to
// Base.AddTracked, after which the Base is responsible for destroying it,
// unless it is handed back via Base.DelTracked. Events registered with
// Base.Add remain the caller's, and must be removed with Base.Del prior to
// Event.Destroy.
type Event struct {
	arg   any
	owner *Base

	io      IOCallbacks
	onTimer Callback

	period    time.Duration
	timerType TimerType

	fd    int
	flags Flags
	kind  EventKind

	ownsFD    bool
	internal  bool
	destroyed bool
}

// NewIOEvent creates an I/O event for fd. Flags are derived from the non-nil
// callbacks, and FlagPersist is always set: I/O events stay registered until
// explicitly removed. The descriptor is not owned by the event.
func NewIOEvent(fd int, callbacks IOCallbacks, arg any) (*Event, error) {
	if fd < 0 {
		return nil, newError("new io event", KindInvalidArgument, ErrFDOutOfRange)
	}
	return &Event{
		fd:    fd,
		flags: callbacks.flags() | FlagPersist,
		kind:  EventIO,
		io:    callbacks,
		arg:   arg,
	}, nil
}

// FD returns the event's descriptor.
func (e *Event) FD() int { return e.fd }

// Flags returns the event's interest set.
func (e *Event) Flags() Flags { return e.flags }

// Kind returns whether this is an I/O or timer event.
func (e *Event) Kind() EventKind { return e.kind }

// Arg returns the user argument.
func (e *Event) Arg() any { return e.arg }

// Period returns the timer period, or zero for I/O events.
func (e *Event) Period() time.Duration { return e.period }

// TimerType returns the timer recurrence, meaningless for I/O events.
func (e *Event) TimerType() TimerType { return e.timerType }

// Persistent reports whether the event remains registered after firing.
func (e *Event) Persistent() bool { return e.flags&FlagPersist != 0 }

// Destroy releases the event. Timer events close their descriptor, I/O
// events leave the caller's descriptor open.
//
// Events still owned by a Base (see Base.AddTracked) cannot be destroyed
// directly, and a second call returns ErrEventDestroyed.
func (e *Event) Destroy() error {
	if e == nil {
		return invalidArgument("destroy event", "event")
	}
	if e.destroyed {
		return ErrEventDestroyed
	}
	if e.owner != nil {
		return ErrEventTracked
	}
	return e.release()
}

// release destroys the event regardless of ownership.
func (e *Event) release() (err error) {
	if e.destroyed {
		return nil
	}
	e.destroyed = true
	e.owner = nil
	if e.ownsFD {
		err = closeFD(e.fd)
	}
	e.io = IOCallbacks{}
	e.onTimer = nil
	e.arg = nil
	return
}

// fire invokes the callbacks matching ready, in the order readable,
// writable, error. It is called by backends, on the reactor goroutine.
func (e *Event) fire(ready Flags) {
	if e.destroyed {
		return
	}
	if e.kind == EventTimer {
		drainTimerFD(e.fd)
		if e.onTimer != nil {
			e.onTimer(e.fd, e.arg)
		}
		return
	}
	// a callback may destroy the event, clearing the rest
	fd, arg := e.fd, e.arg
	if ready&FlagRead != 0 && e.io.OnReadable != nil {
		e.io.OnReadable(fd, arg)
	}
	if ready&FlagWrite != 0 && !e.destroyed && e.io.OnWritable != nil {
		e.io.OnWritable(fd, arg)
	}
	if ready&FlagError != 0 && !e.destroyed && e.io.OnError != nil {
		e.io.OnError(fd, arg)
	}
}

func (e *Event) usable(op string) error {
	if e == nil {
		return invalidArgument(op, "event")
	}
	if e.destroyed {
		return ErrEventDestroyed
	}
	return nil
}
