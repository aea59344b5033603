package gevent

import (
	"errors"
	"fmt"
	"strings"
)

// errPrefix prefixes every error message from this package.
const errPrefix = "gevent: "

// Standard errors.
var (
	// ErrAllocation matches errors of kind KindAllocation.
	ErrAllocation = errors.New("gevent: allocation failure")

	// ErrResourceCreation matches errors of kind KindResourceCreation, e.g. a
	// pipe or timer descriptor that could not be created or armed.
	ErrResourceCreation = errors.New("gevent: resource creation failure")

	// ErrInvalidArgument matches errors of kind KindInvalidArgument.
	ErrInvalidArgument = errors.New("gevent: invalid argument")

	// ErrBackendDispatch matches errors of kind KindBackendDispatch.
	ErrBackendDispatch = errors.New("gevent: backend dispatch failure")

	// ErrBackendFailing is returned by Base.Loop when the dispatch failure
	// policy gave up on the backend.
	ErrBackendFailing = errors.New("gevent: backend failing, loop aborted")

	// ErrBaseClosed is returned for operations on a destroyed Base.
	ErrBaseClosed = errors.New("gevent: base has been destroyed")

	// ErrLoopAlreadyRunning is returned when a dispatch is attempted while
	// another goroutine is running the loop.
	ErrLoopAlreadyRunning = errors.New("gevent: loop is already running")

	// ErrWorkerRunning is returned by Base.RunAsync if a worker already exists.
	ErrWorkerRunning = errors.New("gevent: worker is already running")

	// ErrReentrant is returned when a blocking control operation is invoked
	// from the reactor goroutine itself.
	ErrReentrant = errors.New("gevent: cannot be called from the reactor goroutine")

	// ErrEventDestroyed is returned for operations on a destroyed Event.
	ErrEventDestroyed = errors.New("gevent: event has been destroyed")

	// ErrEventTracked is returned when an Event owned by a Base registry is
	// destroyed directly, or tracked twice.
	ErrEventTracked = errors.New("gevent: event is owned by a base")

	// ErrEventNotTracked is returned by Base.DelTracked for events not
	// present in the registry.
	ErrEventNotTracked = errors.New("gevent: event is not tracked by this base")

	ErrFDOutOfRange        = errors.New("gevent: fd out of range")
	ErrFDAlreadyRegistered = errors.New("gevent: fd already registered")
	ErrFDNotRegistered     = errors.New("gevent: fd not registered")

	// ErrNotSupported is returned when the requested backend or feature is
	// unavailable on this platform.
	ErrNotSupported = errors.New("gevent: not supported on this platform")
)

// ErrorKind classifies failures surfaced by this package.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	// KindAllocation means memory or kernel object exhaustion.
	KindAllocation
	// KindResourceCreation means a descriptor could not be created or armed.
	KindResourceCreation
	// KindInvalidArgument means a nil or otherwise unusable argument.
	KindInvalidArgument
	// KindBackendDispatch means the multiplexing call itself failed.
	KindBackendDispatch
	// KindState means the operation is not valid in the current lifecycle state.
	KindState
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindAllocation:
		return "allocation"
	case KindResourceCreation:
		return "resource creation"
	case KindInvalidArgument:
		return "invalid argument"
	case KindBackendDispatch:
		return "backend dispatch"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAllocation:
		return ErrAllocation
	case KindResourceCreation:
		return ErrResourceCreation
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindBackendDispatch:
		return ErrBackendDispatch
	default:
		return nil
	}
}

// Error is the typed error returned by this package.
//
// Matching by kind is supported through [errors.Is], e.g.
//
//	if errors.Is(err, gevent.ErrInvalidArgument) {
//	    // ...
//	}
//
// The underlying cause (often a [golang.org/x/sys/unix.Errno]) is available
// via [errors.Unwrap].
type Error struct {
	Err  error
	Op   string
	Kind ErrorKind
	// Fatal marks a backend failure as unrecoverable (EBADF class).
	Fatal bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := errPrefix + e.Op
	if e.Kind != KindUnknown {
		msg += ": " + e.Kind.String()
	}
	if e.Fatal {
		msg += " (fatal)"
	}
	if e.Err != nil {
		// wrapped sentinels and errors carry the prefix already
		msg += ": " + strings.TrimPrefix(e.Err.Error(), errPrefix)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	if s := e.Kind.sentinel(); s != nil && s == target {
		return true
	}
	return false
}

func newError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// wrapError returns err unchanged if it is already an *Error, e.g. from a
// built-in backend, otherwise it wraps it.
func wrapError(op string, kind ErrorKind, err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	return newError(op, kind, err)
}

func invalidArgument(op, what string) error {
	return newError(op, KindInvalidArgument, fmt.Errorf("nil %s", what))
}

// IsFatal reports whether err is a backend failure marked as unrecoverable.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Fatal
}
