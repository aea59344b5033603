package gevent

import (
	"sync/atomic"
)

// BaseState represents the lifecycle state of a Base.
//
// State Machine:
//
//	StateIdle (0) → StateRunning (1)      [Loop() / RunAsync()]
//	StateRunning (1) → StateStopping (2)  [BreakLoop() / StopAsync() / ctx done]
//	StateStopping (2) → StateIdle (0)     [loop observed the stop and returned]
//	any → StateClosed (3)                 [Destroy(), after the loop has exited]
//	StateClosed (3) → (terminal)
//
// Use TryTransition (CAS) for the reversible states, Store only for
// StateClosed.
type BaseState uint32

const (
	// StateIdle indicates the base is constructed and not dispatching.
	StateIdle BaseState = iota
	// StateRunning indicates a loop is repeatedly calling Dispatch.
	StateRunning
	// StateStopping indicates a stop was requested, and the current Dispatch
	// has not yet returned.
	StateStopping
	// StateClosed indicates the base has been destroyed.
	StateClosed
)

// String returns a human-readable representation of the state.
func (s BaseState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// baseState is a lock-free state holder.
type baseState struct {
	v atomic.Uint32
}

func (s *baseState) Load() BaseState {
	return BaseState(s.v.Load())
}

func (s *baseState) Store(state BaseState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *baseState) TryTransition(from, to BaseState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// IsRunning reports whether a loop currently owns the reactor.
func (s *baseState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateStopping
}
