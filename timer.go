package gevent

import (
	"fmt"
	"time"
)

// TimerType is the recurrence policy of a timer event.
type TimerType uint8

const (
	// TimerOneShot fires once, and is removed from the backend after firing.
	TimerOneShot TimerType = iota
	// TimerPersistent re-arms with the same interval until removed.
	TimerPersistent
)

// String returns the name of the timer type.
func (t TimerType) String() string {
	switch t {
	case TimerOneShot:
		return "oneshot"
	case TimerPersistent:
		return "persistent"
	default:
		return fmt.Sprintf("TimerType(%d)", uint8(t))
	}
}

// NewTimerEvent creates a timer event backed by a timer descriptor armed to
// expire after period, and then every period if typ is TimerPersistent.
// The descriptor is owned by the event, and closed by Event.Destroy.
//
// A KindResourceCreation error is returned if the descriptor cannot be
// created or armed, in which case nothing is leaked.
func NewTimerEvent(period time.Duration, typ TimerType, onTimer Callback, arg any) (*Event, error) {
	const op = "new timer event"
	if onTimer == nil {
		return nil, invalidArgument(op, "callback")
	}
	if period <= 0 {
		return nil, newError(op, KindInvalidArgument, fmt.Errorf("non-positive period %s", period))
	}
	if typ != TimerOneShot && typ != TimerPersistent {
		return nil, newError(op, KindInvalidArgument, fmt.Errorf("unknown timer type %s", typ))
	}

	flags := FlagRead
	if typ == TimerPersistent {
		flags |= FlagPersist
	}

	fd, err := createTimerFD(period, typ == TimerPersistent)
	if err != nil {
		return nil, err
	}

	return &Event{
		fd:        fd,
		flags:     flags,
		kind:      EventTimer,
		onTimer:   onTimer,
		period:    period,
		timerType: typ,
		arg:       arg,
		ownsFD:    true,
	}, nil
}
