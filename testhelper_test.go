package gevent

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// testEvent is a minimal logiface.Event implementation, recording fields.
type testEvent struct {
	logiface.UnimplementedEvent
	fields map[string]any
	msg    string
	level  logiface.Level
}

func (e *testEvent) Level() logiface.Level { return e.level }

func (e *testEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = val
}

func (e *testEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

// testEventFactory creates testEvent instances.
type testEventFactory struct{}

func (f *testEventFactory) NewEvent(level logiface.Level) *testEvent {
	return &testEvent{level: level}
}

// testEventWriter collects written events.
type testEventWriter struct {
	onWrite func(*testEvent) error
	events  []*testEvent
	mu      sync.Mutex
}

func (w *testEventWriter) Write(event *testEvent) error {
	if w.onWrite != nil {
		return w.onWrite(event)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *testEventWriter) find(msg string) *testEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ev := range w.events {
		if ev.msg == msg {
			return ev
		}
	}
	return nil
}

func newTestLogger(w *testEventWriter) *logiface.Logger[logiface.Event] {
	return logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](&testEventFactory{}),
		logiface.WithWriter[*testEvent](w),
		logiface.WithLevel[*testEvent](logiface.LevelDebug),
	).Logger()
}

// fakeBackend is an in-memory Backend. Dispatch fires nothing unless
// configured, and sleeps briefly by default so loops don't spin.
type fakeBackend struct {
	initErr  error
	addErr   error
	delErr   error
	dispatch func(timeout time.Duration) (int, error)

	events map[*Event]struct{}
	order  []string

	mu sync.Mutex

	dispatchCalls atomic.Int64
	initCalls     atomic.Int32
	deinitCalls   atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{events: make(map[*Event]struct{})}
}

func (f *fakeBackend) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, s)
}

func (f *fakeBackend) Init() error {
	f.initCalls.Add(1)
	f.record("init")
	return f.initErr
}

func (f *fakeBackend) Add(ev *Event) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[ev]; ok {
		return ErrFDAlreadyRegistered
	}
	f.events[ev] = struct{}{}
	return nil
}

func (f *fakeBackend) Del(ev *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[ev]; !ok {
		return ErrFDNotRegistered
	}
	delete(f.events, ev)
	return f.delErr
}

func (f *fakeBackend) Dispatch(timeout time.Duration) (int, error) {
	f.dispatchCalls.Add(1)
	if f.dispatch != nil {
		return f.dispatch(timeout)
	}
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (f *fakeBackend) Deinit() error {
	f.deinitCalls.Add(1)
	f.record("deinit")
	return nil
}

func (f *fakeBackend) registered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

var errFakeDispatch = errors.New("fake dispatch failure")
