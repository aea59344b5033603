package gevent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// baseIDCounter provides unique base IDs, for logging.
var baseIDCounter atomic.Uint64

// Base is an event base: one backend, its registered events, and the
// self-pipe used to interrupt a blocking dispatch.
//
// A Base is driven by a single reactor goroutine at a time, via Wait, Loop,
// or RunAsync. Signal, BreakLoop, and StopAsync are safe to call from any
// goroutine. Callbacks are invoked on the reactor goroutine, and may call
// Add, Del, AddTracked, DelTracked, Signal, and BreakLoop.
type Base struct { // betteralign:ignore
	backend Backend
	logger  *logiface.Logger[logiface.Event]

	// wake is the internal, tracked, event on wakeR
	wake *Event

	// worker is the RunAsync handle, guarded by workerMu
	worker *worker

	// loopDone is non-nil while the state is Running or Stopping, and closed
	// once it returns to Idle, guarded by loopMu
	loopDone chan struct{}

	registry registry
	policy   failurePolicy

	dispatchTimeout time.Duration
	id              uint64
	backendName     string

	// pipe ends, -1 once closed, guarded by fdMu
	wakeR, wakeW int

	fdMu       sync.RWMutex
	workerMu   sync.Mutex
	loopMu     sync.Mutex
	dispatchMu sync.Mutex

	// dispatchGoroutine is the ID of the goroutine holding dispatchMu, or 0
	dispatchGoroutine atomic.Uint64

	state baseState
}

// worker is a goroutine started by RunAsync, locked to its OS thread.
type worker struct {
	err  error
	done chan struct{}
	goid atomic.Uint64
}

// NewBase creates an event base, using DefaultBackend unless configured
// otherwise. The base registers its internal wakeup event, so Len is 1 for
// a new base.
func NewBase(opts ...BaseOption) (*Base, error) {
	cfg, err := resolveBaseOptions(opts)
	if err != nil {
		return nil, err
	}

	backend := cfg.backend
	backendName := fmt.Sprintf("%T", backend)
	if backend == nil {
		if backend, err = newBackend(cfg.kind); err != nil {
			return nil, err
		}
		backendName = cfg.kind.String()
	}

	b := &Base{
		backend:         backend,
		dispatchTimeout: cfg.dispatchTimeout,
		id:              baseIDCounter.Add(1),
		backendName:     backendName,
		wakeR:           -1,
		wakeW:           -1,
		policy: failurePolicy{
			limiter:   cfg.limiter,
			threshold: cfg.fatalThreshold,
		},
	}
	b.logger = childLogger(cfg.logger, b.id, backendName)

	if b.wakeR, b.wakeW, err = createWakePipe(); err != nil {
		return nil, err
	}

	if err = backend.Init(); err != nil {
		b.closePipe()
		return nil, wrapError("new base", KindResourceCreation, err)
	}

	if b.wake, err = NewIOEvent(b.wakeR, IOCallbacks{OnReadable: b.onWake}, nil); err != nil {
		b.closePipe()
		_ = backend.Deinit()
		return nil, err
	}
	b.wake.internal = true

	if err = b.AddTracked(b.wake); err != nil {
		b.wake.owner = nil
		_ = b.wake.release()
		b.closePipe()
		_ = backend.Deinit()
		return nil, err
	}

	b.logDebug(categoryLifecycle, "base created")

	return b, nil
}

// ID returns a process-unique identifier for the base.
func (b *Base) ID() uint64 { return b.id }

// Backend returns the backend the base was created with.
func (b *Base) Backend() Backend { return b.backend }

// State returns the current lifecycle state.
func (b *Base) State() BaseState { return b.state.Load() }

// Len returns the number of tracked events, including the internal wakeup
// event. Zero once the base is destroyed.
func (b *Base) Len() int { return b.registry.count() }

// onWake is the internal wakeup callback.
func (b *Base) onWake(fd int, _ any) {
	drainWake(fd)
}

// Add registers ev with the backend. The event remains owned by the caller,
// who must Del it before destroying it.
func (b *Base) Add(ev *Event) error {
	const op = "add"
	if err := b.checkRegistration(op, ev); err != nil {
		return err
	}
	if ev.owner != nil && ev.owner != b {
		return newError(op, KindState, ErrEventTracked)
	}
	return b.backend.Add(ev)
}

// Del unregisters ev from the backend. It does not change ownership, see
// DelTracked.
func (b *Base) Del(ev *Event) error {
	const op = "del"
	if err := b.checkRegistration(op, ev); err != nil {
		return err
	}
	return b.backend.Del(ev)
}

// AddTracked registers ev with the backend, then transfers ownership of ev
// to the base, which will destroy it on Destroy.
func (b *Base) AddTracked(ev *Event) error {
	const op = "add tracked"
	if err := b.checkRegistration(op, ev); err != nil {
		return err
	}
	if ev.owner != nil {
		return newError(op, KindState, ErrEventTracked)
	}
	if err := b.backend.Add(ev); err != nil {
		return err
	}
	b.registry.pushBack(ev)
	ev.owner = b
	return nil
}

// DelTracked unregisters ev and hands ownership back to the caller.
//
// Ownership is returned even if the backend fails to unregister the event,
// in which case that error is returned. A non-persistent event that has
// already fired is no longer registered with the backend, and reports
// ErrFDNotRegistered.
func (b *Base) DelTracked(ev *Event) error {
	const op = "del tracked"
	if err := b.checkRegistration(op, ev); err != nil {
		return err
	}
	if ev.owner != b {
		return newError(op, KindState, ErrEventNotTracked)
	}
	err := b.backend.Del(ev)
	b.registry.erase(ev)
	ev.owner = nil
	return err
}

func (b *Base) checkRegistration(op string, ev *Event) error {
	if b == nil {
		return invalidArgument(op, "base")
	}
	if err := ev.usable(op); err != nil {
		return err
	}
	if b.state.Load() == StateClosed {
		return newError(op, KindState, ErrBaseClosed)
	}
	return nil
}

// Signal writes one byte to the wakeup pipe, causing a blocked dispatch to
// return, without changing the state. A signal sent while nothing is
// dispatching is consumed by the next dispatch.
func (b *Base) Signal() error {
	const op = "signal"
	if b == nil {
		return invalidArgument(op, "base")
	}
	if err := b.signal(); err != nil {
		if !errors.Is(err, ErrBaseClosed) {
			b.logWakeError(op, err)
		}
		return err
	}
	return nil
}

func (b *Base) signal() error {
	b.fdMu.RLock()
	defer b.fdMu.RUnlock()
	if b.wakeW < 0 {
		return newError("signal", KindState, ErrBaseClosed)
	}
	if err := writeWake(b.wakeW); err != nil {
		return newError("signal", KindBackendDispatch, err)
	}
	return nil
}

// BreakLoop requests a running loop to stop, and wakes it. It does not wait
// for the loop to return. Calling it while no loop is running only sends a
// signal.
func (b *Base) BreakLoop() error {
	if b == nil {
		return invalidArgument("break loop", "base")
	}
	if b.state.Load() == StateClosed {
		return newError("break loop", KindState, ErrBaseClosed)
	}
	b.breakLoop()
	return nil
}

func (b *Base) breakLoop() {
	b.state.TryTransition(StateRunning, StateStopping)
	if err := b.signal(); err != nil && !errors.Is(err, ErrBaseClosed) {
		b.logWakeError("break loop", err)
	}
}

// Wait performs a single dispatch, blocking (subject to WithDispatchTimeout)
// until at least one event is ready or the base is signaled, and returns
// the number of events processed. It is refused while a loop is running.
func (b *Base) Wait() (int, error) {
	if b == nil {
		return 0, invalidArgument("wait", "base")
	}
	return b.waitOnce(b.dispatchTimeout)
}

// WaitTimeout is Wait with an explicit timeout, a negative timeout blocks
// indefinitely.
func (b *Base) WaitTimeout(timeout time.Duration) (int, error) {
	if b == nil {
		return 0, invalidArgument("wait", "base")
	}
	return b.waitOnce(timeout)
}

func (b *Base) waitOnce(timeout time.Duration) (int, error) {
	const op = "wait"
	switch b.state.Load() {
	case StateClosed:
		return 0, newError(op, KindState, ErrBaseClosed)
	case StateRunning, StateStopping:
		return 0, newError(op, KindState, ErrLoopAlreadyRunning)
	}
	if !b.dispatchMu.TryLock() {
		return 0, newError(op, KindState, ErrLoopAlreadyRunning)
	}
	defer b.dispatchMu.Unlock()
	if b.state.Load() == StateClosed {
		return 0, newError(op, KindState, ErrBaseClosed)
	}
	b.dispatchGoroutine.Store(getGoroutineID())
	defer b.dispatchGoroutine.Store(0)
	return b.backend.Dispatch(timeout)
}

// Loop dispatches repeatedly, until BreakLoop, StopAsync, or Destroy is
// called, or ctx is done (in which case ctx.Err() is returned).
//
// Failed dispatches are logged, and the loop continues, unless the failure
// policy (see WithFailureRates and WithFatalThreshold) gives up, in which
// case an error wrapping ErrBackendFailing is returned.
func (b *Base) Loop(ctx context.Context) error {
	if b == nil {
		return invalidArgument("loop", "base")
	}
	if ctx == nil {
		return invalidArgument("loop", "context")
	}
	if err := b.startLoop("loop"); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, b.breakLoop)
	defer stop()
	if err := b.run(); err != nil {
		return err
	}
	return ctx.Err()
}

// startLoop performs the Idle to Running transition.
func (b *Base) startLoop(op string) error {
	b.loopMu.Lock()
	defer b.loopMu.Unlock()
	if !b.state.TryTransition(StateIdle, StateRunning) {
		if b.state.Load() == StateClosed {
			return newError(op, KindState, ErrBaseClosed)
		}
		return newError(op, KindState, ErrLoopAlreadyRunning)
	}
	b.loopDone = make(chan struct{})
	return nil
}

// run is the loop body, entered in StateRunning, always leaving the base in
// StateIdle.
func (b *Base) run() (err error) {
	b.dispatchMu.Lock()
	b.dispatchGoroutine.Store(getGoroutineID())

	defer func() {
		b.dispatchGoroutine.Store(0)
		b.dispatchMu.Unlock()
		b.loopMu.Lock()
		b.state.Store(StateIdle)
		close(b.loopDone)
		b.loopDone = nil
		b.loopMu.Unlock()
	}()

	for b.state.Load() == StateRunning {
		_, dispatchErr := b.backend.Dispatch(b.dispatchTimeout)
		if dispatchErr != nil {
			b.logDispatchError(dispatchErr, b.policy.consecutive+1)
		}
		if err = b.policy.observe(dispatchErr); err != nil {
			b.logCritical("aborting loop", err)
			return err
		}
	}

	return nil
}

// RunAsync starts the loop on a new goroutine, locked to an OS thread, and
// returns once the base is Running. Use StopAsync to stop and join it.
func (b *Base) RunAsync() error {
	const op = "run async"
	if b == nil {
		return invalidArgument(op, "base")
	}

	b.workerMu.Lock()
	defer b.workerMu.Unlock()

	if b.worker != nil {
		return newError(op, KindState, ErrWorkerRunning)
	}
	if err := b.startLoop(op); err != nil {
		return err
	}

	w := &worker{done: make(chan struct{})}
	b.worker = w

	go func() {
		defer close(w.done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		w.goid.Store(getGoroutineID())
		b.logDebug(categoryWorker, "worker started")
		w.err = b.run()
		b.logDebug(categoryWorker, "worker stopped")
	}()

	return nil
}

// StopAsync breaks the loop started by RunAsync, waits for the worker to
// exit, and returns the loop's error, if any. It is a no-op if there is no
// worker, so repeated calls are safe. Calling it from a callback, on the
// worker itself, returns ErrReentrant.
func (b *Base) StopAsync() error {
	const op = "stop async"
	if b == nil {
		return invalidArgument(op, "base")
	}

	b.workerMu.Lock()
	w := b.worker
	b.workerMu.Unlock()
	if w == nil {
		return nil
	}
	if w.goid.Load() == getGoroutineID() {
		return newError(op, KindState, ErrReentrant)
	}

	select {
	case <-w.done:
		// the loop already returned, e.g. the failure policy gave up
	default:
		b.breakLoop()
		<-w.done
	}

	b.workerMu.Lock()
	if b.worker != w {
		// joined by a concurrent call
		b.workerMu.Unlock()
		return nil
	}
	b.worker = nil
	b.workerMu.Unlock()

	return w.err
}

// Destroy stops any loop (joining a RunAsync worker, or breaking and waiting
// for a Loop on another goroutine), releases the wakeup pipe and the
// backend, then destroys every tracked event exactly once. Untracked events
// are left to the caller.
//
// Calling Destroy from a callback returns ErrReentrant, and a second call
// returns ErrBaseClosed.
func (b *Base) Destroy() error {
	const op = "destroy"
	if b == nil {
		return invalidArgument(op, "base")
	}
	if goid := getGoroutineID(); b.dispatchGoroutine.Load() == goid {
		return newError(op, KindState, ErrReentrant)
	}

	// the loop error, if any, was already logged
	_ = b.StopAsync()

	if err := b.closeState(op); err != nil {
		return err
	}

	// a concurrent Wait may still be blocked in Dispatch
	_ = b.signal()
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	var errs []error

	if err := b.backend.Del(b.wake); err != nil {
		errs = append(errs, err)
	}
	b.registry.erase(b.wake)
	b.wake.owner = nil
	_ = b.wake.release()

	if err := b.closePipe(); err != nil {
		errs = append(errs, newError(op, KindResourceCreation, err))
	}

	if err := b.backend.Deinit(); err != nil {
		errs = append(errs, err)
	}

	for ev := b.registry.popBack(); ev != nil; ev = b.registry.popBack() {
		ev.owner = nil
		if err := ev.release(); err != nil {
			errs = append(errs, newError(op, KindResourceCreation, err))
		}
	}
	b.registry.free()

	b.logDebug(categoryLifecycle, "base destroyed")

	return errors.Join(errs...)
}

// closeState transitions to StateClosed, breaking and waiting for any loop.
func (b *Base) closeState(op string) error {
	for {
		switch b.state.Load() {
		case StateClosed:
			return newError(op, KindState, ErrBaseClosed)

		case StateIdle:
			b.loopMu.Lock()
			ok := b.state.TryTransition(StateIdle, StateClosed)
			b.loopMu.Unlock()
			if ok {
				return nil
			}

		default:
			b.breakLoop()
			b.loopMu.Lock()
			done := b.loopDone
			b.loopMu.Unlock()
			if done != nil {
				<-done
			}
		}
	}
}

func (b *Base) closePipe() error {
	b.fdMu.Lock()
	defer b.fdMu.Unlock()
	err := errors.Join(closeFD(b.wakeR), closeFD(b.wakeW))
	b.wakeR, b.wakeW = -1, -1
	return err
}
