// Package gevent provides a single-threaded I/O event reactor, multiplexing
// readiness notification for file descriptors and timers across
// interchangeable OS backends, and invoking callbacks as events fire.
//
// # Architecture
//
// A [Base] owns one [Backend] (select, poll, or epoll on Linux, see
// [Backends]), a self-pipe used to interrupt a blocking dispatch, and an
// ordered registry of the events it owns. Events are created with
// [NewIOEvent] (a caller supplied descriptor) or [NewTimerEvent] (a timer
// descriptor owned by the event), then registered with [Base.Add] or
// [Base.AddTracked].
//
// # Ownership
//
// Events registered with [Base.AddTracked] belong to the base, which
// destroys them exactly once, during [Base.Destroy]. [Base.DelTracked] hands
// ownership back. Events registered with [Base.Add] always belong to the
// caller, and are never touched by [Base.Destroy].
//
// # Driving the Loop
//
//   - [Base.Wait] performs a single dispatch.
//   - [Base.Loop] dispatches until [Base.BreakLoop] is called, or the
//     context is done.
//   - [Base.RunAsync] runs the loop on a goroutine locked to an OS thread,
//     stopped and joined by [Base.StopAsync].
//
// [Base.Signal] wakes a blocked dispatch without changing the state, and is
// safe to call from any goroutine.
//
// # Thread Safety
//
// Callbacks run on the reactor goroutine, in the order readable, writable,
// error, for a single event. There is no ordering between events that are
// ready at the same time. Signal, BreakLoop, and StopAsync are safe from any
// goroutine, registration is guarded by locks, but events themselves are
// not safe for concurrent use.
//
// # Usage
//
//	base, err := gevent.NewBase(gevent.WithBackend(gevent.BackendEpoll))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer base.Destroy()
//
//	timer, err := gevent.NewTimerEvent(time.Second, gevent.TimerPersistent, func(fd int, arg any) {
//	    fmt.Println("tick")
//	}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := base.AddTracked(timer); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := base.RunAsync(); err != nil {
//	    log.Fatal(err)
//	}
//	time.Sleep(5 * time.Second)
//	_ = base.StopAsync()
//
// # Error Types
//
// Failures are returned as [*Error] values, classified by [ErrorKind], and
// matched with [errors.Is] against [ErrAllocation], [ErrResourceCreation],
// [ErrInvalidArgument], or [ErrBackendDispatch]. Lifecycle errors such as
// [ErrBaseClosed] and [ErrReentrant] are wrapped, and match directly.
package gevent
