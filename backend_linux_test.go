//go:build linux

package gevent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var (
	errBadFD error = unix.EBADF
	errNoMem error = unix.ENOMEM
)

func testNewBackend(t *testing.T, kind BackendKind) Backend {
	t.Helper()
	b, err := newBackend(kind)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Deinit() })
	return b
}

func TestBackends_Linux(t *testing.T) {
	assert.Equal(t, []BackendKind{BackendSelect, BackendPoll, BackendEpoll}, Backends())
	assert.Equal(t, BackendEpoll, DefaultBackend)

	_, err := newBackend(BackendIOCP)
	assert.True(t, errors.Is(err, ErrNotSupported), "got %v", err)
}

func TestBackend_DispatchReadable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind BackendKind) {
		b := testNewBackend(t, kind)
		r, w := testPipe(t)

		var calls int
		ev, err := NewIOEvent(r, IOCallbacks{OnReadable: func(fd int, arg any) {
			calls++
			assert.Equal(t, r, fd)
			assert.Equal(t, "arg", arg)
			drainWake(fd)
		}}, "arg")
		require.NoError(t, err)
		require.NoError(t, b.Add(ev))

		n, err := b.Dispatch(0)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 0, calls)

		testWriteByte(t, w)
		n, err = b.Dispatch(time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, calls)

		// persistent, still registered
		testWriteByte(t, w)
		_, err = b.Dispatch(time.Second)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)

		require.NoError(t, b.Del(ev))
		testWriteByte(t, w)
		_, err = b.Dispatch(10 * time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})
}

func TestBackend_DispatchWritable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind BackendKind) {
		b := testNewBackend(t, kind)
		_, w := testPipe(t)

		var calls int
		ev, err := NewIOEvent(w, IOCallbacks{OnWritable: func(int, any) { calls++ }}, nil)
		require.NoError(t, err)
		require.NoError(t, b.Add(ev))
		defer b.Del(ev)

		n, err := b.Dispatch(time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, calls)
	})
}

func TestBackend_RegistrationErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind BackendKind) {
		b := testNewBackend(t, kind)
		r, _ := testPipe(t)

		ev, _ := NewIOEvent(r, IOCallbacks{OnReadable: func(int, any) {}}, nil)
		dup, _ := NewIOEvent(r, IOCallbacks{OnReadable: func(int, any) {}}, nil)

		require.NoError(t, b.Add(ev))
		err := b.Add(dup)
		assert.True(t, errors.Is(err, ErrFDAlreadyRegistered), "got %v", err)

		err = b.Del(dup)
		assert.True(t, errors.Is(err, ErrFDNotRegistered), "got %v", err)

		require.NoError(t, b.Del(ev))
		err = b.Del(ev)
		assert.True(t, errors.Is(err, ErrFDNotRegistered), "got %v", err)
	})
}

func TestBackend_OneShotTimerRemovedAfterFiring(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind BackendKind) {
		b := testNewBackend(t, kind)

		var calls int
		ev, err := NewTimerEvent(5*time.Millisecond, TimerOneShot, func(int, any) { calls++ }, nil)
		require.NoError(t, err)
		defer ev.Destroy()
		require.NoError(t, b.Add(ev))

		n, err := b.Dispatch(time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, calls)

		_, err = b.Dispatch(20 * time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)

		err = b.Del(ev)
		assert.True(t, errors.Is(err, ErrFDNotRegistered), "got %v", err)
	})
}

func TestBackend_PersistentTimerRefires(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind BackendKind) {
		b := testNewBackend(t, kind)

		var calls int
		ev, err := NewTimerEvent(5*time.Millisecond, TimerPersistent, func(int, any) { calls++ }, nil)
		require.NoError(t, err)
		defer ev.Destroy()
		require.NoError(t, b.Add(ev))
		defer b.Del(ev)

		for i := 0; i < 3; i++ {
			_, err := b.Dispatch(time.Second)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, calls)
	})
}

func TestBackend_CallbackMayDeleteItself(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind BackendKind) {
		b := testNewBackend(t, kind)
		r, w := testPipe(t)

		var ev *Event
		var calls int
		ev, _ = NewIOEvent(r, IOCallbacks{OnReadable: func(int, any) {
			calls++
			assert.NoError(t, b.Del(ev))
		}}, nil)
		require.NoError(t, b.Add(ev))

		testWriteByte(t, w)
		_, err := b.Dispatch(time.Second)
		require.NoError(t, err)
		_, err = b.Dispatch(10 * time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestBase_PeerHangup(t *testing.T) {
	for _, tc := range [...]struct {
		name      string
		closeRead bool
		read      bool
		write     bool
		onError   bool
		want      []string
	}{
		{name: "read only", read: true, want: []string{"read"}},
		{name: "read and error", read: true, onError: true, want: []string{"read", "error"}},
		{name: "write and error", closeRead: true, write: true, onError: true, want: []string{"write", "error"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			forEachBackend(t, func(t *testing.T, kind BackendKind) {
				b := testNewBase(t, WithBackend(kind))

				var fds [2]int
				require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
				fd, peer := fds[0], fds[1]
				if tc.closeRead {
					fd, peer = peer, fd
				}
				require.NoError(t, unix.Close(peer))
				t.Cleanup(func() { _ = unix.Close(fd) })

				var (
					ev    *Event
					fired []string
				)
				done := func(name string) {
					fired = append(fired, name)
					if len(fired) == len(tc.want) {
						assert.NoError(t, b.Del(ev))
					}
				}
				var callbacks IOCallbacks
				if tc.read {
					callbacks.OnReadable = func(fd int, _ any) {
						var buf [8]byte
						n, err := unix.Read(fd, buf[:])
						assert.NoError(t, err)
						assert.Equal(t, 0, n)
						done("read")
					}
				}
				if tc.write {
					callbacks.OnWritable = func(int, any) { done("write") }
				}
				if tc.onError {
					callbacks.OnError = func(int, any) { done("error") }
				}
				ev, err := NewIOEvent(fd, callbacks, nil)
				require.NoError(t, err)
				require.NoError(t, b.Add(ev))

				n, err := b.WaitTimeout(time.Second)
				require.NoError(t, err)
				assert.Equal(t, 1, n)
				assert.Equal(t, tc.want, fired)

				// removed by its callback, so the next wait blocks
				start := time.Now()
				n, err = b.WaitTimeout(50 * time.Millisecond)
				require.NoError(t, err)
				assert.Equal(t, 0, n)
				assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
				assert.Equal(t, tc.want, fired)
			})
		})
	}
}

func TestBackend_DispatchAfterDeinitIsFatal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind BackendKind) {
		b, err := newBackend(kind)
		require.NoError(t, err)
		require.NoError(t, b.Init())
		require.NoError(t, b.Deinit())

		_, err = b.Dispatch(0)
		assert.True(t, IsFatal(err), "got %v", err)
		assert.True(t, errors.Is(err, ErrBaseClosed), "got %v", err)
	})
}

func TestSelectBackend_RejectsLargeFD(t *testing.T) {
	b := testNewBackend(t, BackendSelect)
	ev := &Event{fd: selectSetSize, flags: FlagRead | FlagPersist}
	err := b.Add(ev)
	assert.True(t, errors.Is(err, ErrFDOutOfRange), "got %v", err)
	assert.True(t, errors.Is(err, ErrInvalidArgument), "got %v", err)
}

func TestDispatchError_Classification(t *testing.T) {
	assert.True(t, IsFatal(dispatchError("epoll_wait", errBadFD)))
	assert.False(t, IsFatal(dispatchError("epoll_wait", errNoMem)))
	assert.True(t, errors.Is(dispatchError("poll", errNoMem), ErrBackendDispatch))
}
