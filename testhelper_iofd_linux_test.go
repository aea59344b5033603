//go:build linux

package gevent

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// testCreateIOFD creates a file descriptor suitable for NewIOEvent, which
// never becomes readable unless the returned writer is written to.
func testCreateIOFD(t *testing.T) (fd int, w *os.File) {
	t.Helper()
	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		t.Fatal("os.Pipe failed:", err)
	}
	t.Cleanup(func() {
		pipeR.Close()
		pipeW.Close()
	})
	return int(pipeR.Fd()), pipeW
}

// testPipe creates a non-blocking pipe, closed on cleanup.
func testPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatal("pipe2 failed:", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func testWriteByte(t *testing.T, fd int) {
	t.Helper()
	if _, err := unix.Write(fd, []byte{'x'}); err != nil {
		t.Fatal("write failed:", err)
	}
}

// forEachBackend runs fn as a subtest per built-in backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, kind BackendKind)) {
	for _, kind := range Backends() {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			fn(t, kind)
		})
	}
}

func testNewBase(t *testing.T, opts ...BaseOption) *Base {
	t.Helper()
	b, err := NewBase(opts...)
	if err != nil {
		t.Fatalf("NewBase failed: %v", err)
	}
	t.Cleanup(func() {
		_ = b.Destroy()
	})
	return b
}
