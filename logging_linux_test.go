//go:build linux

package gevent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_Lifecycle(t *testing.T) {
	w := &testEventWriter{}
	b, err := NewBase(WithLogger(newTestLogger(w)))
	require.NoError(t, err)
	require.NoError(t, b.Destroy())

	created := w.find("base created")
	require.NotNil(t, created)
	assert.Equal(t, logiface.LevelDebug, created.level)
	assert.Equal(t, categoryLifecycle, created.fields["category"])
	assert.Contains(t, created.fields, "base")
	assert.Contains(t, created.fields, "backend")

	assert.NotNil(t, w.find("base destroyed"))
}

func TestLogging_DispatchFailure(t *testing.T) {
	w := &testEventWriter{}
	fake := newFakeBackend()
	fake.dispatch = func(_ time.Duration) (int, error) {
		return 0, &Error{Op: "fake", Kind: KindBackendDispatch, Fatal: true, Err: errFakeDispatch}
	}
	b := testNewBase(t, WithBackendImpl(fake), WithLogger(newTestLogger(w)), WithFatalThreshold(1))

	err := b.Loop(context.Background())
	require.True(t, errors.Is(err, ErrBackendFailing), "got %v", err)

	failed := w.find("dispatch failed")
	require.NotNil(t, failed)
	assert.Equal(t, logiface.LevelError, failed.level)
	assert.Equal(t, categoryDispatch, failed.fields["category"])

	aborted := w.find("aborting loop")
	require.NotNil(t, aborted)
	assert.Equal(t, logiface.LevelCritical, aborted.level)
}

func TestLogging_WorkerStartStop(t *testing.T) {
	w := &testEventWriter{}
	b := testNewBase(t, WithLogger(newTestLogger(w)))
	require.NoError(t, b.RunAsync())
	require.NoError(t, b.StopAsync())
	assert.NotNil(t, w.find("worker started"))
	assert.NotNil(t, w.find("worker stopped"))
}

func TestLogCritical_WithPanickingLogger(t *testing.T) {
	w := &testEventWriter{
		onWrite: func(*testEvent) error {
			panic("logger panic")
		},
	}
	b := &Base{logger: newTestLogger(w)}
	// falls back to the standard logger
	b.logCritical("test critical with panic", errors.New("test error"))
}

func TestLogging_NilLogger(t *testing.T) {
	b := &Base{}
	b.logDebug(categoryLifecycle, "nothing")
	b.logDispatchError(errFakeDispatch, 1)
	b.logWakeError("signal", errFakeDispatch)
	b.logCritical("nothing", errFakeDispatch)
	assert.Nil(t, childLogger(nil, 1, "epoll"))
}
