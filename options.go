// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gevent

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultFailureRates returns the default limits on recoverable dispatch
// failures, 64 per second and 512 per minute, see WithFailureRates.
func DefaultFailureRates() map[time.Duration]int {
	return map[time.Duration]int{
		time.Second: 64,
		time.Minute: 512,
	}
}

// DefaultFatalThreshold is the default number of consecutive unrecoverable
// dispatch failures tolerated, see WithFatalThreshold.
const DefaultFatalThreshold = 3

// baseOptions holds configuration options for Base creation.
type baseOptions struct {
	backend         Backend
	logger          *logiface.Logger[logiface.Event]
	limiter         *catrate.Limiter
	kind            BackendKind
	dispatchTimeout time.Duration
	fatalThreshold  int
}

// --- Base Options ---

// BaseOption configures a Base instance.
type BaseOption interface {
	applyBase(*baseOptions) error
}

// baseOptionImpl implements BaseOption.
type baseOptionImpl struct {
	applyBaseFunc func(*baseOptions) error
}

func (b *baseOptionImpl) applyBase(opts *baseOptions) error {
	return b.applyBaseFunc(opts)
}

// WithBackend selects one of the built-in backends, see Backends.
// Defaults to DefaultBackend.
func WithBackend(kind BackendKind) BaseOption {
	return &baseOptionImpl{func(opts *baseOptions) error {
		opts.kind = kind
		opts.backend = nil
		return nil
	}}
}

// WithBackendImpl uses the provided Backend, instead of a built-in one.
// The Backend must not be shared with any other Base.
func WithBackendImpl(backend Backend) BaseOption {
	return &baseOptionImpl{func(opts *baseOptions) error {
		if backend == nil {
			return invalidArgument("with backend impl", "backend")
		}
		opts.backend = backend
		return nil
	}}
}

// WithLogger attaches a structured logger. A nil logger disables logging,
// which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) BaseOption {
	return &baseOptionImpl{func(opts *baseOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithDispatchTimeout bounds each Dispatch call made by Base.Wait and
// Base.Loop. A negative value (the default) blocks until an event is ready
// or the base is signaled. Zero is rejected, as it would make Base.Loop
// busy-poll, use Base.WaitTimeout for a single non-blocking dispatch.
func WithDispatchTimeout(timeout time.Duration) BaseOption {
	return &baseOptionImpl{func(opts *baseOptions) error {
		if timeout == 0 {
			return newError("with dispatch timeout", KindInvalidArgument, errors.New("timeout must be non-zero"))
		}
		opts.dispatchTimeout = timeout
		return nil
	}}
}

// WithFailureRates configures the sliding window limits on recoverable
// dispatch failures: once a failure exceeds any of the rates, Base.Loop
// returns ErrBackendFailing. An empty map tolerates any number of failures.
// Defaults to DefaultFailureRates.
//
// Rates must be positive, and each longer window must allow more events, at
// a lower average rate, than the shorter windows (see catrate.NewLimiter).
func WithFailureRates(rates map[time.Duration]int) BaseOption {
	return &baseOptionImpl{func(opts *baseOptions) (err error) {
		if len(rates) == 0 {
			opts.limiter = nil
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				err = newError("with failure rates", KindInvalidArgument, fmt.Errorf("%v", r))
			}
		}()
		opts.limiter = catrate.NewLimiter(rates)
		return nil
	}}
}

// WithFatalThreshold sets how many consecutive unrecoverable dispatch
// failures (see IsFatal) Base.Loop tolerates before returning
// ErrBackendFailing. Defaults to DefaultFatalThreshold.
func WithFatalThreshold(n int) BaseOption {
	return &baseOptionImpl{func(opts *baseOptions) error {
		if n < 1 {
			return newError("with fatal threshold", KindInvalidArgument, errors.New("threshold must be positive"))
		}
		opts.fatalThreshold = n
		return nil
	}}
}

// resolveBaseOptions applies BaseOption instances to baseOptions.
func resolveBaseOptions(opts []BaseOption) (*baseOptions, error) {
	cfg := &baseOptions{
		kind:            DefaultBackend,
		dispatchTimeout: -1,
		fatalThreshold:  DefaultFatalThreshold,
		limiter:         catrate.NewLimiter(DefaultFailureRates()),
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyBase(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
