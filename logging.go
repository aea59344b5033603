// logging.go - structured logging for the reactor
//
// Logging goes through a github.com/joeycumines/logiface logger, configured
// per Base via WithLogger. The logger may be nil, in which case nothing is
// logged (logiface builders are nil safe).
//
// Every entry carries a "category" field: "lifecycle", "dispatch", "wake",
// or "worker".

package gevent

import (
	"log"

	"github.com/joeycumines/logiface"
)

const (
	categoryLifecycle = "lifecycle"
	categoryDispatch  = "dispatch"
	categoryWake      = "wake"
	categoryWorker    = "worker"
)

// childLogger returns a logger annotated with the base's identity.
func childLogger(logger *logiface.Logger[logiface.Event], id uint64, backend string) *logiface.Logger[logiface.Event] {
	c := logger.Clone()
	if c == nil {
		return logger
	}
	return c.Uint64("base", id).
		Str("backend", backend).
		Logger()
}

func (b *Base) logDebug(category, msg string) {
	b.logger.Debug().
		Str("category", category).
		Log(msg)
}

// logDispatchError logs a failed Dispatch call. The loop continues unless
// the failure policy says otherwise.
func (b *Base) logDispatchError(err error, consecutive int) {
	b.logger.Err().
		Str("category", categoryDispatch).
		Int("consecutive", consecutive).
		Bool("fatal", IsFatal(err)).
		Err(err).
		Log("dispatch failed")
}

func (b *Base) logWakeError(op string, err error) {
	b.logger.Warning().
		Str("category", categoryWake).
		Str("op", op).
		Err(err).
		Log("wake pipe write failed")
}

// logCritical logs the loop being aborted. A panicking writer must not take
// down the reactor goroutine, so that case falls back to the standard log
// package.
func (b *Base) logCritical(msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("CRITICAL: gevent: %s: %v (logger panicked: %v)", msg, err, r)
		}
	}()
	b.logger.Crit().
		Str("category", categoryDispatch).
		Err(err).
		Log(msg)
}
