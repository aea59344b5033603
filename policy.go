package gevent

import (
	"fmt"

	"github.com/joeycumines/go-catrate"
)

// failurePolicy decides when repeated dispatch failures stop the loop.
// Only accessed from the reactor goroutine.
type failurePolicy struct {
	limiter     *catrate.Limiter
	threshold   int
	consecutive int
	fatal       int
}

// failureCategory is the catrate category for dispatch failures, one
// limiter is owned by each base.
const failureCategory = "dispatch"

// observe records a dispatch outcome, returning a non-nil error if the
// loop must stop.
func (p *failurePolicy) observe(err error) error {
	if err == nil {
		p.consecutive = 0
		p.fatal = 0
		return nil
	}

	p.consecutive++

	if IsFatal(err) {
		p.fatal++
		if p.fatal >= p.threshold {
			return fmt.Errorf("%w: %d consecutive unrecoverable failures: %w", ErrBackendFailing, p.fatal, err)
		}
		return nil
	}
	p.fatal = 0

	if _, ok := p.limiter.Allow(failureCategory); !ok {
		return fmt.Errorf("%w: failure rate exceeded: %w", ErrBackendFailing, err)
	}

	return nil
}
