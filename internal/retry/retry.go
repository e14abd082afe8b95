// Package retry wraps cenkalti/backoff/v4 into a bounded-attempt retry:
// sleep briefly and retry a lookup up to N times with bounded backoff,
// releasing any lock before sleeping and never holding one across it.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Budget bounds a retry loop by attempt count rather than elapsed time,
// since callers pass a caller-supplied attempt bound (typically 1-10)
// rather than a deadline.
type Budget struct {
	MaxAttempts int
	Base        time.Duration
}

// DefaultBudget is the address-not-found retry shape: a 60ms inter-attempt
// sleep between lookup attempts.
func DefaultBudget(maxAttempts int) Budget {
	return Budget{MaxAttempts: maxAttempts, Base: 60 * time.Millisecond}
}

// Do runs fn up to b.MaxAttempts times with capped exponential backoff
// starting at b.Base, stopping as soon as fn returns found=true or a
// non-nil error. It returns the last (found, err) pair. fn must not hold
// any lock across the call — Do sleeps between attempts.
func Do(b Budget, fn func(attempt int) (found bool, err error)) (bool, error) {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.Base
	bo.MaxInterval = b.Base * 8
	bo.Multiplier = 1.5
	bo.RandomizationFactor = 0
	bo.Reset()

	for attempt := 1; ; attempt++ {
		found, err := fn(attempt)
		if found || err != nil {
			return found, err
		}
		if attempt >= b.MaxAttempts {
			return false, nil
		}
		time.Sleep(bo.NextBackOff())
	}
}
