// Package retry runs an operation with capped exponential backoff and full
// jitter. Callers classify errors so poison input fails fast while transient
// faults get their attempts.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type Class int

const (
	Retryable Class = iota
	Fatal
)

type Policy struct {
	MaxAttempts int           // total tries, e.g. 3
	Base        time.Duration // first backoff ceiling, e.g. 200ms
	Cap         time.Duration // backoff ceiling, e.g. 2s

	// Classify decides whether an error is worth another attempt.
	// Nil means every non-nil error is Retryable.
	Classify func(error) Class

	// OnRetry fires before each backoff sleep, for logging.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do invokes fn until it succeeds, returns a Fatal error, or attempts run
// out. The sleep before attempt n is uniform in [0, min(Cap, Base*2^(n-1))]
// so synchronized consumers spread out instead of hammering in lockstep.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Base <= 0 {
		p.Base = 200 * time.Millisecond
	}
	if p.Cap <= 0 {
		p.Cap = 2 * time.Second
	}
	classify := p.Classify
	if classify == nil {
		classify = func(error) Class { return Retryable }
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if classify(err) == Fatal {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		ceiling := p.Base << (attempt - 1)
		if ceiling > p.Cap {
			ceiling = p.Cap
		}
		wait := time.Duration(rand.Int63n(int64(ceiling) + 1))

		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry: exhausted with no error")
	}
	return lastErr
}
