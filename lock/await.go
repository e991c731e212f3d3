package lock

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	vegetables "github.com/stevearc/eat-your-vegetables"
)

// Await acquires the named lock, retrying Busy results with exponential
// backoff for at most maxWait. This is the contention policy for callers
// that would rather wait than skip — the beat and the execution guard do
// NOT use it; a skipped periodic task simply waits for its next tick.
//
// Returns vegetables.ErrBusy if maxWait elapses without an acquisition,
// or the context's error if it is cancelled first.
func Await(ctx context.Context, f Factory, name string, ttl, maxWait time.Duration) (*Lock, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = maxWait

	return backoff.RetryWithData(func() (*Lock, error) {
		l, err := f.Acquire(ctx, name, ttl)
		if err == nil {
			return l, nil
		}
		if errors.Is(err, vegetables.ErrBusy) {
			return nil, err // retryable
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}
