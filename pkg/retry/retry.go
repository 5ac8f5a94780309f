// Package retry implements jittered exponential backoff for transient
// failures such as socket dials and broker submissions.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy defines how an operation is retried.
type Policy struct {
	// MaxAttempts of 0 retries forever.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy suits short request/response calls.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// DialPolicy suits long-lived connection establishment; it never gives up
// and caps the backoff at 30s.
var DialPolicy = Policy{
	MaxAttempts:    0,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     30 * time.Second,
}

// IsTransientFunc reports whether an error is worth retrying. A nil func
// treats every error as transient.
type IsTransientFunc func(error) bool

// NotifyFunc observes each failed attempt before the backoff sleep.
type NotifyFunc func(attempt int, err error, backoff time.Duration)

// Do runs fn until it succeeds, the error is permanent, the attempt budget
// is spent, or ctx is cancelled.
func Do(ctx context.Context, policy Policy, isTransient IsTransientFunc, fn func() error) error {
	return DoNotify(ctx, policy, isTransient, nil, fn)
}

// DoNotify is Do with a per-failure callback.
func DoNotify(ctx context.Context, policy Policy, isTransient IsTransientFunc, notify NotifyFunc, fn func() error) error {
	backoff := policy.InitialBackoff
	if backoff <= 0 {
		backoff = DefaultPolicy.InitialBackoff
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if isTransient != nil && !isTransient(err) {
			return err
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return err
		}

		// jitter of up to half the current backoff avoids thundering
		// reconnects after a broker restart
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		if notify != nil {
			notify(attempt, err, sleep)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = min(backoff*2, policy.MaxBackoff)
	}
}
