// Package upload owns outbound batch delivery: compression, bounded
// retries, the disk-backed offline queue, and the replay loop that
// drains it when connectivity returns.
package upload

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the bounded-retry-with-backoff primitive shared by live
// submission and offline replay.
type Policy struct {
	// Attempts beyond the first.
	MaxRetries uint64
	// First backoff pause; doubles per attempt.
	InitialInterval time.Duration
	// Randomize spreads pauses to avoid synchronized reconnects.
	// Tests disable it for determinism.
	Randomize bool
}

// DefaultPolicy matches the field deployment: one initial attempt plus
// two retries, pausing 1s then 2s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, InitialInterval: time.Second, Randomize: true}
}

// Do runs op with bounded exponential backoff. notify, if non-nil, is
// invoked before each pause with the attempt's error. Wrapping an error
// in backoff.Permanent stops retrying immediately.
func (p Policy) Do(ctx context.Context, op func() error, notify func(error)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	if !p.Randomize {
		b.RandomizationFactor = 0
	}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
	return backoff.RetryNotify(op, wrapped, func(err error, _ time.Duration) {
		if notify != nil {
			notify(err)
		}
	})
}
