// Package retry provides the typed retry policies used by the long-running
// connection and registration loops.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy paces an unbounded retry loop.
type Policy struct {
	next backoff.BackOff
}

// FixedDelay returns a policy sleeping a constant delay between attempts,
// with no attempt limit. Both the broker and catalog loops use this shape.
func FixedDelay(delay time.Duration) Policy {
	return Policy{next: backoff.NewConstantBackOff(delay)}
}

// Wait sleeps for the policy's next interval. It returns the context error
// when cancelled mid-sleep so callers can exit their loop quietly.
func (p Policy) Wait(ctx context.Context) error {
	t := time.NewTimer(p.next.NextBackOff())
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
