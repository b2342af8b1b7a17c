// Package clock provides a mockable time source, the way
// util/clock does in the teacher repo, so the signing and cluster-state
// loops can be driven deterministically in tests instead of depending
// on wall-clock sleeps.
package clock

import (
	"context"
	"time"
)

// TimeSource is the time dependency every loop in this module takes
// instead of calling time.Now/time.Sleep directly.
type TimeSource interface {
	Now() time.Time
	SleepContext(ctx context.Context, d time.Duration) error
}

// System is the TimeSource backed by the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// SleepContext blocks for d or until ctx is done, whichever comes
// first, returning ctx.Err() in the latter case.
func (System) SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
