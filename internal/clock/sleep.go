// Package clock holds the time helpers shared by the node loops.
package clock

import (
	"context"
	"time"
)

// SleepWithContext waits for d or until ctx is done. A non-positive d only
// reports the context state.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	return WaitForSignal(ctx, d, nil)
}

// WaitForSignal returns when d elapses, signal fires or ctx is done. A nil
// signal never fires.
func WaitForSignal(ctx context.Context, d time.Duration, signal <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-signal:
		return nil
	case <-timer.C:
		return nil
	}
}

// BlockTime truncates t to whole seconds in UTC, the resolution a block
// header can carry, and never returns a value before floor.
func BlockTime(t, floor time.Time) time.Time {
	ts := time.Unix(t.Unix(), 0).UTC()
	if ts.Before(floor) {
		return floor
	}
	return ts
}
