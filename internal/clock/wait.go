// Package clock holds the time sources of the syncer: row version stamps and cancelable waits.
package clock

import (
	"context"
	"time"
)

// Wait blocks for d or until ctx ends, returning ctx's error in the latter case.
// A non-positive d only reports whether ctx has already ended.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
