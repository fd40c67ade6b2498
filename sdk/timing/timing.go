// Package timing provides the time managers that pace playback.
package timing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNegativeAdvance is returned when virtual time is moved backwards.
	ErrNegativeAdvance = errors.New("virtual time can only advance by a non-negative amount")
	// ErrTimerNotStarted is returned when the micro timer refuses to start, which happens when its
	// interval is not positive.
	ErrTimerNotStarted = errors.New("micro timer did not start")
)

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
