package timing

import (
	"context"
	"sync"
	"time"

	"github.com/leandrodaf/midiplayer/internal/clock"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// Adjusting waits on the wall clock and subtracts the drift accumulated by earlier waits, so
// that many short waits do not add up to a late playback.
type Adjusting struct {
	clock *clock.Clock

	mu        sync.Mutex
	started   bool
	startedAt int64 // microseconds
	nominal   int64 // microseconds requested since startedAt
}

// NewAdjusting creates a wall-clock time manager measuring with clk.
func NewAdjusting(clk *clock.Clock) *Adjusting {
	return &Adjusting{clock: clk}
}

// WaitBy sleeps for the requested milliseconds minus the drift accumulated since the first
// wait. Non-positive durations return immediately.
func (a *Adjusting) WaitBy(ctx context.Context, milliseconds int) error {
	if milliseconds <= 0 {
		return nil
	}

	requested := int64(milliseconds) * 1000
	delta := requested

	a.mu.Lock()
	now := a.clock.ElapsedMicroseconds()
	if a.started {
		delta -= (now - a.startedAt) - a.nominal
	} else {
		a.started = true
		a.startedAt = now
	}
	a.nominal += requested
	a.mu.Unlock()

	if delta <= 0 {
		return ctx.Err()
	}
	return sleep(ctx, time.Duration(delta)*time.Microsecond)
}

// Resync forgets the accumulated drift. The next wait starts a new measurement.
func (a *Adjusting) Resync() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	a.nominal = 0
}

var (
	_ contracts.TimeManager = (*Adjusting)(nil)
	_ contracts.Resyncer    = (*Adjusting)(nil)
)
