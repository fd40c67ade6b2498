package timing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiplayer/internal/clock"
	"github.com/leandrodaf/midiplayer/internal/timer"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

const tickStopTimeout = 100 * time.Millisecond

// Tick counts micro timer ticks. A wait of n milliseconds returns once the ticks covering n
// milliseconds have fired after the previous wait, so a slow caller catches up instead of
// drifting.
type Tick struct {
	timer  *timer.MicroTimer
	logger contracts.Logger

	ticks    atomic.Int64
	consumed atomic.Int64
	signal   chan struct{}
}

// NewTick creates a tick time manager driven by its own micro timer. The timer runs between
// Start and Stop.
func NewTick(cfg contracts.TimerConfig, logger contracts.Logger) (*Tick, error) {
	clk, err := clock.New()
	if err != nil {
		return nil, err
	}

	mt := timer.New(clk, logger)
	if cfg.Interval > 0 {
		mt.SetInterval(cfg.Interval.Microseconds())
	}
	mt.SetLateTolerance(cfg.LateTolerance.Microseconds())
	mt.SetSpinWindow(cfg.SpinWindow.Microseconds())

	t := &Tick{timer: mt, logger: logger, signal: make(chan struct{}, 1)}
	mt.SetListener(t.onTick)
	return t, nil
}

func (t *Tick) onTick(timer.TickInfo) {
	t.ticks.Add(1)
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// Start starts the micro timer and forgets ticks from earlier runs.
func (t *Tick) Start() error {
	t.Resync()
	t.timer.Start()
	if !t.timer.Enabled() {
		return ErrTimerNotStarted
	}
	return nil
}

// Stop stops the micro timer, aborting it when it does not exit in time.
func (t *Tick) Stop() {
	if !t.timer.StopAndWait(tickStopTimeout) {
		t.logger.Warn("micro timer did not stop in time; aborting", t.logger.Field().Duration("timeout", tickStopTimeout))
		t.timer.Abort()
	}
}

// Resync drops ticks that fired without a waiter, such as during a pause.
func (t *Tick) Resync() {
	t.consumed.Store(t.ticks.Load())
}

// WaitBy blocks until the ticks covering the requested milliseconds have fired.
func (t *Tick) WaitBy(ctx context.Context, milliseconds int) error {
	if milliseconds <= 0 {
		return nil
	}

	target := t.consumed.Add(t.ticksFor(milliseconds))
	for t.ticks.Load() < target {
		select {
		case <-t.signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *Tick) ticksFor(milliseconds int) int64 {
	interval := t.timer.Interval()
	if interval <= 0 {
		return int64(milliseconds)
	}
	n := (int64(milliseconds)*1000 + interval - 1) / interval
	if n < 1 {
		n = 1
	}
	return n
}

var (
	_ contracts.TimeManager = (*Tick)(nil)
	_ contracts.Lifecycle   = (*Tick)(nil)
	_ contracts.Resyncer    = (*Tick)(nil)
)
