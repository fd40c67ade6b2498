// Package timer provides a periodic callback source with microsecond accuracy.
package timer

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiplayer/internal/clock"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"github.com/petermattis/goid"
)

// TickInfo describes a single timer firing.
type TickInfo struct {
	Count                int64 // Number of boundaries crossed so far, dropped ones included.
	ElapsedMicroseconds  int64 // Clock reading when the tick fired.
	LateByMicroseconds   int64 // How far past its boundary the tick fired.
	CallbackMicroseconds int64 // Duration of the previous listener call.
}

// Listener is called synchronously on the timer goroutine for every tick that is not dropped.
type Listener func(TickInfo)

// MicroTimer fires a listener on every interval boundary. It spins on a dedicated OS thread
// between boundaries, so it trades one busy core for sub-millisecond accuracy. A listener slower
// than the interval delays the following ticks and makes them more likely to be dropped.
type MicroTimer struct {
	clock  *clock.Clock
	logger contracts.Logger

	interval      atomic.Int64 // microseconds
	lateTolerance atomic.Int64 // microseconds; <= 0 never drops
	spinWindow    atomic.Int64 // microseconds; <= 0 always spins
	listener      atomic.Pointer[Listener]

	mu      sync.Mutex
	current *worker
}

// worker is the state of one timer goroutine. Abort detaches it so a new one can be started
// while the old one winds down.
type worker struct {
	stop chan struct{}
	once sync.Once
	done chan struct{}
	goid atomic.Int64
}

func (w *worker) requestStop() {
	w.once.Do(func() { close(w.stop) })
}

func (w *worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// New creates a stopped timer with a one millisecond interval.
func New(clk *clock.Clock, logger contracts.Logger) *MicroTimer {
	t := &MicroTimer{clock: clk, logger: logger}
	t.interval.Store(1000)
	return t
}

// Interval returns the interval in microseconds.
func (t *MicroTimer) Interval() int64 {
	return t.interval.Load()
}

// SetInterval sets the interval in microseconds. A running timer uses the new value from the
// next boundary on. A running timer whose interval becomes non-positive stops.
func (t *MicroTimer) SetInterval(microseconds int64) {
	t.interval.Store(microseconds)
}

// LateTolerance returns how late, in microseconds, a tick may fire before it is dropped.
func (t *MicroTimer) LateTolerance() int64 {
	return t.lateTolerance.Load()
}

// SetLateTolerance sets how late, in microseconds, a tick may fire before it is dropped.
// Non-positive values never drop ticks.
func (t *MicroTimer) SetLateTolerance(microseconds int64) {
	t.lateTolerance.Store(microseconds)
}

// SetSpinWindow makes the timer sleep until the next boundary is closer than the window and
// spin only for the remainder. Zero spins for the whole interval.
func (t *MicroTimer) SetSpinWindow(microseconds int64) {
	t.spinWindow.Store(microseconds)
}

// SetListener replaces the listener. Passing nil removes it.
func (t *MicroTimer) SetListener(fn Listener) {
	if fn == nil {
		t.listener.Store(nil)
		return
	}
	t.listener.Store(&fn)
}

// Enabled reports whether the timer goroutine is running and has not been asked to stop.
func (t *MicroTimer) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && !t.current.stopping()
}

// Start launches the timer goroutine. It does nothing when the timer already runs or the
// interval is not positive.
func (t *MicroTimer) Start() {
	if t.interval.Load() <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && !t.current.stopping() {
		return
	}

	w := &worker{stop: make(chan struct{}), done: make(chan struct{})}
	t.current = w
	go t.run(w)
	t.logger.Debug("micro timer started", t.logger.Field().Int64("intervalMicros", t.interval.Load()))
}

// Stop asks the timer goroutine to exit after the current tick. It does not wait.
func (t *MicroTimer) Stop() {
	t.mu.Lock()
	w := t.current
	t.mu.Unlock()
	if w != nil {
		w.requestStop()
	}
}

// StopAndWait stops the timer and waits up to timeout for its goroutine to exit. It reports
// whether the goroutine exited in time. Called from the listener it returns true right away.
func (t *MicroTimer) StopAndWait(timeout time.Duration) bool {
	t.mu.Lock()
	w := t.current
	t.mu.Unlock()
	if w == nil {
		return true
	}

	w.requestStop()
	if id := w.goid.Load(); id != 0 && id == goid.Get() {
		return true
	}

	wait := time.NewTimer(timeout)
	defer wait.Stop()
	select {
	case <-w.done:
		return true
	case <-wait.C:
		return false
	}
}

// Abort stops the timer without waiting and detaches its goroutine, which exits at its next
// check. A new Start does not wait for it.
func (t *MicroTimer) Abort() {
	t.mu.Lock()
	w := t.current
	t.current = nil
	t.mu.Unlock()
	if w != nil {
		w.requestStop()
		t.logger.Debug("micro timer aborted")
	}
}

func (t *MicroTimer) run(w *worker) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)
	defer t.detach(w)

	w.goid.Store(goid.Get())

	var (
		count        int64
		callbackTime int64
		next         = t.clock.ElapsedMicroseconds() + t.interval.Load()
	)

	for !w.stopping() {
		now, ok := t.waitUntil(w, next)
		if !ok {
			return
		}

		interval := t.interval.Load()
		if interval <= 0 {
			return
		}

		count++
		lateBy := now - next
		next += interval

		tolerance := t.lateTolerance.Load()
		if tolerance <= 0 {
			tolerance = math.MaxInt64
		}
		if lateBy > tolerance {
			continue
		}

		fn := t.listener.Load()
		if fn == nil {
			continue
		}
		t.notify(*fn, TickInfo{
			Count:                count,
			ElapsedMicroseconds:  now,
			LateByMicroseconds:   lateBy,
			CallbackMicroseconds: callbackTime,
		})
		callbackTime = t.clock.ElapsedMicroseconds() - now
	}
}

// notify calls the listener for one tick. A panic is logged and the timer keeps running.
func (t *MicroTimer) notify(fn Listener, info TickInfo) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("micro timer listener panicked",
				t.logger.Field().Int64("tick", info.Count),
				t.logger.Field().String("panic", fmt.Sprint(r)))
		}
	}()
	fn(info)
}

// waitUntil blocks until the clock reaches deadline. It returns false when a stop is requested
// first.
func (t *MicroTimer) waitUntil(w *worker, deadline int64) (int64, bool) {
	for {
		now := t.clock.ElapsedMicroseconds()
		remaining := deadline - now
		if remaining <= 0 {
			return now, true
		}
		if w.stopping() {
			return now, false
		}
		if window := t.spinWindow.Load(); window > 0 && remaining > window {
			time.Sleep(time.Duration(remaining-window) * time.Microsecond)
			continue
		}
		runtime.Gosched()
	}
}

func (t *MicroTimer) detach(w *worker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == w {
		t.current = nil
	}
}
