package looper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leandrodaf/midiplayer/internal/logger"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"github.com/leandrodaf/midiplayer/sdk/timing"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testDivision  = 192
	testMaxTicks  = 4988
	testMaxMillis = 12989
)

func msg(delta int, ev contracts.Event) contracts.Message {
	return contracts.Message{DeltaTime: delta, Event: ev}
}

// testSequence is 52 quarter-ish notes at the default tempo: 4988 ticks, 12989ms.
func testSequence() []contracts.Message {
	msgs := []contracts.Message{
		msg(0, contracts.NewTempoEvent(contracts.DefaultTempo)),
		msg(0, contracts.NewMetaEvent(contracts.MetaTimeSignature, []byte{3, 2, 24, 8})),
		msg(0, contracts.NewChannelEvent(contracts.ProgramChange, 0, 1, 0)),
	}
	for i := 0; i < 52; i++ {
		length := 96
		if i == 51 {
			length = 92
		}
		note := byte(60 + i%12)
		msgs = append(msgs,
			msg(0, contracts.NewChannelEvent(contracts.NoteOn, 0, note, 100)),
			msg(length, contracts.NewChannelEvent(contracts.NoteOff, 0, note, 0)),
		)
	}
	return msgs
}

type harness struct {
	t  *testing.T
	vt *timing.Virtual
	l  *Looper

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	events    []contracts.Event
	positions []int
	order     []string
	errs      []error
}

func newHarness(t *testing.T, strategy contracts.Strategy, msgs []contracts.Message) *harness {
	t.Helper()
	vt := timing.NewVirtual()
	l, err := New(msgs, testDivision, Config{
		TimeManager: vt,
		Strategy:    strategy,
		Logger:      logger.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	h := &harness{t: t, vt: vt, l: l, ctx: ctx, cancel: cancel}

	l.OnStarting(func() { h.record("starting") })
	l.OnPlaybackCompletedToEnd(func() { h.record("completed") })
	l.OnFinished(func() {
		h.record("finished")
		cancel()
	})
	l.OnEvent(func(ev contracts.Event) error {
		if ev.Command() == contracts.ControlChange &&
			(ev.Data1 == contracts.CCAllSoundOff || ev.Data1 == contracts.CCResetAllControllers) {
			return nil
		}
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.positions = append(h.positions, l.PlayPosition())
		h.mu.Unlock()
		return nil
	})
	l.OnError(func(_ *Looper, err error) {
		h.mu.Lock()
		h.errs = append(h.errs, err)
		h.mu.Unlock()
	})

	t.Cleanup(func() {
		l.Stop()
		vt.Abort()
		cancel()
	})
	return h
}

func (h *harness) record(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = append(h.order, name)
}

// advance moves virtual time and waits until the loop blocks again, the session finishes, or a
// short grace period passes (the loop may be parked on the pause gate).
func (h *harness) advance(ms int) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 300*time.Millisecond)
	defer cancel()
	if err := h.vt.AdvanceByAndWait(ctx, ms); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		h.t.Fatalf("advance %d: %v", ms, err)
	}
}

func (h *harness) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, o := range h.order {
		if o == name {
			n++
		}
	}
	return n
}

func (h *harness) notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

var strategies = []contracts.Strategy{contracts.StrategyTick, contracts.StrategyBlocking}

func TestNewValidatesInput(t *testing.T) {
	vt := timing.NewVirtual()
	tests := []struct {
		name     string
		msgs     []contracts.Message
		division int
		tm       contracts.TimeManager
		want     error
	}{
		{"smpte division", testSequence(), -25, vt, contracts.ErrUnsupportedTimeFormat},
		{"zero division", testSequence(), 0, vt, contracts.ErrUnsupportedTimeFormat},
		{"empty sequence", nil, testDivision, vt, contracts.ErrEmptySequence},
		{"no time manager", testSequence(), testDivision, nil, ErrNilTimeManager},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.msgs, tt.division, Config{TimeManager: tt.tm})
			if !errors.Is(err, tt.want) {
				t.Fatalf("New()=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestPlayCompletesToEnd(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			msgs := testSequence()
			h := newHarness(t, strategy, msgs)
			h.l.Play()
			if got := h.l.PlayPosition(); got != 0 {
				t.Fatalf("position after Play=%d", got)
			}

			h.advance(1000000)
			waitFor(t, "finished", func() bool { return h.count("finished") == 1 })

			want := []string{"starting", "completed", "finished"}
			got := h.notifications()
			if len(got) != len(want) {
				t.Fatalf("notifications %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("notifications %v, want %v", got, want)
				}
			}
			if pos := h.l.PlayPosition(); pos != testMaxTicks {
				t.Fatalf("PlayPosition()=%d, want %d", pos, testMaxTicks)
			}
			if st := h.l.State(); st != contracts.Stopped {
				t.Fatalf("State()=%v", st)
			}

			h.mu.Lock()
			defer h.mu.Unlock()
			if len(h.events) != len(msgs) {
				t.Fatalf("dispatched %d events, want %d", len(h.events), len(msgs))
			}
			for i, ev := range h.events {
				if ev.Status != msgs[i].Event.Status || ev.Data1 != msgs[i].Event.Data1 {
					t.Fatalf("event %d out of order: %v, want %v", i, ev, msgs[i].Event)
				}
			}
			if ts := h.l.TimeSignature(); ts.Numerator() != 3 || ts.Denominator() != 4 {
				t.Fatalf("TimeSignature()=%v", ts)
			}
		})
	}
}

func TestCompletionTakesExactPlayTime(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			h := newHarness(t, strategy, testSequence())
			h.l.Play()

			h.advance(1000)
			if h.count("completed") != 0 || h.count("finished") != 0 {
				t.Fatal("finished after 1000ms")
			}

			h.advance(testMaxMillis - 1000 - 1)
			if h.count("finished") != 0 {
				t.Fatal("finished one millisecond early")
			}

			h.advance(1)
			waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
			if h.count("completed") != 1 {
				t.Fatal("PlaybackCompletedToEnd not raised")
			}
			if pos := h.l.PlayPosition(); pos != testMaxTicks {
				t.Fatalf("PlayPosition()=%d, want %d", pos, testMaxTicks)
			}
		})
	}
}

func TestPauseAndResume(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			h := newHarness(t, strategy, testSequence())
			h.l.Play()
			h.advance(100)
			if st := h.l.State(); st != contracts.Playing {
				t.Fatalf("State()=%v, want playing", st)
			}

			h.l.Pause()
			// The blocking strategy only sees the request after the pending 250ms wait.
			h.advance(500)
			waitFor(t, "paused", func() bool { return h.l.State() == contracts.Paused })

			frozen := h.l.PlayPosition()
			h.advance(5000)
			if pos := h.l.PlayPosition(); pos != frozen {
				t.Fatalf("position moved while paused: %d -> %d", frozen, pos)
			}

			h.l.Play()
			if st := h.l.State(); st != contracts.Playing {
				t.Fatalf("State()=%v after resume", st)
			}
			h.advance(1000000)
			waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
			if h.count("completed") != 1 {
				t.Fatal("PlaybackCompletedToEnd not raised after resume")
			}
		})
	}
}

func TestStopWhilePaused(t *testing.T) {
	h := newHarness(t, contracts.StrategyTick, testSequence())
	h.l.Play()
	h.advance(100)
	h.l.Pause()
	h.advance(1)
	waitFor(t, "paused", func() bool { return h.l.State() == contracts.Paused })

	h.l.Stop()
	if st := h.l.State(); st != contracts.Stopped {
		t.Fatalf("State()=%v after Stop", st)
	}
	if h.count("completed") != 0 {
		t.Fatal("PlaybackCompletedToEnd raised after Stop")
	}
	if h.count("finished") != 1 {
		t.Fatal("Finished not raised after Stop")
	}
}

func TestIdempotentControls(t *testing.T) {
	h := newHarness(t, contracts.StrategyTick, testSequence())

	h.l.Pause()
	if st := h.l.State(); st != contracts.Stopped {
		t.Fatalf("Pause while stopped changed state to %v", st)
	}
	h.l.Stop()
	if n := len(h.notifications()); n != 0 {
		t.Fatalf("Stop while stopped raised %d notifications", n)
	}

	h.l.Play()
	h.advance(10)
	h.l.Stop()
	h.l.Stop()
	if h.count("finished") != 1 {
		t.Fatalf("Finished raised %d times", h.count("finished"))
	}
}

func TestPlayCancelsUnobservedPause(t *testing.T) {
	h := newHarness(t, contracts.StrategyTick, testSequence())
	h.l.Play()
	h.advance(10)

	h.l.Pause()
	h.l.Play()
	h.advance(10)
	if st := h.l.State(); st != contracts.Playing {
		t.Fatalf("State()=%v, want playing", st)
	}
}

func TestRestartAfterStop(t *testing.T) {
	h := newHarness(t, contracts.StrategyTick, testSequence())
	h.l.Play()
	h.advance(1000)
	if h.l.PlayPosition() == 0 {
		t.Fatal("position did not advance")
	}
	h.l.Stop()

	h.cancel()
	h.ctx, h.cancel = context.WithTimeout(context.Background(), 10*time.Second)
	h.l.OnFinished(h.cancel)

	h.l.Play()
	if pos := h.l.PlayPosition(); pos != 0 {
		t.Fatalf("position after restart=%d", pos)
	}
	waitFor(t, "second start", func() bool { return h.count("starting") == 2 })
	h.advance(1000000)
	waitFor(t, "finished", func() bool { return h.count("finished") == 2 })
	if h.count("completed") != 1 {
		t.Fatalf("completed raised %d times", h.count("completed"))
	}
}

func TestTempoRatioZeroFreezes(t *testing.T) {
	h := newHarness(t, contracts.StrategyTick, testSequence())
	h.l.Play()
	h.advance(1000)
	if h.l.PlayPosition() == 0 {
		t.Fatal("position did not advance")
	}

	h.l.SetTempoRatio(0)
	h.advance(1)
	frozen := h.l.PlayPosition()

	h.advance(100000)
	if pos := h.l.PlayPosition(); pos != frozen {
		t.Fatalf("position moved with ratio 0: %d -> %d", frozen, pos)
	}
	if h.count("finished") != 0 {
		t.Fatal("finished while frozen")
	}

	h.l.SetTempoRatio(1.0)
	h.advance(300)
	if pos := h.l.PlayPosition(); pos <= frozen {
		t.Fatalf("position did not resume from %d", frozen)
	}
	h.advance(1000000)
	waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
	if pos := h.l.PlayPosition(); pos != testMaxTicks {
		t.Fatalf("PlayPosition()=%d, want %d", pos, testMaxTicks)
	}
}

func TestTempoRatioScalesWaits(t *testing.T) {
	h := newHarness(t, contracts.StrategyTick, testSequence())
	h.l.SetTempoRatio(2.0)
	h.l.Play()

	h.advance(testMaxMillis / 2)
	waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
	if h.count("completed") != 1 {
		t.Fatal("double speed playback did not complete in half the time")
	}
}

func TestTempoChangeAffectsPacing(t *testing.T) {
	msgs := []contracts.Message{
		msg(0, contracts.NewTempoEvent(250000)),
		msg(0, contracts.NewChannelEvent(contracts.NoteOn, 0, 60, 100)),
		msg(192, contracts.NewChannelEvent(contracts.NoteOff, 0, 60, 0)),
	}
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			h := newHarness(t, strategy, msgs)
			h.l.Play()
			h.advance(249)
			if h.count("finished") != 0 {
				t.Fatal("finished early")
			}
			if got := h.l.Tempo(); got != 250000 {
				t.Fatalf("Tempo()=%d", got)
			}
			h.advance(1)
			waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
		})
	}
}

func TestSeekReportsTargetImmediately(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			h := newHarness(t, strategy, testSequence())
			h.l.Play()
			h.advance(testMaxTicks / 2)
			if h.l.PlayPosition() == 0 {
				t.Fatal("position did not advance")
			}

			oneTickAfterEnd := testMaxTicks + 1
			h.l.Seek(nil, oneTickAfterEnd)
			if pos := h.l.PlayPosition(); pos != oneTickAfterEnd {
				t.Fatalf("PlayPosition()=%d, want %d", pos, oneTickAfterEnd)
			}
			if h.count("finished") != 0 {
				t.Fatal("finished before the seek was applied")
			}

			h.advance(1000)
			waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
			if h.count("completed") != 1 {
				t.Fatalf("completed raised %d times", h.count("completed"))
			}
			if pos := h.l.PlayPosition(); pos != oneTickAfterEnd {
				t.Fatalf("PlayPosition()=%d after seek past end, want %d", pos, oneTickAfterEnd)
			}

			h.l.Seek(nil, testMaxTicks/2)
			if pos := h.l.PlayPosition(); pos != testMaxTicks/2 {
				t.Fatalf("PlayPosition()=%d, want %d", pos, testMaxTicks/2)
			}
			h.advance(10000)
			if pos := h.l.PlayPosition(); pos != testMaxTicks/2 {
				t.Fatalf("stopped player moved to %d", pos)
			}
		})
	}
}

func TestSeekMidSequence(t *testing.T) {
	h := newHarness(t, contracts.StrategyTick, testSequence())
	h.l.Play()
	h.advance(1000)

	h.l.Seek(nil, 2400)
	h.advance(1)
	if pos := h.l.PlayPosition(); pos != 2400 {
		t.Fatalf("PlayPosition()=%d after seek, want 2400", pos)
	}

	h.advance(1000000)
	waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
	if pos := h.l.PlayPosition(); pos != testMaxTicks {
		t.Fatalf("PlayPosition()=%d, want %d", pos, testMaxTicks)
	}
}

func TestSeekReconstructsStateAndBlocksNotes(t *testing.T) {
	on := contracts.NewChannelEvent(contracts.NoteOn, 0, 60, 100)
	off := contracts.NewChannelEvent(contracts.NoteOff, 0, 60, 0)
	msgs := []contracts.Message{
		msg(0, contracts.NewTempoEvent(400000)),
		msg(0, on),
		msg(96, off),
		msg(0, contracts.NewTempoEvent(300000)),
		msg(0, contracts.NewMetaEvent(contracts.MetaTimeSignature, []byte{3, 2, 24, 8})),
		msg(0, on),
		msg(96, off),
		msg(96, on),
		msg(96, off),
	}

	h := newHarness(t, contracts.StrategyTick, msgs)
	h.l.Seek(nil, 192)
	h.l.Play()
	if pos := h.l.PlayPosition(); pos != 192 {
		t.Fatalf("Play dropped the pending seek: position %d", pos)
	}
	h.advance(0)

	if got := h.l.Tempo(); got != 300000 {
		t.Fatalf("Tempo()=%d, want 300000", got)
	}
	if ts := h.l.TimeSignature(); ts.Numerator() != 3 {
		t.Fatalf("TimeSignature()=%v", ts)
	}

	h.mu.Lock()
	got := append([]contracts.Event(nil), h.events...)
	h.mu.Unlock()
	want := []contracts.Event{msgs[0].Event, msgs[3].Event, msgs[4].Event, msgs[6].Event}
	if len(got) != len(want) {
		t.Fatalf("seek dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Status != want[i].Status || got[i].Data1 != want[i].Data1 {
			t.Fatalf("seek dispatched %v, want %v", got, want)
		}
	}

	h.advance(1000)
	waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
	if pos := h.l.PlayPosition(); pos != 384 {
		t.Fatalf("PlayPosition()=%d, want 384", pos)
	}
}

type terminateAt struct {
	target  int
	elapsed int
	result  contracts.SeekFilterResult
}

func (p *terminateAt) Target() int { return p.target }

func (p *terminateAt) Filter(m contracts.Message) contracts.SeekFilterResult {
	p.elapsed += m.DeltaTime
	if p.elapsed >= p.target {
		return p.result
	}
	return contracts.SeekBlock
}

func TestSeekWithBlockAndTerminate(t *testing.T) {
	on := contracts.NewChannelEvent(contracts.NoteOn, 0, 60, 100)
	off := contracts.NewChannelEvent(contracts.NoteOff, 0, 60, 0)
	msgs := []contracts.Message{msg(0, on), msg(96, off), msg(96, on), msg(96, off)}

	h := newHarness(t, contracts.StrategyTick, msgs)
	h.l.Seek(&terminateAt{target: 96, result: contracts.SeekBlockAndTerminate}, 96)
	h.l.Play()
	h.advance(0)

	h.mu.Lock()
	n := len(h.events)
	h.mu.Unlock()
	if n != 0 {
		t.Fatalf("blocked terminating message was dispatched (%d events)", n)
	}

	h.advance(1000)
	waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) != 2 {
		t.Fatalf("dispatched %d events after seek, want 2", len(h.events))
	}
}

func TestSeekDuringWait(t *testing.T) {
	t.Run("tick strategy applies the seek before dispatching", func(t *testing.T) {
		h := newHarness(t, contracts.StrategyTick, testSequence())
		h.l.Play()
		h.advance(1000)

		h.mu.Lock()
		before := len(h.positions)
		h.mu.Unlock()

		h.l.Seek(nil, 96)
		h.advance(250)

		h.mu.Lock()
		defer h.mu.Unlock()
		if len(h.positions) == before {
			t.Fatal("seek dispatched nothing")
		}
		for _, pos := range h.positions[before:] {
			if pos != 96 {
				t.Fatalf("position %d observed after seeking to 96", pos)
			}
		}
	})

	t.Run("blocking strategy dispatches the waiting message first", func(t *testing.T) {
		h := newHarness(t, contracts.StrategyBlocking, testSequence())
		h.l.Play()
		h.advance(1000)

		h.mu.Lock()
		before := len(h.positions)
		h.mu.Unlock()

		h.l.Seek(nil, 96)
		h.advance(250)

		h.mu.Lock()
		first := h.positions[before]
		h.mu.Unlock()
		if first != 96+96 {
			t.Fatalf("first position after seek=%d, want the known 192 overshoot", first)
		}
		if pos := h.l.PlayPosition(); pos != 96 {
			t.Fatalf("PlayPosition()=%d once the seek was applied, want 96", pos)
		}
	})
}

func TestListenerErrorIsIsolated(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		handler contracts.EventHandler
		check   func(error) bool
	}{
		{
			name: "returned error",
			handler: func(ev contracts.Event) error {
				if ev.Command() == contracts.NoteOn {
					return boom
				}
				return nil
			},
			check: func(err error) bool { return errors.Is(err, boom) },
		},
		{
			name: "panic",
			handler: func(ev contracts.Event) error {
				if ev.Command() == contracts.NoteOn {
					panic("some exception")
				}
				return nil
			},
			check: func(err error) bool { return errors.Is(err, ErrListenerPanic) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, contracts.StrategyTick, testSequence())

			var (
				mu     sync.Mutex
				sender *Looper
			)
			h.l.OnEvent(tt.handler)
			h.l.OnError(func(l *Looper, err error) {
				mu.Lock()
				sender = l
				mu.Unlock()
			})

			h.l.Play()
			h.advance(1000)
			waitFor(t, "error", func() bool {
				mu.Lock()
				defer mu.Unlock()
				return sender != nil
			})

			mu.Lock()
			if sender != h.l {
				t.Fatal("error listener did not receive the looper")
			}
			mu.Unlock()

			h.mu.Lock()
			defer h.mu.Unlock()
			if len(h.errs) != 1 || !tt.check(h.errs[0]) {
				t.Fatalf("errors %v", h.errs)
			}
			for _, ev := range h.events {
				if ev.Command() == contracts.NoteOff {
					t.Fatal("events were dispatched after the failure")
				}
			}
			for _, o := range h.order {
				if o == "finished" || o == "completed" {
					t.Fatalf("%s raised after a failure", o)
				}
			}
			if st := h.l.State(); st != contracts.Stopped {
				t.Fatalf("State()=%v after failure", st)
			}
		})
	}
}

// stuckTimeManager ignores cancellation until released.
type stuckTimeManager struct {
	release chan struct{}
}

func (s *stuckTimeManager) WaitBy(context.Context, int) error {
	<-s.release
	return nil
}

func TestStopTimeoutIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tm := &stuckTimeManager{release: make(chan struct{})}
	l, err := New(testSequence(), testDivision, Config{
		TimeManager: tm,
		StopTimeout: 20 * time.Millisecond,
		Logger:      logger.NewZapLoggerFrom(zap.New(core)),
	})
	if err != nil {
		t.Fatal(err)
	}

	l.Play()
	l.Stop()
	close(tm.release)

	if logs.FilterMessage("playback goroutine did not stop in time").Len() != 1 {
		t.Fatalf("stop timeout not logged: %v", logs.All())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("playback goroutine did not exit after release: %v", err)
	}
	if st := l.State(); st != contracts.Stopped {
		t.Fatalf("State()=%v", st)
	}
}

// quarterNote lasts 250ms at the default tempo.
func quarterNote() []contracts.Message {
	return []contracts.Message{
		msg(0, contracts.NewChannelEvent(contracts.NoteOn, 0, 60, 100)),
		msg(testDivision/2, contracts.NewChannelEvent(contracts.NoteOff, 0, 60, 0)),
	}
}

func newTickLooper(t *testing.T) *Looper {
	t.Helper()
	tick, err := timing.NewTick(contracts.TimerConfig{Interval: time.Millisecond}, logger.NewNopLogger())
	if err != nil {
		t.Skipf("no high-resolution counter: %v", err)
	}
	l, err := New(quarterNote(), testDivision, Config{
		TimeManager: tick,
		Strategy:    contracts.StrategyTick,
		Logger:      logger.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(l.Stop)
	return l
}

func TestRestartFromFinishedListenerOnTickTimer(t *testing.T) {
	l := newTickLooper(t)

	var finished atomic.Int32
	l.OnFinished(func() {
		if finished.Add(1) == 1 {
			l.Play()
			time.Sleep(50 * time.Millisecond)
		}
	})

	l.Play()
	waitFor(t, "second session to finish", func() bool { return finished.Load() == 2 })
	if st := l.State(); st != contracts.Stopped {
		t.Fatalf("State()=%v after the second session", st)
	}
	if pos := l.PlayPosition(); pos != testDivision/2 {
		t.Fatalf("PlayPosition()=%d, want %d", pos, testDivision/2)
	}
}

func TestRestartOnceStoppedOnTickTimer(t *testing.T) {
	l := newTickLooper(t)

	var finished atomic.Int32
	l.OnFinished(func() {
		finished.Add(1)
		time.Sleep(20 * time.Millisecond)
	})

	l.Play()
	waitFor(t, "first session to stop", func() bool { return l.State() == contracts.Stopped })
	l.Play()
	waitFor(t, "second session to finish", func() bool { return finished.Load() == 2 })
	if pos := l.PlayPosition(); pos != testDivision/2 {
		t.Fatalf("PlayPosition()=%d, want %d", pos, testDivision/2)
	}
}

func TestRestartFromListenerSurvivesLaterFailure(t *testing.T) {
	h := newHarness(t, contracts.StrategyTick, testSequence())

	var restarted atomic.Bool
	h.l.OnPlaybackCompletedToEnd(func() {
		if restarted.CompareAndSwap(false, true) {
			h.l.Play()
			panic("boom")
		}
	})

	h.l.Play()
	h.advance(testMaxMillis)
	waitFor(t, "second start", func() bool { return h.count("starting") == 2 })
	waitFor(t, "error", func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.errs) == 1
	})
	if st := h.l.State(); st != contracts.Playing {
		t.Fatalf("State()=%v, the restarted session is still playing", st)
	}

	h.l.Pause()
	h.advance(1)
	waitFor(t, "pause", func() bool { return h.l.State() == contracts.Paused })

	h.l.Play()
	h.advance(1000000)
	waitFor(t, "finished", func() bool { return h.count("finished") == 1 })
	if pos := h.l.PlayPosition(); pos != testMaxTicks {
		t.Fatalf("PlayPosition()=%d, want %d", pos, testMaxTicks)
	}
}
