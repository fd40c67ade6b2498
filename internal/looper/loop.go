package looper

import (
	"fmt"
	"math"
	"sync"

	"github.com/leandrodaf/midiplayer/internal/notify"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// run is the body of the playback goroutine.
func (l *Looper) run(s *session) {
	defer close(s.done)
	defer s.cancel()

	if err := l.guard(func() error { return l.play(s) }); err != nil {
		l.mu.Lock()
		l.endSession(s)
		l.mu.Unlock()
		l.logger.Error("playback failed", l.logger.Field().Error("error", err))
		l.raiseError(err)
	}
}

// guard runs fn and turns a panic into an error.
func (l *Looper) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w: %w", ErrListenerPanic, e)
				return
			}
			err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
		}
	}()
	return fn()
}

func (l *Looper) play(s *session) error {
	// The time manager is shared across sessions and is stopped before the state turns Stopped.
	stopTimeManager := func() {}
	if lc, ok := l.tm.(contracts.Lifecycle); ok {
		if err := lc.Start(); err != nil {
			return fmt.Errorf("start time manager: %w", err)
		}
		var once sync.Once
		stopTimeManager = func() { once.Do(lc.Stop) }
		defer stopTimeManager()
	}
	if rs, ok := l.tm.(contracts.Resyncer); ok {
		rs.Resync()
	}

	if err := l.controlAllChannels(contracts.CCResetAllControllers); err != nil {
		return err
	}
	if err := l.controlAllChannels(contracts.CCAllSoundOff); err != nil {
		return err
	}
	if err := raise(&l.starting); err != nil {
		return err
	}

	var (
		atEnd bool
		err   error
	)
	switch l.strategy {
	case contracts.StrategyBlocking:
		atEnd, err = l.blockingLoop(s)
	default:
		atEnd, err = l.tickLoop(s)
	}
	if err != nil {
		return err
	}

	if err := l.controlAllChannels(contracts.CCAllSoundOff); err != nil {
		return err
	}

	stopTimeManager()

	l.mu.Lock()
	l.endSession(s)
	l.mu.Unlock()

	l.logger.Info("playback session ended",
		l.logger.Field().Bool("completedToEnd", atEnd),
		l.logger.Field().Int("position", l.PlayPosition()))

	if atEnd {
		if err := raise(&l.completed); err != nil {
			return err
		}
	}
	return raise(&l.finished)
}

// endSession moves to Stopped unless a newer session has already replaced s. Callers hold l.mu.
func (l *Looper) endSession(s *session) {
	if l.current != s {
		return
	}
	l.pauseRequested = false
	if l.gate != nil {
		close(l.gate)
		l.gate = nil
	}
	l.state.Store(int32(contracts.Stopped))
}

// tickLoop waits one millisecond per iteration and counts down the wait of the next message.
// Requests are observed on every iteration. It reports whether the end of the sequence was
// reached.
func (l *Looper) tickLoop(s *session) (bool, error) {
	idx := 0
	countdown := -1 // not computed yet

	for {
		next, seeked, stopped, err := l.handleRequests(s)
		if stopped || err != nil {
			return false, err
		}
		if seeked {
			idx = next
			countdown = -1
		}

		ratio := l.TempoRatio()
		if countdown < 0 && idx < len(l.messages) {
			countdown = l.countdown(l.messages[idx].DeltaTime, ratio)
		}
		for countdown == 0 && idx < len(l.messages) {
			if err := l.dispatch(l.messages[idx]); err != nil {
				return false, err
			}
			idx++
			countdown = -1
			if idx < len(l.messages) {
				countdown = l.countdown(l.messages[idx].DeltaTime, ratio)
			}
		}
		if idx >= len(l.messages) {
			return true, nil
		}

		if err := l.tm.WaitBy(s.ctx, 1); err != nil {
			if s.ctx.Err() != nil {
				return false, nil
			}
			return false, fmt.Errorf("wait: %w", err)
		}
		if countdown > 0 && l.TempoRatio() > 0 {
			countdown--
		}
	}
}

// blockingLoop waits for the whole interval before each message. A pause or seek requested
// during a wait is seen only after the wait returns and the waiting message was dispatched.
func (l *Looper) blockingLoop(s *session) (bool, error) {
	idx := 0

	for idx < len(l.messages) {
		next, seeked, stopped, err := l.handleRequests(s)
		if stopped || err != nil {
			return false, err
		}
		if seeked {
			idx = next
			continue
		}

		msg := l.messages[idx]
		if msg.DeltaTime > 0 {
			ratio := l.TempoRatio()
			wait := 1
			if ratio > 0 {
				wait = l.countdown(msg.DeltaTime, ratio)
			}
			if err := l.tm.WaitBy(s.ctx, wait); err != nil {
				if s.ctx.Err() != nil {
					return false, nil
				}
				return false, fmt.Errorf("wait: %w", err)
			}
			if ratio <= 0 {
				continue
			}
			l.position.Add(int64(msg.DeltaTime))
		}

		if err := l.process(msg); err != nil {
			return false, err
		}
		idx++
	}
	return true, nil
}

// handleRequests observes stop, pause and seek requests. When a seek was applied it returns the
// index playback continues from.
func (l *Looper) handleRequests(s *session) (next int, seeked, stopped bool, err error) {
	if s.ctx.Err() != nil {
		return 0, false, true, nil
	}

	if stopped, err := l.handlePause(s); stopped || err != nil {
		return 0, false, stopped, err
	}

	l.mu.Lock()
	processor := l.seek
	l.seek = nil
	l.mu.Unlock()
	if processor == nil {
		return 0, false, false, nil
	}

	next, err = l.applySeek(processor)
	if err != nil {
		return 0, false, false, err
	}
	return next, true, false, nil
}

func (l *Looper) handlePause(s *session) (stopped bool, err error) {
	l.mu.Lock()
	if !l.pauseRequested {
		l.mu.Unlock()
		return false, nil
	}
	l.pauseRequested = false
	gate := make(chan struct{})
	l.gate = gate
	l.state.Store(int32(contracts.Paused))
	l.mu.Unlock()

	l.logger.Debug("playback paused", l.logger.Field().Int("position", l.PlayPosition()))
	if err := l.controlAllChannels(contracts.CCAllSoundOff); err != nil {
		return false, err
	}

	select {
	case <-gate:
	case <-s.ctx.Done():
		return true, nil
	}

	l.logger.Debug("playback resumed", l.logger.Field().Int("position", l.PlayPosition()))
	if rs, ok := l.tm.(contracts.Resyncer); ok {
		rs.Resync()
	}
	return false, nil
}

// applySeek replays the sequence from the start through the processor and returns the index
// playback continues from.
func (l *Looper) applySeek(processor contracts.SeekProcessor) (int, error) {
	target := processor.Target()
	l.logger.Debug("seeking", l.logger.Field().Int("target", target))

	if err := l.controlAllChannels(contracts.CCAllSoundOff); err != nil {
		return 0, err
	}
	l.resetMusicalState()

	idx := 0
	for idx < len(l.messages) {
		msg := l.messages[idx]
		idx++

		result := processor.Filter(msg)
		if result.Passes() {
			if err := l.process(msg); err != nil {
				return 0, err
			}
		}
		if result.Terminates() {
			break
		}
	}

	l.mu.Lock()
	if l.seek == nil {
		l.position.Store(int64(target))
	}
	l.mu.Unlock()

	if rs, ok := l.tm.(contracts.Resyncer); ok {
		rs.Resync()
	}
	return idx, nil
}

// dispatch advances the position by the message delta and processes it. The position is left
// alone while a seek is pending so the seek target stays visible.
func (l *Looper) dispatch(msg contracts.Message) error {
	l.mu.Lock()
	if l.seek == nil {
		l.position.Add(int64(msg.DeltaTime))
	}
	l.mu.Unlock()
	return l.process(msg)
}

// process applies tempo and time signature changes and raises the event.
func (l *Looper) process(msg contracts.Message) error {
	ev := msg.Event
	if ev.IsMeta() {
		switch ev.Data1 {
		case contracts.MetaTempo:
			l.tempo.Store(int64(contracts.GetTempo(ev.ExtraData)))
		case contracts.MetaTimeSignature:
			if len(ev.ExtraData) == 4 {
				var ts contracts.TimeSignature
				copy(ts[:], ev.ExtraData)
				l.timeSig.Store(packTimeSignature(ts))
			}
		}
	}
	return l.raiseEvent(ev)
}

// countdown converts a delta in ticks into milliseconds at the current tempo and the given
// ratio. A frozen ratio yields -1 for positive deltas.
func (l *Looper) countdown(delta int, ratio float64) int {
	if delta <= 0 {
		return 0
	}
	if ratio <= 0 {
		return -1
	}
	ms := float64(l.Tempo()) / 1000.0 * float64(delta) / float64(l.division) / ratio
	if ms >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

func (l *Looper) controlAllChannels(controller byte) error {
	for ch := byte(0); ch < contracts.ChannelCount; ch++ {
		if err := l.raiseEvent(contracts.NewChannelEvent(contracts.ControlChange, ch, controller, 0)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Looper) raiseEvent(ev contracts.Event) error {
	return l.events.Each(func(fn contracts.EventHandler) error {
		return fn(ev)
	})
}

func raise(list *notify.List[func()]) error {
	return list.Each(func(fn func()) error {
		fn()
		return nil
	})
}

// raiseError delivers err to the error listeners. A panicking error listener is logged.
func (l *Looper) raiseError(err error) {
	_ = l.errs.Each(func(fn ErrorListener) error {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("error listener panicked", l.logger.Field().String("panic", fmt.Sprint(r)))
			}
		}()
		fn(l, err)
		return nil
	})
}
