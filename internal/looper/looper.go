// Package looper implements the playback state machine that walks a message sequence on its
// own goroutine and paces dispatch with a time manager.
package looper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiplayer/internal/logger"
	"github.com/leandrodaf/midiplayer/internal/notify"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"github.com/leandrodaf/midiplayer/sdk/seek"
)

var (
	// ErrNilTimeManager is returned when a looper is built without a time manager.
	ErrNilTimeManager = errors.New("time manager is required")
	// ErrListenerPanic wraps a panic raised by a listener on the playback goroutine.
	ErrListenerPanic = errors.New("listener panicked")
)

// DefaultStopTimeout bounds how long Stop waits for the playback goroutine.
const DefaultStopTimeout = time.Second

// Config holds the collaborators and tuning of a Looper.
type Config struct {
	TimeManager contracts.TimeManager
	Strategy    contracts.Strategy
	StopTimeout time.Duration
	TempoRatio  float64
	Logger      contracts.Logger
}

// ErrorListener receives a failure raised on the playback goroutine.
type ErrorListener func(l *Looper, err error)

// Looper plays a sequence. Control methods are safe to call from any goroutine; listeners run
// on the playback goroutine in registration order.
type Looper struct {
	messages    []contracts.Message
	division    int
	tm          contracts.TimeManager
	strategy    contracts.Strategy
	stopTimeout time.Duration
	logger      contracts.Logger

	state    atomic.Int32
	tempo    atomic.Int64
	ratio    atomic.Uint64
	timeSig  atomic.Uint32
	position atomic.Int64

	mu             sync.Mutex
	current        *session
	seek           contracts.SeekProcessor
	pauseRequested bool
	gate           chan struct{}

	starting  notify.List[func()]
	finished  notify.List[func()]
	completed notify.List[func()]
	events    notify.List[contracts.EventHandler]
	errs      notify.List[ErrorListener]
}

// session is one run of the playback goroutine, from Play out of Stopped until it ends.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates the sequence and builds a stopped looper.
func New(messages []contracts.Message, division int, cfg Config) (*Looper, error) {
	if division <= 0 {
		return nil, fmt.Errorf("%w: division %d", contracts.ErrUnsupportedTimeFormat, division)
	}
	if len(messages) == 0 {
		return nil, contracts.ErrEmptySequence
	}
	if cfg.TimeManager == nil {
		return nil, ErrNilTimeManager
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.TempoRatio == 0 {
		cfg.TempoRatio = 1.0
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}

	l := &Looper{
		messages:    messages,
		division:    division,
		tm:          cfg.TimeManager,
		strategy:    cfg.Strategy,
		stopTimeout: cfg.StopTimeout,
		logger:      cfg.Logger,
	}
	l.resetMusicalState()
	l.SetTempoRatio(cfg.TempoRatio)
	return l, nil
}

func (l *Looper) resetMusicalState() {
	l.tempo.Store(contracts.DefaultTempo)
	l.timeSig.Store(packTimeSignature(contracts.DefaultTimeSignature))
}

// Play starts a session when stopped, resumes when paused, and cancels a pause request that
// the playback goroutine has not picked up yet.
func (l *Looper) Play() {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.State() {
	case contracts.Stopped:
		ctx, cancel := context.WithCancel(context.Background())
		s := &session{ctx: ctx, cancel: cancel, done: make(chan struct{})}
		l.current = s
		l.pauseRequested = false
		l.gate = nil
		if l.seek == nil {
			l.position.Store(0)
		}
		l.resetMusicalState()
		l.state.Store(int32(contracts.Playing))
		l.logger.Info("playback session started",
			l.logger.Field().Int("messages", len(l.messages)),
			l.logger.Field().String("strategy", l.strategy.String()))
		go l.run(s)
	case contracts.Paused:
		l.pauseRequested = false
		if l.gate != nil {
			close(l.gate)
			l.gate = nil
		}
		l.state.Store(int32(contracts.Playing))
	case contracts.Playing:
		l.pauseRequested = false
	}
}

// Pause asks the playback goroutine to pause. It does nothing unless playing.
func (l *Looper) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.State() == contracts.Playing {
		l.pauseRequested = true
	}
}

// Stop ends the session and waits up to the stop timeout for the playback goroutine. A
// goroutine that does not exit in time is logged and left to finish on its own.
func (l *Looper) Stop() {
	l.mu.Lock()
	s := l.current
	if l.State() == contracts.Stopped || s == nil {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	s.cancel()

	wait := time.NewTimer(l.stopTimeout)
	defer wait.Stop()
	select {
	case <-s.done:
	case <-wait.C:
		l.logger.Warn("playback goroutine did not stop in time", l.logger.Field().Duration("timeout", l.stopTimeout))
	}
}

// Seek installs a seek request applied by the playback goroutine at its next opportunity. A nil
// processor seeks with seek.Simple. The position reports the target immediately.
func (l *Looper) Seek(processor contracts.SeekProcessor, ticks int) {
	if processor == nil {
		processor = seek.NewSimple(ticks)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seek = processor
	l.position.Store(int64(processor.Target()))
}

// Wait blocks until the current session ends or ctx is done.
func (l *Looper) Wait(ctx context.Context) error {
	l.mu.Lock()
	s := l.current
	l.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the playback state.
func (l *Looper) State() contracts.PlayerState {
	return contracts.PlayerState(l.state.Load())
}

// Tempo returns the current tempo in microseconds per quarter note.
func (l *Looper) Tempo() int {
	return int(l.tempo.Load())
}

// TimeSignature returns the last time signature played.
func (l *Looper) TimeSignature() contracts.TimeSignature {
	return unpackTimeSignature(l.timeSig.Load())
}

// PlayPosition returns the position in ticks.
func (l *Looper) PlayPosition() int {
	return int(l.position.Load())
}

// TempoRatio returns the speed multiplier.
func (l *Looper) TempoRatio() float64 {
	return math.Float64frombits(l.ratio.Load())
}

// SetTempoRatio changes the speed multiplier. Values <= 0 freeze time without pausing.
func (l *Looper) SetTempoRatio(ratio float64) {
	l.ratio.Store(math.Float64bits(ratio))
}

// Messages returns the sequence being played. Callers must not modify it.
func (l *Looper) Messages() []contracts.Message {
	return l.messages
}

// Division returns the ticks per quarter note of the sequence.
func (l *Looper) Division() int {
	return l.division
}

// OnStarting registers a listener raised when a session starts.
func (l *Looper) OnStarting(fn func()) (remove func()) {
	return l.starting.Add(fn)
}

// OnFinished registers a listener raised whenever a session ends without failing.
func (l *Looper) OnFinished(fn func()) (remove func()) {
	return l.finished.Add(fn)
}

// OnPlaybackCompletedToEnd registers a listener raised when a session reaches the end of the
// sequence.
func (l *Looper) OnPlaybackCompletedToEnd(fn func()) (remove func()) {
	return l.completed.Add(fn)
}

// OnEvent registers a listener for every dispatched event, mute and reset events included.
func (l *Looper) OnEvent(fn contracts.EventHandler) (remove func()) {
	return l.events.Add(fn)
}

// OnError registers a listener for failures on the playback goroutine.
func (l *Looper) OnError(fn ErrorListener) (remove func()) {
	return l.errs.Add(fn)
}

func packTimeSignature(ts contracts.TimeSignature) uint32 {
	return uint32(ts[0])<<24 | uint32(ts[1])<<16 | uint32(ts[2])<<8 | uint32(ts[3])
}

func unpackTimeSignature(v uint32) contracts.TimeSignature {
	return contracts.TimeSignature{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
