package midi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midiplayer/internal/looper"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"github.com/leandrodaf/midiplayer/sdk/sequence"
	"go.uber.org/multierr"
)

// ErrStopTimeout is returned by Close when the playback goroutine outlived the stop timeout.
var ErrStopTimeout = errors.New("playback did not stop before close")

// Player plays a sequence to a MIDI output.
type Player struct {
	looper   *looper.Looper
	sequence *sequence.Sequence
	output   contracts.Output
	filter   *contracts.MIDIEventFilter
	logger   contracts.Logger

	maskMu sync.RWMutex
	mask   [contracts.ChannelCount]bool

	watchMu     sync.Mutex
	removeWatch func()

	closeOnce sync.Once
	closeErr  error
}

// NewMIDIPlayer creates a player for the messages with the specified options.
//
// messages []contracts.Message: The sequence to play, delta times in ticks.
// division int: Ticks per quarter note; SMPTE divisions are rejected.
// opts ...contracts.Option: A variadic list of option functions to customize the player.
//
// Returns:
//   - contracts.Player: A stopped player.
//   - error: An error if the sequence or a collaborator could not be set up.
func NewMIDIPlayer(messages []contracts.Message, division int, opts ...contracts.Option) (contracts.Player, error) {
	seq, err := sequence.New(messages, division)
	if err != nil {
		return nil, err
	}
	return NewSequencePlayer(seq, opts...)
}

// NewSequencePlayer creates a player for a loaded sequence.
func NewSequencePlayer(seq *sequence.Sequence, opts ...contracts.Option) (contracts.Player, error) {
	if err := seq.Validate(); err != nil {
		return nil, err
	}

	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	tm, err := timeManagerFor(&options)
	if err != nil {
		return nil, err
	}

	l, err := looper.New(seq.Messages, seq.Division, looper.Config{
		TimeManager: tm,
		Strategy:    options.Strategy,
		StopTimeout: options.StopTimeout,
		TempoRatio:  options.TempoRatio,
		Logger:      options.Logger,
	})
	if err != nil {
		return nil, err
	}

	p := &Player{
		looper:   l,
		sequence: seq,
		output:   options.Output,
		filter:   options.MIDIEventFilter,
		logger:   options.Logger,
	}
	if options.ChannelMask != nil {
		p.mask = *options.ChannelMask
	}
	// Registered first so the output hears an event before user listeners do.
	l.OnEvent(p.send)
	return p, nil
}

// send writes an event to the output. Meta events have no wire form and notes on masked
// channels are dropped.
func (p *Player) send(ev contracts.Event) error {
	if ev.IsMeta() {
		return nil
	}
	if ev.IsNote() && p.masked(ev.Channel()) {
		return nil
	}
	if !p.filter.Allows(ev.Command()) {
		return nil
	}
	data := ev.Bytes()
	if len(data) == 0 {
		return nil
	}
	if err := p.output.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", ev, err)
	}
	return nil
}

func (p *Player) masked(channel byte) bool {
	p.maskMu.RLock()
	defer p.maskMu.RUnlock()
	return p.mask[channel&0x0F]
}

// Play starts playback from the current position, or resumes after Pause.
func (p *Player) Play() { p.looper.Play() }

// Pause parks playback at the next wait.
func (p *Player) Pause() { p.looper.Pause() }

// Stop ends playback and waits up to the stop timeout.
func (p *Player) Stop() { p.looper.Stop() }

// Seek moves playback to the tick position.
func (p *Player) Seek(ticks int) { p.looper.Seek(nil, ticks) }

// SeekWith moves playback using a custom seek processor.
func (p *Player) SeekWith(processor contracts.SeekProcessor, ticks int) {
	p.looper.Seek(processor, ticks)
}

func (p *Player) State() contracts.PlayerState { return p.looper.State() }

func (p *Player) Tempo() int { return p.looper.Tempo() }

// Bpm returns the current tempo in beats per minute.
func (p *Player) Bpm() float64 { return contracts.GetBpm(p.looper.Tempo()) }

func (p *Player) TimeSignature() contracts.TimeSignature { return p.looper.TimeSignature() }

func (p *Player) PlayPosition() int { return p.looper.PlayPosition() }

// PositionInTime converts the play position to time using the tempo changes of the sequence.
// The tempo ratio is not applied.
func (p *Player) PositionInTime() time.Duration {
	return p.sequence.PlayTimeAtTick(p.looper.PlayPosition())
}

// TotalPlayTime is the duration of the whole sequence at a tempo ratio of 1.
func (p *Player) TotalPlayTime() time.Duration { return p.sequence.TotalPlayTime() }

func (p *Player) TempoRatio() float64 { return p.looper.TempoRatio() }

func (p *Player) SetTempoRatio(ratio float64) { p.looper.SetTempoRatio(ratio) }

// SetChannelMask mutes note events on the channels set to true. Channels that become muted
// get an All Sound Off so held notes stop.
func (p *Player) SetChannelMask(mask [contracts.ChannelCount]bool) error {
	p.maskMu.Lock()
	prev := p.mask
	p.mask = mask
	p.maskMu.Unlock()

	var err error
	for ch := range mask {
		if !mask[ch] || prev[ch] {
			continue
		}
		off := contracts.NewChannelEvent(contracts.ControlChange, byte(ch), contracts.CCAllSoundOff, 0)
		err = multierr.Append(err, p.output.Send(off.Bytes()))
	}
	if err != nil {
		p.logger.Error("failed to silence masked channels", p.logger.Field().Error("error", err))
	}
	return err
}

func (p *Player) OnStarting(fn func()) (remove func()) { return p.looper.OnStarting(fn) }

func (p *Player) OnFinished(fn func()) (remove func()) { return p.looper.OnFinished(fn) }

func (p *Player) OnPlaybackCompletedToEnd(fn func()) (remove func()) {
	return p.looper.OnPlaybackCompletedToEnd(fn)
}

func (p *Player) OnEvent(fn contracts.EventHandler) (remove func()) { return p.looper.OnEvent(fn) }

// OnError registers a handler for failures on the playback goroutine.
func (p *Player) OnError(fn contracts.ErrorHandler) (remove func()) {
	return p.looper.OnError(func(_ *looper.Looper, err error) {
		fn(p, err)
	})
}

// WatchEvents forwards dispatched events to eventChannel. A full channel drops the event with
// a warning. A later call replaces the channel; nil stops forwarding.
func (p *Player) WatchEvents(eventChannel chan contracts.Event) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()

	if p.removeWatch != nil {
		p.removeWatch()
		p.removeWatch = nil
	}
	if eventChannel == nil {
		return
	}

	p.removeWatch = p.looper.OnEvent(func(ev contracts.Event) error {
		select {
		case eventChannel <- ev:
		default:
			p.logger.Warn("Event buffer full; dropping MIDI event", p.logger.Field().String("event", ev.String()))
		}
		return nil
	})
}

// Wait blocks until the current session ends or ctx is done.
func (p *Player) Wait(ctx context.Context) error { return p.looper.Wait(ctx) }

// Close stops playback and closes the output. It is safe to call more than once.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.looper.Stop()

		var stopErr error
		if p.looper.State() != contracts.Stopped {
			stopErr = ErrStopTimeout
		}
		p.closeErr = multierr.Combine(stopErr, p.output.Close())
		p.logger.Info("MIDI player closed")
	})
	return p.closeErr
}

var _ contracts.Player = (*Player)(nil)
