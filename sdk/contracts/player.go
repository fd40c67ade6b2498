package contracts

import "time"

// PlayerState is the playback state of a player.
type PlayerState int32

const (
	// Stopped is the initial state and the state after a session ends.
	Stopped PlayerState = iota
	// Playing means the playback goroutine is dispatching messages.
	Playing
	// Paused means the playback goroutine is parked until Play or Stop.
	Paused
)

func (s PlayerState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// EventHandler receives every dispatched event on the playback goroutine. Returning an error
// ends the session and is reported through the error notification.
type EventHandler func(Event) error

// ErrorHandler receives a failure raised inside the playback goroutine together with the
// player that raised it.
type ErrorHandler func(p Player, err error)

// Player plays a sequence of MIDI messages.
type Player interface {
	Play()                                       // Starts a session or resumes a paused one.
	Pause()                                      // Requests a pause; ignored unless playing.
	Stop()                                       // Ends the session; waits up to the configured stop timeout.
	Seek(ticks int)                              // Seeks using the default seek processor.
	SeekWith(processor SeekProcessor, ticks int) // Seeks using a custom seek processor.

	State() PlayerState
	// Tempo is the current tempo in microseconds per quarter note.
	Tempo() int
	Bpm() float64
	TimeSignature() TimeSignature
	// PlayPosition is the position in ticks. After Seek it reports the seek target immediately.
	PlayPosition() int
	PositionInTime() time.Duration
	TotalPlayTime() time.Duration

	TempoRatio() float64
	SetTempoRatio(ratio float64)
	SetChannelMask(mask [ChannelCount]bool) error

	OnStarting(fn func()) (remove func())
	OnFinished(fn func()) (remove func())
	OnPlaybackCompletedToEnd(fn func()) (remove func())
	OnEvent(fn EventHandler) (remove func())
	OnError(fn ErrorHandler) (remove func())
	// WatchEvents forwards dispatched events to the channel, dropping them when it is full.
	WatchEvents(eventChannel chan Event)

	Close() error
}
