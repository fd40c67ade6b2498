package contracts

import "time"

// MIDIEventFilter allows users to specify which MIDI commands reach the output.
type MIDIEventFilter struct {
	Commands []MIDICommand // List of MIDI commands to forward.
}

// Allows reports whether the filter lets the command through. A nil filter allows everything.
func (f *MIDIEventFilter) Allows(cmd MIDICommand) bool {
	if f == nil {
		return true
	}
	for _, allowed := range f.Commands {
		if allowed == cmd {
			return true
		}
	}
	return false
}

// CoreMIDIConfig holds configuration for CoreMIDI.
type CoreMIDIConfig struct {
	ClientName string // Name of the MIDI client.
	PortName   string // Name of the output port.
}

// TimerConfig tunes the micro timer that drives the tick strategy.
type TimerConfig struct {
	Interval      time.Duration // Tick period; one millisecond by default.
	LateTolerance time.Duration // Ticks later than this are dropped; zero never drops.
	SpinWindow    time.Duration // When positive, sleep until this close to a tick, then spin.
}

// PlayerOptions defines the configuration options for the player.
type PlayerOptions struct {
	Logger          Logger              // Logger for logging events and errors.
	LogLevel        LogLevel            // Level of logging to use.
	LogFilePath     string              // File path for logging if file logging is enabled.
	TimeManager     TimeManager         // Paces playback; chosen from Strategy when nil.
	Strategy        Strategy            // Pacing strategy of the playback loop.
	Timer           TimerConfig         // Micro timer settings for the default tick time manager.
	StopTimeout     time.Duration       // How long Stop waits for the playback goroutine.
	TempoRatio      float64             // Initial tempo ratio; 1.0 when zero.
	Output          Output              // Sink for played events; discards when nil.
	MIDIEventFilter *MIDIEventFilter    // Optional filter for MIDI commands sent to the output.
	ChannelMask     *[ChannelCount]bool // Optional initial channel mask.
	CoreMIDIConfig  *CoreMIDIConfig     // Configuration specific to CoreMIDI.
}

// Option is a function that modifies PlayerOptions.
type Option func(*PlayerOptions)

// WithLogger sets the logger for the player.
func WithLogger(l Logger) Option {
	return func(opts *PlayerOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the player.
func WithLogLevel(level LogLevel) Option {
	return func(opts *PlayerOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile directs logs to the given file.
func WithLogFile(path string) Option {
	return func(opts *PlayerOptions) {
		opts.LogFilePath = path
	}
}

// WithTimeManager replaces the time manager chosen by the strategy.
func WithTimeManager(tm TimeManager) Option {
	return func(opts *PlayerOptions) {
		opts.TimeManager = tm
	}
}

// WithStrategy selects the pacing strategy.
func WithStrategy(s Strategy) Option {
	return func(opts *PlayerOptions) {
		opts.Strategy = s
	}
}

// WithTimerConfig tunes the micro timer used by the default tick time manager.
func WithTimerConfig(cfg TimerConfig) Option {
	return func(opts *PlayerOptions) {
		opts.Timer = cfg
	}
}

// WithStopTimeout bounds how long Stop waits for the playback goroutine.
func WithStopTimeout(d time.Duration) Option {
	return func(opts *PlayerOptions) {
		opts.StopTimeout = d
	}
}

// WithTempoRatio sets the initial tempo ratio.
func WithTempoRatio(ratio float64) Option {
	return func(opts *PlayerOptions) {
		opts.TempoRatio = ratio
	}
}

// WithOutput sets the sink played events are sent to.
func WithOutput(out Output) Option {
	return func(opts *PlayerOptions) {
		opts.Output = out
	}
}

// WithMIDIEventFilter restricts the MIDI commands sent to the output.
func WithMIDIEventFilter(filter MIDIEventFilter) Option {
	return func(opts *PlayerOptions) {
		opts.MIDIEventFilter = &filter
	}
}

// WithChannelMask mutes note events on the channels set to true.
func WithChannelMask(mask [ChannelCount]bool) Option {
	return func(opts *PlayerOptions) {
		opts.ChannelMask = &mask
	}
}

// WithCoreMIDIConfig sets the CoreMIDI configuration used by the darwin output.
func WithCoreMIDIConfig(config CoreMIDIConfig) Option {
	return func(opts *PlayerOptions) {
		opts.CoreMIDIConfig = &config
	}
}
