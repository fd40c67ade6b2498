// Package config loads player settings from YAML and turns them into player options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidChannelMask is returned when a muted channel is outside 0-15.
	ErrInvalidChannelMask = errors.New("muted channels must be between 0 and 15")
	// ErrUnknownValue is returned for a level, strategy or command name that is not recognized.
	ErrUnknownValue = errors.New("unknown configuration value")
)

// PlayerConfig is the YAML form of the player options.
type PlayerConfig struct {
	Log      LogConfig      `yaml:"log"`
	Playback PlaybackConfig `yaml:"playback"`
	Timer    TimerConfig    `yaml:"timer"`
	Output   OutputConfig   `yaml:"output"`
}

// LogConfig selects the log level and an optional log file.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// PlaybackConfig tunes the playback loop.
type PlaybackConfig struct {
	Strategy    string   `yaml:"strategy"`
	TempoRatio  float64  `yaml:"tempoRatio"`
	StopTimeout Duration `yaml:"stopTimeout"`
}

// TimerConfig tunes the micro timer behind the tick strategy.
type TimerConfig struct {
	Interval      Duration `yaml:"interval"`
	LateTolerance Duration `yaml:"lateTolerance"`
	SpinWindow    Duration `yaml:"spinWindow"`
}

// OutputConfig selects what reaches the MIDI output.
type OutputConfig struct {
	Device        int      `yaml:"device"`
	ClientName    string   `yaml:"clientName"`
	PortName      string   `yaml:"portName"`
	Commands      []string `yaml:"commands"`
	MutedChannels []int    `yaml:"mutedChannels"`
}

// Duration is a time.Duration written as a Go duration string such as "1ms" or "250us".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load reads a YAML configuration file.
func Load(path string) (*PlayerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Read(bytes.NewReader(data))
}

// Read parses a YAML configuration. Unknown keys are rejected.
func Read(r io.Reader) (*PlayerConfig, error) {
	var cfg PlayerConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg as YAML to path.
func Save(path string, cfg *PlayerConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Options converts the configuration into player options. Zero values leave the player
// defaults in place.
func (c *PlayerConfig) Options() ([]contracts.Option, error) {
	var opts []contracts.Option

	if c.Log.Level != "" {
		level, ok := contracts.ParseLogLevel(strings.ToLower(c.Log.Level))
		if !ok {
			return nil, fmt.Errorf("%w: log level %q", ErrUnknownValue, c.Log.Level)
		}
		opts = append(opts, contracts.WithLogLevel(level))
	}
	if c.Log.File != "" {
		opts = append(opts, contracts.WithLogFile(c.Log.File))
	}

	if c.Playback.Strategy != "" {
		strategy, ok := contracts.ParseStrategy(strings.ToLower(c.Playback.Strategy))
		if !ok {
			return nil, fmt.Errorf("%w: strategy %q", ErrUnknownValue, c.Playback.Strategy)
		}
		opts = append(opts, contracts.WithStrategy(strategy))
	}
	if c.Playback.TempoRatio != 0 {
		opts = append(opts, contracts.WithTempoRatio(c.Playback.TempoRatio))
	}
	if c.Playback.StopTimeout > 0 {
		opts = append(opts, contracts.WithStopTimeout(time.Duration(c.Playback.StopTimeout)))
	}

	if c.Timer != (TimerConfig{}) {
		opts = append(opts, contracts.WithTimerConfig(contracts.TimerConfig{
			Interval:      time.Duration(c.Timer.Interval),
			LateTolerance: time.Duration(c.Timer.LateTolerance),
			SpinWindow:    time.Duration(c.Timer.SpinWindow),
		}))
	}

	if c.Output.ClientName != "" || c.Output.PortName != "" {
		opts = append(opts, contracts.WithCoreMIDIConfig(contracts.CoreMIDIConfig{
			ClientName: c.Output.ClientName,
			PortName:   c.Output.PortName,
		}))
	}
	if len(c.Output.Commands) > 0 {
		filter := contracts.MIDIEventFilter{}
		for _, name := range c.Output.Commands {
			cmd, ok := commandNames[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("%w: command %q", ErrUnknownValue, name)
			}
			filter.Commands = append(filter.Commands, cmd)
		}
		opts = append(opts, contracts.WithMIDIEventFilter(filter))
	}
	if len(c.Output.MutedChannels) > 0 {
		var mask [contracts.ChannelCount]bool
		for _, ch := range c.Output.MutedChannels {
			if ch < 0 || ch >= contracts.ChannelCount {
				return nil, fmt.Errorf("%w: %d", ErrInvalidChannelMask, ch)
			}
			mask[ch] = true
		}
		opts = append(opts, contracts.WithChannelMask(mask))
	}

	return opts, nil
}

var commandNames = map[string]contracts.MIDICommand{
	"noteoff":           contracts.NoteOff,
	"noteon":            contracts.NoteOn,
	"polyaftertouch":    contracts.PolyAftertouch,
	"controlchange":     contracts.ControlChange,
	"programchange":     contracts.ProgramChange,
	"channelaftertouch": contracts.ChannelAftertouch,
	"pitchbend":         contracts.PitchBend,
	"sysex":             contracts.SysEx,
}
