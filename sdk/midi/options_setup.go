package midi

import (
	"fmt"

	"github.com/leandrodaf/midiplayer/internal/clock"
	"github.com/leandrodaf/midiplayer/internal/logger"
	"github.com/leandrodaf/midiplayer/internal/looper"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"github.com/leandrodaf/midiplayer/sdk/timing"
)

// applyDefaultOptions sets default values for PlayerOptions if not explicitly provided.
//
// opts ...contracts.Option: A variadic list of option functions that can modify PlayerOptions.
//
// Returns:
//   - contracts.PlayerOptions: A structure containing the finalized player options with defaults applied.
//   - error: An error if there was an issue applying the options.
func applyDefaultOptions(opts ...contracts.Option) (contracts.PlayerOptions, error) {
	options := &contracts.PlayerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Set defaults if options are not provided
	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if options.LogLevel == 0 {
		options.LogLevel = contracts.InfoLevel
	}
	if options.LogFilePath != "" {
		options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
	}

	if options.CoreMIDIConfig == nil {
		options.CoreMIDIConfig = &contracts.CoreMIDIConfig{ClientName: "GO MIDI Player", PortName: "Output Port"}
	}
	if options.CoreMIDIConfig.PortName == "" {
		options.CoreMIDIConfig.PortName = "Output Port"
	}

	if options.StopTimeout <= 0 {
		options.StopTimeout = looper.DefaultStopTimeout
	}
	if options.TempoRatio == 0 {
		options.TempoRatio = 1.0
	}
	if options.Output == nil {
		options.Output = NopOutput{}
	}

	options.Logger.SetLevel(options.LogLevel)
	return *options, nil
}

// timeManagerFor returns the configured time manager, or builds the one matching the strategy:
// a micro timer driven manager for the tick strategy and a drift adjusting one for blocking.
func timeManagerFor(options *contracts.PlayerOptions) (contracts.TimeManager, error) {
	if options.TimeManager != nil {
		return options.TimeManager, nil
	}

	switch options.Strategy {
	case contracts.StrategyBlocking:
		clk, err := clock.New()
		if err != nil {
			return nil, fmt.Errorf("create clock: %w", err)
		}
		return timing.NewAdjusting(clk), nil
	default:
		tick, err := timing.NewTick(options.Timer, options.Logger)
		if err != nil {
			return nil, fmt.Errorf("create tick time manager: %w", err)
		}
		return tick, nil
	}
}
