package midi

import (
	"errors"
	"runtime"

	"github.com/leandrodaf/midiplayer/internal/midi/mididarwin"
	"github.com/leandrodaf/midiplayer/internal/midi/midiwindows"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// ErrUnsupportedOS is returned when there is no MIDI output backend for the operating system.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// outputInitializers maps operating systems to their MIDI output constructors.
var outputInitializers = map[string]func(*contracts.PlayerOptions) (contracts.DeviceOutput, error){
	"darwin":  mididarwin.NewOutput,
	"windows": midiwindows.NewOutput,
}

// NewOutput creates the MIDI output of the running operating system. A device must be selected
// with SelectDevice before events reach it.
//
// Returns:
//   - contracts.DeviceOutput: An output backed by the platform MIDI API.
//   - error: ErrUnsupportedOS if no backend exists for runtime.GOOS.
func NewOutput(opts ...contracts.Option) (contracts.DeviceOutput, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	return newOutput(runtime.GOOS, &options)
}

func newOutput(goos string, options *contracts.PlayerOptions) (contracts.DeviceOutput, error) {
	initializer, exists := outputInitializers[goos]
	if !exists {
		return nil, ErrUnsupportedOS
	}
	return initializer(options)
}

// NopOutput discards everything sent to it.
type NopOutput struct{}

// Send discards data.
func (NopOutput) Send([]byte) error { return nil }

// Close does nothing.
func (NopOutput) Close() error { return nil }
