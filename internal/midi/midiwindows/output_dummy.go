//go:build !windows
// +build !windows

package midiwindows

import (
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

type dummyOutput struct {
	logger contracts.Logger
}

// NewOutput initializes a dummy MIDI output for non-Windows systems.
func NewOutput(options *contracts.PlayerOptions) (contracts.DeviceOutput, error) {
	options.Logger.Info("Using dummy MIDI output for non-Windows system")
	return &dummyOutput{logger: options.Logger}, nil
}

// ListDevices logs a warning and returns ErrUnavailable.
func (m *dummyOutput) ListDevices() ([]contracts.DeviceInfo, error) {
	m.logger.Warn("ListDevices called on dummy MIDI output")
	return nil, ErrUnavailable
}

// SelectDevice logs a warning and returns ErrUnavailable.
func (m *dummyOutput) SelectDevice(deviceID int) error {
	m.logger.Warn("SelectDevice called on dummy MIDI output", m.logger.Field().Int("deviceID", deviceID))
	return ErrUnavailable
}

// Send returns ErrUnavailable.
func (m *dummyOutput) Send([]byte) error {
	return ErrUnavailable
}

// Close does nothing.
func (m *dummyOutput) Close() error {
	return nil
}
