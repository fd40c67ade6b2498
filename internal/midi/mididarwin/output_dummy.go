//go:build !darwin
// +build !darwin

package mididarwin

import (
	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

type dummyOutput struct {
	logger contracts.Logger
}

// NewOutput returns an output whose device operations fail on non-macOS systems.
func NewOutput(options *contracts.PlayerOptions) (contracts.DeviceOutput, error) {
	options.Logger.Info("Using dummy MIDI output for non-macOS system")
	return &dummyOutput{logger: options.Logger}, nil
}

func (m *dummyOutput) ListDevices() ([]contracts.DeviceInfo, error) {
	m.logger.Warn("ListDevices called on dummy MIDI output")
	return nil, ErrUnavailable
}

func (m *dummyOutput) SelectDevice(deviceID int) error {
	m.logger.Warn("SelectDevice called on dummy MIDI output", m.logger.Field().Int("deviceID", deviceID))
	return ErrUnavailable
}

func (m *dummyOutput) Send([]byte) error {
	return ErrUnavailable
}

func (m *dummyOutput) Close() error {
	return nil
}
