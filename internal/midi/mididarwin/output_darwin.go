//go:build darwin
// +build darwin

package mididarwin

import (
	"fmt"
	"sync"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// OutputMid sends MIDI bytes to a CoreMIDI destination on Darwin (macOS) systems.
type OutputMid struct {
	logger      contracts.Logger
	client      coremidi.Client       // CoreMIDI client instance for MIDI operations.
	outputPort  coremidi.OutputPort   // Output port events are sent through.
	destination *coremidi.Destination // Selected destination, nil until SelectDevice.
	mu          sync.Mutex            // Guards the destination.
	closed      bool
}

// NewOutput initializes a CoreMIDI client and output port.
// Applies logging and configurations based on the provided options.
func NewOutput(options *contracts.PlayerOptions) (contracts.DeviceOutput, error) {
	client, err := coremidi.NewClient(options.CoreMIDIConfig.ClientName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateClient, err)
	}

	port, err := coremidi.NewOutputPort(client, options.CoreMIDIConfig.PortName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateOutputPort, err)
	}
	options.Logger.Info("MIDI output successfully created",
		options.Logger.Field().String("client", options.CoreMIDIConfig.ClientName))

	return &OutputMid{
		logger:     options.Logger,
		client:     client,
		outputPort: port,
	}, nil
}

// ListDevices retrieves and returns available MIDI destinations.
// If no destinations are found, a warning is logged and ErrNoMIDIDevices returned.
func (m *OutputMid) ListDevices() ([]contracts.DeviceInfo, error) {
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI destinations: %w", err)
	}
	if len(destinations) == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, len(destinations))
	for i, destination := range destinations {
		entity := destination.Entity()
		devices[i] = contracts.DeviceInfo{
			Name:         destination.Name(),
			EntityName:   entity.Name(),
			Manufacturer: entity.Manufacturer(),
		}
	}
	return devices, nil
}

// SelectDevice selects the destination events are sent to.
func (m *OutputMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI destinations: %w", err)
	}
	if deviceID < 0 || deviceID >= len(destinations) {
		m.logger.Error(ErrInvalidMIDIDevice.Error(), m.logger.Field().Int("deviceID", deviceID))
		return ErrInvalidMIDIDevice
	}

	destination := destinations[deviceID]
	m.destination = &destination
	m.logger.Info("MIDI device selected",
		m.logger.Field().Int("deviceID", deviceID),
		m.logger.Field().String("deviceName", destination.Name()))
	return nil
}

// Send writes one MIDI message to the selected destination for immediate delivery.
func (m *OutputMid) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrOutputClosed
	}
	if m.destination == nil {
		return ErrNoDeviceSelected
	}

	packet := coremidi.NewPacket(data, 0)
	if err := packet.Send(&m.outputPort, m.destination); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Close forgets the destination. Later sends fail with ErrOutputClosed.
func (m *OutputMid) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.destination = nil
	m.logger.Info("MIDI output closed")
	return nil
}
