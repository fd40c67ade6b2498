package mididarwin

import "errors"

// Error definitions for MIDI output handling issues.
var (
	ErrNoMIDIDevices     = errors.New("no MIDI devices found")
	ErrInvalidMIDIDevice = errors.New("invalid MIDI device")
	ErrNoDeviceSelected  = errors.New("no MIDI device selected")
	ErrCreateClient      = errors.New("error creating MIDI client")
	ErrCreateOutputPort  = errors.New("error creating output port")
	ErrSendFailed        = errors.New("error sending MIDI packet")
	ErrOutputClosed      = errors.New("MIDI output closed")
	ErrUnavailable       = errors.New("CoreMIDI output is not available on this platform")
)
