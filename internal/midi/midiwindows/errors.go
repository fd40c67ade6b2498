package midiwindows

import "errors"

// Error definitions for MIDI output handling issues.
var (
	ErrNoMIDIDevices     = errors.New("no MIDI devices found")
	ErrInvalidMIDIDevice = errors.New("invalid MIDI device")
	ErrNoDeviceSelected  = errors.New("no MIDI device selected")
	ErrOpenFailed        = errors.New("error opening MIDI device")
	ErrSendFailed        = errors.New("error sending MIDI message")
	ErrOutputClosed      = errors.New("MIDI output closed")
	ErrUnavailable       = errors.New("winmm output is not available on this platform")
)
