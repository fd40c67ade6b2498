//go:build windows
// +build windows

package midiwindows

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"go.uber.org/multierr"
	"golang.org/x/sys/windows"
)

// HMIDIOUT is a winmm MIDI output handle.
type HMIDIOUT windows.Handle

const (
	CALLBACK_NULL        = 0x00000000 // No completion callback
	MHDR_DONE            = 0x00000001 // Set by the driver when a long message buffer is released
	MIDIERR_STILLPLAYING = 65         // The buffer is still queued
)

// unprepareTimeout bounds how long a system exclusive buffer may stay queued.
const unprepareTimeout = time.Second

// Struct representing MIDI output device capabilities
type midiOutCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	wTechnology    uint16
	wVoices        uint16
	wNotes         uint16
	wChannelMask   uint16
	dwSupport      uint32
}

// midiHdr describes a system exclusive buffer passed to midiOutLongMsg.
type midiHdr struct {
	lpData          *byte
	dwBufferLength  uint32
	dwBytesRecorded uint32
	dwUser          uintptr
	dwFlags         uint32
	lpNext          uintptr
	reserved        uintptr
	dwOffset        uint32
	dwReserved      [8]uintptr
}

// OutputMid sends MIDI bytes to a winmm output device.
type OutputMid struct {
	logger contracts.Logger
	handle HMIDIOUT
	open   bool
	closed bool
	mu     sync.Mutex
}

// Load the winmm.dll library and required functions
var (
	winmm                      = windows.NewLazySystemDLL("winmm.dll")
	procMidiOutGetNumDevs      = winmm.NewProc("midiOutGetNumDevs")
	procMidiOutGetDevCaps      = winmm.NewProc("midiOutGetDevCapsW")
	procMidiOutOpen            = winmm.NewProc("midiOutOpen")
	procMidiOutShortMsg        = winmm.NewProc("midiOutShortMsg")
	procMidiOutPrepareHeader   = winmm.NewProc("midiOutPrepareHeader")
	procMidiOutLongMsg         = winmm.NewProc("midiOutLongMsg")
	procMidiOutUnprepareHeader = winmm.NewProc("midiOutUnprepareHeader")
	procMidiOutReset           = winmm.NewProc("midiOutReset")
	procMidiOutClose           = winmm.NewProc("midiOutClose")
)

// NewOutput creates a MIDI output for Windows
func NewOutput(options *contracts.PlayerOptions) (contracts.DeviceOutput, error) {
	options.Logger.Info("MIDI output created for Windows")
	return &OutputMid{logger: options.Logger}, nil
}

// ListDevices lists the available MIDI output devices
func (m *OutputMid) ListDevices() ([]contracts.DeviceInfo, error) {
	r0, _, _ := procMidiOutGetNumDevs.Call()
	numDevices := uint32(r0)
	if numDevices == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiOutCaps
		r1, _, _ := procMidiOutGetDevCaps.Call(
			uintptr(i),
			uintptr(unsafe.Pointer(&caps)),
			unsafe.Sizeof(caps),
		)
		if r1 != 0 {
			m.logger.Warn("Failed to get information for MIDI device", m.logger.Field().Int("deviceID", int(i)))
			continue
		}
		deviceName := windows.UTF16ToString(caps.szPname[:])
		devices[i] = contracts.DeviceInfo{
			Name:         deviceName,
			EntityName:   deviceName,
			Manufacturer: fmt.Sprintf("MID: %d PID: %d", caps.wMid, caps.wPid),
		}
	}
	return devices, nil
}

// SelectDevice opens a MIDI output device, closing the previous one
func (m *OutputMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrOutputClosed
	}
	r0, _, _ := procMidiOutGetNumDevs.Call()
	if deviceID < 0 || deviceID >= int(r0) {
		m.logger.Error(ErrInvalidMIDIDevice.Error(), m.logger.Field().Int("deviceID", deviceID))
		return ErrInvalidMIDIDevice
	}

	if m.open {
		if err := m.closeDevice(); err != nil {
			return fmt.Errorf("failed to close previous MIDI device: %w", err)
		}
	}

	var handle HMIDIOUT
	r1, _, err := procMidiOutOpen.Call(
		uintptr(unsafe.Pointer(&handle)),
		uintptr(deviceID),
		0,
		0,
		CALLBACK_NULL,
	)
	if r1 != 0 {
		m.logger.Error("Failed to open MIDI device", m.logger.Field().Int("deviceID", deviceID), m.logger.Field().Error("error", err))
		return fmt.Errorf("%w %d: mmresult %d", ErrOpenFailed, deviceID, r1)
	}

	m.handle = handle
	m.open = true
	m.logger.Info("MIDI device connected", m.logger.Field().Int("deviceID", deviceID))
	return nil
}

// Send writes one MIDI message. Channel and system common messages go through
// midiOutShortMsg, system exclusive through midiOutLongMsg.
func (m *OutputMid) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrOutputClosed
	}
	if !m.open {
		return ErrNoDeviceSelected
	}

	if data[0] == byte(contracts.SysEx) || data[0] == byte(contracts.SysExEscape) {
		return m.sendLong(data)
	}

	var packed uintptr
	for i := 0; i < len(data) && i < 3; i++ {
		packed |= uintptr(data[i]) << (8 * i)
	}
	if r1, _, _ := procMidiOutShortMsg.Call(uintptr(m.handle), packed); r1 != 0 {
		return fmt.Errorf("%w: mmresult %d", ErrSendFailed, r1)
	}
	return nil
}

// sendLong queues a system exclusive buffer and waits for the driver to release it.
func (m *OutputMid) sendLong(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	hdr := midiHdr{lpData: &buf[0], dwBufferLength: uint32(len(buf)), dwBytesRecorded: uint32(len(buf))}
	size := unsafe.Sizeof(hdr)

	if r1, _, _ := procMidiOutPrepareHeader.Call(uintptr(m.handle), uintptr(unsafe.Pointer(&hdr)), size); r1 != 0 {
		return fmt.Errorf("%w: prepare header: mmresult %d", ErrSendFailed, r1)
	}
	var err error
	if r1, _, _ := procMidiOutLongMsg.Call(uintptr(m.handle), uintptr(unsafe.Pointer(&hdr)), size); r1 != 0 {
		err = fmt.Errorf("%w: long message: mmresult %d", ErrSendFailed, r1)
	}

	deadline := time.Now().Add(unprepareTimeout)
	for {
		r1, _, _ := procMidiOutUnprepareHeader.Call(uintptr(m.handle), uintptr(unsafe.Pointer(&hdr)), size)
		if r1 == 0 {
			return err
		}
		if r1 != MIDIERR_STILLPLAYING || time.Now().After(deadline) {
			return multierr.Append(err, fmt.Errorf("%w: unprepare header: mmresult %d", ErrSendFailed, r1))
		}
		time.Sleep(time.Millisecond)
	}
}

// Close resets and closes the device. Later sends fail with ErrOutputClosed.
func (m *OutputMid) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if !m.open {
		return nil
	}
	if err := m.closeDevice(); err != nil {
		return err
	}
	m.logger.Info("MIDI output closed")
	return nil
}

// closeDevice silences and releases the open handle
func (m *OutputMid) closeDevice() error {
	var err error
	if r1, _, _ := procMidiOutReset.Call(uintptr(m.handle)); r1 != 0 {
		err = multierr.Append(err, fmt.Errorf("reset MIDI device: mmresult %d", r1))
	}
	if r1, _, _ := procMidiOutClose.Call(uintptr(m.handle)); r1 != 0 {
		err = multierr.Append(err, fmt.Errorf("close MIDI device: mmresult %d", r1))
	}
	if err != nil {
		m.logger.Error("Failed to close MIDI device", m.logger.Field().Error("error", err))
		return err
	}
	m.open = false
	m.handle = 0
	return nil
}
