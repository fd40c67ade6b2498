package contracts

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDICommand represents the status nibble (or full status byte for system messages) of a MIDI event.
type MIDICommand byte

const (
	// NoteOff is the MIDI command for a Note Off event (0x80).
	NoteOff MIDICommand = 0x80
	// NoteOn is the MIDI command for a Note On event (0x90).
	NoteOn MIDICommand = 0x90
	// PolyAftertouch is the polyphonic key pressure command (0xA0).
	PolyAftertouch MIDICommand = 0xA0
	// ControlChange is the control change command (0xB0).
	ControlChange MIDICommand = 0xB0
	// ProgramChange is the program change command (0xC0).
	ProgramChange MIDICommand = 0xC0
	// ChannelAftertouch is the channel pressure command (0xD0).
	ChannelAftertouch MIDICommand = 0xD0
	// PitchBend is the pitch bend command (0xE0).
	PitchBend MIDICommand = 0xE0
	// SysEx starts a system exclusive message (0xF0).
	SysEx MIDICommand = 0xF0
	// SysExEscape is the SMF escape / sysex continuation status (0xF7).
	SysExEscape MIDICommand = 0xF7
	// Meta is the SMF meta event status; on the wire it is the Reset status (0xFF).
	Meta MIDICommand = 0xFF
)

// Meta event types the scheduler understands.
const (
	MetaTempo         byte = 0x51
	MetaTimeSignature byte = 0x58
	MetaEndOfTrack    byte = 0x2F
)

// Controller numbers used when silencing or resetting channels.
const (
	CCAllSoundOff         byte = 0x78
	CCResetAllControllers byte = 0x79
	CCAllNotesOff         byte = 0x7B
)

const (
	// ChannelCount is the number of MIDI channels.
	ChannelCount = 16
	// DefaultTempo is 120 BPM expressed in microseconds per quarter note.
	DefaultTempo = 500000
)

// Event is a MIDI event payload. For meta events Data1 holds the meta type and ExtraData the
// meta body; for system exclusive events ExtraData holds everything after the status byte.
type Event struct {
	Status    byte   // Status byte, including the channel for channel voice events.
	Data1     byte   // First data byte (note, controller, meta type).
	Data2     byte   // Second data byte (velocity, value).
	ExtraData []byte // Variable-length payload for meta and system exclusive events.
}

// NewChannelEvent builds a channel voice event for the given command and zero-based channel.
func NewChannelEvent(cmd MIDICommand, channel, data1, data2 byte) Event {
	return Event{Status: byte(cmd) | channel&0x0F, Data1: data1, Data2: data2}
}

// NewMetaEvent builds a meta event of the given type.
func NewMetaEvent(metaType byte, data []byte) Event {
	return Event{Status: byte(Meta), Data1: metaType, ExtraData: data}
}

// NewTempoEvent builds a tempo meta event carrying microseconds per quarter note.
func NewTempoEvent(microsPerQuarter int) Event {
	return NewMetaEvent(MetaTempo, []byte{
		byte(microsPerQuarter >> 16), byte(microsPerQuarter >> 8), byte(microsPerQuarter),
	})
}

// Command returns the event type: the high nibble for channel events, the whole status otherwise.
func (e Event) Command() MIDICommand {
	if e.Status < byte(SysEx) {
		return MIDICommand(e.Status & 0xF0)
	}
	return MIDICommand(e.Status)
}

// Channel returns the zero-based channel of a channel voice event.
func (e Event) Channel() byte {
	return e.Status & 0x0F
}

// IsMeta reports whether the event is an SMF meta event.
func (e Event) IsMeta() bool {
	return e.Status == byte(Meta)
}

// IsChannelVoice reports whether the event is a channel voice message.
func (e Event) IsChannelVoice() bool {
	return e.Status >= 0x80 && e.Status < byte(SysEx)
}

// IsNote reports whether the event is a note on or note off.
func (e Event) IsNote() bool {
	cmd := e.Command()
	return cmd == NoteOn || cmd == NoteOff
}

// Bytes returns the wire encoding of the event. Meta events have no wire form and return nil.
func (e Event) Bytes() []byte {
	switch e.Command() {
	case Meta:
		return nil
	case SysEx, SysExEscape:
		buf := make([]byte, 0, len(e.ExtraData)+1)
		buf = append(buf, e.Status)
		return append(buf, e.ExtraData...)
	}
	buf := []byte{e.Status, e.Data1, e.Data2}
	return buf[:FixedDataSize(e.Status)+1]
}

// String renders the event for logs.
func (e Event) String() string {
	if e.IsMeta() {
		return fmt.Sprintf("Meta type: 0x%02X len: %d", e.Data1, len(e.ExtraData))
	}
	return gomidi.Message(e.Bytes()).String()
}

// Message is one entry of a playable sequence: ticks elapsed since the previous message plus the event.
type Message struct {
	DeltaTime int
	Event     Event
}

// String renders the message for logs.
func (m Message) String() string {
	return fmt.Sprintf("[dt%d]%s", m.DeltaTime, m.Event)
}

// FixedDataSize returns the number of data bytes following a status byte on the wire.
// Variable length messages (sysex, meta) return 0.
func FixedDataSize(status byte) int {
	switch status & 0xF0 {
	case 0xF0:
		switch status {
		case 0xF1, 0xF3:
			return 1
		case 0xF2:
			return 2
		}
		return 0
	case 0xC0, 0xD0:
		return 1
	}
	return 2
}

// GetTempo decodes the 24-bit big endian tempo body of a tempo meta event.
func GetTempo(data []byte) int {
	if len(data) < 3 {
		return DefaultTempo
	}
	return int(data[0])<<16 | int(data[1])<<8 | int(data[2])
}

// GetBpm converts a tempo in microseconds per quarter note into beats per minute.
func GetBpm(tempo int) float64 {
	if tempo <= 0 {
		return 0
	}
	return 60000000.0 / float64(tempo)
}

// TimeSignature is the 4-byte body of a time signature meta event.
type TimeSignature [4]byte

// DefaultTimeSignature is 4/4 with 24 MIDI clocks per click and 8 notated 32nds per quarter.
var DefaultTimeSignature = TimeSignature{4, 2, 24, 8}

// Numerator is the beats-per-measure (upper number).
func (ts TimeSignature) Numerator() int { return int(ts[0]) }

// Denominator is the beat unit (lower number); the wire form stores its power of two.
func (ts TimeSignature) Denominator() int { return 1 << ts[1] }

// ClocksPerClick is the number of MIDI clocks between metronome clicks.
func (ts TimeSignature) ClocksPerClick() int { return int(ts[2]) }

// Notated32nds is the number of notated 32nd notes in 24 MIDI clocks.
func (ts TimeSignature) Notated32nds() int { return int(ts[3]) }

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Numerator(), ts.Denominator())
}
