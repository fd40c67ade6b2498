package sequence

import (
	"fmt"
	"io"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Load reads a standard MIDI file and merges its tracks into one sequence.
func Load(path string) (*Sequence, error) {
	file, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return FromSMF(file)
}

// Read parses a standard MIDI file from r and merges its tracks into one sequence.
func Read(r io.Reader) (*Sequence, error) {
	file, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	return FromSMF(file)
}

// FromSMF merges the tracks of file by absolute time. Events at the same time keep track order.
// End-of-track events are dropped. Files timed in SMPTE frames are rejected.
func FromSMF(file *smf.SMF) (*Sequence, error) {
	ticks, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: %v", contracts.ErrUnsupportedTimeFormat, file.TimeFormat)
	}

	var (
		messages []contracts.Message
		last     int64
	)
	err := forEachEventWithTime(file, func(at int64, msg smf.Message) error {
		ev, ok := toEvent(msg)
		if !ok {
			return nil
		}
		messages = append(messages, contracts.Message{DeltaTime: int(at - last), Event: ev})
		last = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return New(messages, int(ticks))
}

// forEachEventWithTime yields the events of all tracks ordered by absolute tick.
func forEachEventWithTime(file *smf.SMF, yield func(at int64, msg smf.Message) error) error {
	// trackPos is the index of the next event of each track.
	trackPos := make([]int, len(file.Tracks))
	// trackTime is the time of the last event taken from each track.
	trackTime := make([]int64, len(file.Tracks))
	for {
		earliestTrack := -1
		var earliestTime int64
		for i, track := range file.Tracks {
			p := trackPos[i]
			if p >= len(track) {
				continue
			}
			at := trackTime[i] + int64(track[p].Delta)
			if earliestTrack < 0 || at < earliestTime {
				earliestTime = at
				earliestTrack = i
			}
		}
		if earliestTrack < 0 {
			return nil
		}

		msg := file.Tracks[earliestTrack][trackPos[earliestTrack]].Message
		if !msg.Is(smf.MetaEndOfTrackMsg) {
			if err := yield(earliestTime, msg); err != nil {
				return err
			}
		}
		trackPos[earliestTrack]++
		trackTime[earliestTrack] = earliestTime
	}
}

// toEvent converts the raw bytes of an SMF message. Meta bodies are stored without their
// length prefix.
func toEvent(msg smf.Message) (contracts.Event, bool) {
	raw := []byte(msg)
	if len(raw) == 0 {
		return contracts.Event{}, false
	}

	switch status := raw[0]; {
	case status == byte(contracts.Meta):
		if len(raw) < 2 {
			return contracts.Event{}, false
		}
		length, n := readVarLength(raw[2:])
		body := raw[2+n:]
		if length < len(body) {
			body = body[:length]
		}
		return contracts.NewMetaEvent(raw[1], append([]byte(nil), body...)), true
	case status == byte(contracts.SysEx) || status == byte(contracts.SysExEscape):
		return contracts.Event{Status: status, ExtraData: append([]byte(nil), raw[1:]...)}, true
	default:
		ev := contracts.Event{Status: status}
		if len(raw) > 1 {
			ev.Data1 = raw[1]
		}
		if len(raw) > 2 {
			ev.Data2 = raw[2]
		}
		return ev, true
	}
}

// readVarLength decodes an SMF variable-length quantity and returns it with the number of
// bytes read.
func readVarLength(b []byte) (int, int) {
	value := 0
	for i := 0; i < len(b) && i < 4; i++ {
		value = value<<7 | int(b[i]&0x7F)
		if b[i]&0x80 == 0 {
			return value, i + 1
		}
	}
	return 0, 0
}
