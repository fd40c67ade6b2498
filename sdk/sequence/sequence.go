// Package sequence holds playable message sequences and the timing arithmetic over them.
package sequence

import (
	"fmt"
	"time"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// Sequence is a single ordered stream of messages with its time division.
type Sequence struct {
	Messages []contracts.Message
	Division int // ticks per quarter note
}

// New builds and validates a sequence.
func New(messages []contracts.Message, division int) (*Sequence, error) {
	s := &Sequence{Messages: messages, Division: division}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the sequence can be played.
func (s *Sequence) Validate() error {
	if s.Division <= 0 {
		return fmt.Errorf("%w: division %d", contracts.ErrUnsupportedTimeFormat, s.Division)
	}
	if len(s.Messages) == 0 {
		return contracts.ErrEmptySequence
	}
	for i, m := range s.Messages {
		if m.DeltaTime < 0 {
			return fmt.Errorf("message %d has negative delta time %d", i, m.DeltaTime)
		}
	}
	return nil
}

// TotalTicks returns the sum of all delta times.
func (s *Sequence) TotalTicks() int {
	return TotalTicks(s.Messages)
}

// PlayTimeAtTick returns how long normal playback takes to reach tick.
func (s *Sequence) PlayTimeAtTick(tick int) time.Duration {
	return PlayTimeAtTick(s.Messages, tick, s.Division)
}

// TotalPlayTime returns the duration of the whole sequence.
func (s *Sequence) TotalPlayTime() time.Duration {
	return PlayTimeAtTick(s.Messages, s.TotalTicks(), s.Division)
}

// TotalTicks returns the sum of the delta times of messages.
func TotalTicks(messages []contracts.Message) int {
	total := 0
	for _, m := range messages {
		total += m.DeltaTime
	}
	return total
}

// PlayTimeAtTick walks messages applying tempo changes and returns the play time at tick. Ticks
// past the end are clamped to the end of the sequence.
func PlayTimeAtTick(messages []contracts.Message, tick, division int) time.Duration {
	if division <= 0 || tick <= 0 {
		return 0
	}

	var (
		micros float64
		ticks  int
		tempo  = float64(contracts.DefaultTempo)
	)
	for _, m := range messages {
		delta := m.DeltaTime
		if ticks+delta > tick {
			delta = tick - ticks
		}
		micros += tempo * float64(delta) / float64(division)
		ticks += delta
		if ticks >= tick {
			break
		}
		if m.Event.IsMeta() && m.Event.Data1 == contracts.MetaTempo {
			tempo = float64(contracts.GetTempo(m.Event.ExtraData))
		}
	}
	return time.Duration(micros * float64(time.Microsecond))
}
