// Package seek contains seek processors used when the player fast-forwards to a position.
package seek

import "github.com/leandrodaf/midiplayer/sdk/contracts"

// Simple reconstructs playback state up to a target position. Notes before the target are
// blocked so they are not replayed; every other event passes so tempo, time signature and
// controller state match what normal playback would have produced. The message whose
// cumulative delta-time first reaches the target passes and ends the seek.
type Simple struct {
	target  int
	elapsed int
}

// NewSimple creates a processor that seeks to target ticks. A Simple is used for one seek only.
func NewSimple(target int) *Simple {
	return &Simple{target: target}
}

// Target returns the seek target in ticks.
func (s *Simple) Target() int {
	return s.target
}

// Filter classifies the next message of the sequence.
func (s *Simple) Filter(msg contracts.Message) contracts.SeekFilterResult {
	s.elapsed += msg.DeltaTime
	if s.elapsed >= s.target {
		return contracts.SeekPassAndTerminate
	}
	if msg.Event.IsNote() {
		return contracts.SeekBlock
	}
	return contracts.SeekPass
}

var _ contracts.SeekProcessor = (*Simple)(nil)
