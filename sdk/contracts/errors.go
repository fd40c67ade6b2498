package contracts

import "errors"

var (
	// ErrUnsupportedTimeFormat is returned for SMPTE based or otherwise non-positive time divisions.
	ErrUnsupportedTimeFormat = errors.New("only ticks-per-quarter-note time divisions are supported")
	// ErrEmptySequence is returned when a player is built without messages.
	ErrEmptySequence = errors.New("sequence has no messages")
)
