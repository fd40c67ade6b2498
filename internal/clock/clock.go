// Package clock exposes a monotonic high-resolution counter in whole microseconds.
package clock

import (
	"errors"
	"time"
)

// ErrNoHighResolutionCounter is returned when the platform cannot provide sub-millisecond
// monotonic timing. The scheduler cannot run without it.
var ErrNoHighResolutionCounter = errors.New("high-resolution performance counter is not available")

// maxResolution is the coarsest counter resolution accepted.
const maxResolution = time.Microsecond

// Clock measures elapsed time since it was created.
type Clock struct {
	start int64
}

// New creates a clock started now.
func New() (*Clock, error) {
	if err := probe(); err != nil {
		return nil, err
	}
	start, err := now()
	if err != nil {
		return nil, err
	}
	return &Clock{start: start}, nil
}

// MustNew is like New but panics when the platform has no high-resolution counter.
func MustNew() *Clock {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// Elapsed returns the time elapsed since the clock was created.
func (c *Clock) Elapsed() time.Duration {
	n, err := now()
	if err != nil {
		// The counter was verified at construction; a later failure is not expected.
		return 0
	}
	return time.Duration(n - c.start)
}

// ElapsedMicroseconds returns the elapsed time in whole microseconds.
func (c *Clock) ElapsedMicroseconds() int64 {
	return c.Elapsed().Microseconds()
}

// ElapsedMilliseconds returns the elapsed time in whole milliseconds.
func (c *Clock) ElapsedMilliseconds() int64 {
	return c.Elapsed().Milliseconds()
}
