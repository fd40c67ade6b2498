package contracts

import "context"

// TimeManager paces the playback loop.
type TimeManager interface {
	// WaitBy blocks until the manager's notion of time has advanced by the given number of
	// milliseconds, or ctx is done. Non-positive durations return immediately.
	WaitBy(ctx context.Context, milliseconds int) error
}

// Lifecycle is implemented by time managers that own a running resource (such as a timer
// goroutine). The playback loop starts it when a session begins and stops it when it ends.
type Lifecycle interface {
	Start() error
	Stop()
}

// Resyncer is implemented by time managers that compensate for accumulated drift. The loop
// calls Resync after a pause or seek so the gap is not treated as lateness.
type Resyncer interface {
	Resync()
}

// Strategy selects how the playback loop paces message dispatch.
type Strategy int

const (
	// StrategyTick advances a millisecond countdown on every time-manager tick and checks
	// pause, stop and seek requests on every tick.
	StrategyTick Strategy = iota
	// StrategyBlocking waits for the full inter-message interval before each message.
	// Requests issued during a wait are only observed after it returns.
	StrategyBlocking
)

func (s Strategy) String() string {
	switch s {
	case StrategyTick:
		return "tick"
	case StrategyBlocking:
		return "blocking"
	}
	return "unknown"
}

// ParseStrategy maps "tick" or "blocking" to a Strategy.
func ParseStrategy(name string) (Strategy, bool) {
	switch name {
	case "tick", "":
		return StrategyTick, true
	case "blocking":
		return StrategyBlocking, true
	}
	return StrategyTick, false
}

// SeekFilterResult classifies a message encountered while fast-forwarding to a seek target.
type SeekFilterResult int

const (
	// SeekPass dispatches the message and continues filtering.
	SeekPass SeekFilterResult = iota
	// SeekBlock suppresses the message and continues filtering.
	SeekBlock
	// SeekPassAndTerminate dispatches the message and ends the seek.
	SeekPassAndTerminate
	// SeekBlockAndTerminate suppresses the message and ends the seek.
	SeekBlockAndTerminate
)

// Terminates reports whether the result ends the seek.
func (r SeekFilterResult) Terminates() bool {
	return r == SeekPassAndTerminate || r == SeekBlockAndTerminate
}

// Passes reports whether the message is dispatched.
func (r SeekFilterResult) Passes() bool {
	return r == SeekPass || r == SeekPassAndTerminate
}

// SeekProcessor decides what happens to each message while a seek is applied. A processor is
// used for exactly one seek and is always fed messages from the start of the sequence.
type SeekProcessor interface {
	Filter(msg Message) SeekFilterResult
	Target() int
}
