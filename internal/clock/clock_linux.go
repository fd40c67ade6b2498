//go:build linux

package clock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func probe() error {
	var res unix.Timespec
	if err := unix.ClockGetres(unix.CLOCK_MONOTONIC, &res); err != nil {
		return fmt.Errorf("%w: clock_getres: %v", ErrNoHighResolutionCounter, err)
	}
	if res.Nano() > maxResolution.Nanoseconds() {
		return fmt.Errorf("%w: monotonic clock resolution is %dns", ErrNoHighResolutionCounter, res.Nano())
	}
	return nil
}

func now() (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, err
	}
	return ts.Nano(), nil
}
