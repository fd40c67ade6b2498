//go:build unix && !linux

package clock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func probe() error {
	if _, err := now(); err != nil {
		return fmt.Errorf("%w: clock_gettime: %v", ErrNoHighResolutionCounter, err)
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
