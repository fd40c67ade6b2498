//go:build windows

package clock

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

var frequency atomic.Int64

func probe() error {
	var freq int64
	if err := windows.QueryPerformanceFrequency(&freq); err != nil {
		return fmt.Errorf("%w: QueryPerformanceFrequency: %v", ErrNoHighResolutionCounter, err)
	}
	if freq < int64(1e6) {
		return fmt.Errorf("%w: performance counter runs at %dHz", ErrNoHighResolutionCounter, freq)
	}
	frequency.Store(freq)
	return nil
}

func now() (int64, error) {
	var counter int64
	if err := windows.QueryPerformanceCounter(&counter); err != nil {
		return 0, err
	}
	freq := frequency.Load()
	if freq == 0 {
		return 0, ErrNoHighResolutionCounter
	}
	// counter * 1e9 / freq without overflowing for long uptimes.
	hi, lo := bits.Mul64(uint64(counter), 1e9)
	quo, _ := bits.Div64(hi, lo, uint64(freq))
	return int64(quo), nil
}
