//go:build !unix && !windows

package clock

func probe() error {
	return ErrNoHighResolutionCounter
}

func now() (int64, error) {
	return 0, ErrNoHighResolutionCounter
}
