package timing

import (
	"context"
	"fmt"
	"sync"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
)

// Virtual is a time manager whose time only moves when a controller advances it. WaitBy is
// released once the total advanced time covers the total awaited time.
type Virtual struct {
	mu        sync.Mutex
	changed   chan struct{}
	proceeded int64
	waited    int64
	pending   int64
	blocked   bool
	aborted   bool
}

// NewVirtual creates a virtual time manager at time zero.
func NewVirtual() *Virtual {
	return &Virtual{changed: make(chan struct{})}
}

// broadcast wakes everyone watching for a change. Callers hold v.mu.
func (v *Virtual) broadcast() {
	close(v.changed)
	v.changed = make(chan struct{})
}

// WaitBy blocks until enough virtual time has been advanced, the manager is aborted, or ctx is
// done.
func (v *Virtual) WaitBy(ctx context.Context, milliseconds int) error {
	if milliseconds <= 0 {
		return nil
	}
	ms := int64(milliseconds)

	v.mu.Lock()
	for !v.aborted && v.waited+ms > v.proceeded {
		v.blocked = true
		v.pending = ms
		v.broadcast()
		ch := v.changed
		v.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			v.mu.Lock()
			v.blocked = false
			v.mu.Unlock()
			return ctx.Err()
		}
		v.mu.Lock()
	}
	v.blocked = false
	if !v.aborted {
		v.waited += ms
	}
	v.mu.Unlock()
	return nil
}

// AdvanceBy moves virtual time forward.
func (v *Virtual) AdvanceBy(milliseconds int) error {
	if milliseconds < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAdvance, milliseconds)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.proceeded += int64(milliseconds)
	v.broadcast()
	return nil
}

// AdvanceByAndWait moves virtual time forward and waits until the waiting goroutine has used
// it up and blocks again, or the manager is aborted. It returns ctx.Err() when ctx is done
// first, which is also what happens when nobody waits anymore.
func (v *Virtual) AdvanceByAndWait(ctx context.Context, milliseconds int) error {
	if err := v.AdvanceBy(milliseconds); err != nil {
		return err
	}

	v.mu.Lock()
	for {
		if v.aborted || (v.blocked && v.waited+v.pending > v.proceeded) {
			v.mu.Unlock()
			return nil
		}
		ch := v.changed
		v.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		v.mu.Lock()
	}
}

// Abort releases any blocked wait. Every later WaitBy returns immediately.
func (v *Virtual) Abort() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.aborted {
		return
	}
	v.aborted = true
	v.broadcast()
}

// Elapsed returns the total virtual time advanced, in milliseconds.
func (v *Virtual) Elapsed() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.proceeded
}

// Waited returns the total time consumed by WaitBy, in milliseconds.
func (v *Virtual) Waited() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.waited
}

var _ contracts.TimeManager = (*Virtual)(nil)
