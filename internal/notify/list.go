// Package notify holds ordered listener lists delivered synchronously by their owner.
package notify

import (
	"sync"
	"sync/atomic"
)

// List is an ordered set of listeners. Listeners run in registration order. Adding or removing
// during delivery affects the next delivery only.
type List[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries atomic.Pointer[[]entry[T]]
}

type entry[T any] struct {
	id uint64
	fn T
}

// Add appends a listener and returns a function that removes it. Calling the returned function
// more than once has no further effect.
func (l *List[T]) Add(fn T) (remove func()) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	cur := l.load()
	next := make([]entry[T], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry[T]{id: id, fn: fn})
	l.entries.Store(&next)
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *List[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.load()
	next := make([]entry[T], 0, len(cur))
	for _, e := range cur {
		if e.id != id {
			next = append(next, e)
		}
	}
	l.entries.Store(&next)
}

func (l *List[T]) load() []entry[T] {
	if p := l.entries.Load(); p != nil {
		return *p
	}
	return nil
}

// Len returns the number of registered listeners.
func (l *List[T]) Len() int {
	return len(l.load())
}

// Each calls visit for every listener in order and stops at the first error.
func (l *List[T]) Each(visit func(T) error) error {
	for _, e := range l.load() {
		if err := visit(e.fn); err != nil {
			return err
		}
	}
	return nil
}
