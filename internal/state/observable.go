// Package state holds the observable todo collection the views render and
// the operations that mutate it.
package state

import "sync"

// Observable holds a value and pushes every new value to subscribers.
//
// Each subscriber has a one-slot buffer: a slow reader skips intermediate
// values and only ever sees the newest one. Set never blocks.
type Observable[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[chan T]struct{}
}

// NewObservable returns an Observable holding v.
func NewObservable[T any](v T) *Observable[T] {
	return &Observable[T]{value: v, subs: make(map[chan T]struct{})}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set replaces the value and notifies subscribers.
func (o *Observable[T]) Set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = v
	for ch := range o.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel primed with the current value. cancel closes
// the channel and may be called more than once.
func (o *Observable[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)
	o.mu.Lock()
	ch <- o.value
	o.subs[ch] = struct{}{}
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, ch)
			close(ch)
			o.mu.Unlock()
		})
	}
}

// offer replaces whatever is waiting in ch with v. Callers hold o.mu, so
// the send cannot block.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
