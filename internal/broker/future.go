// ABOUTME: Single-settlement result slot shared by a waiter and its settlers
// ABOUTME: The first Settle or Fail wins; later attempts report false

package broker

import "sync"

// Future is a one-shot result. It is safe for concurrent use.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture creates an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Settle completes the future with v. Returns false if it was already settled.
func (f *Future[T]) Settle(v T) bool {
	settled := false
	f.once.Do(func() {
		f.value = v
		settled = true
		close(f.done)
	})
	return settled
}

// Fail completes the future with err. Returns false if it was already settled.
func (f *Future[T]) Fail(err error) bool {
	settled := false
	f.once.Do(func() {
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled value or error. Only meaningful after Done is closed.
func (f *Future[T]) Result() (T, error) {
	return f.value, f.err
}
