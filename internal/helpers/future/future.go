package future

import (
	"context"
	"sync"
)

// Future is the deferred result of an operation that completes elsewhere.
// It settles exactly once; later Resolve or Reject calls are ignored.
type Future[T any] struct {
	once   sync.Once
	doneCh chan struct{}
	value  T
	err    error
}

func New[T any]() *Future[T] {
	return &Future[T]{doneCh: make(chan struct{})}
}

// Go runs fn in its own goroutine and settles the returned Future with its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		value, err := fn()
		f.settle(value, err)
	}()
	return f
}

func Resolved[T any](value T) *Future[T] {
	f := New[T]()
	f.Resolve(value)
	return f
}

func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

func (f *Future[T]) Resolve(value T) bool {
	return f.settle(value, nil)
}

func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		settled = true
		close(f.doneCh)
	})
	return settled
}

// Done returns a channel that is closed once the Future has settled.
func (f *Future[T]) Done() <-chan struct{} { return f.doneCh }

// Get blocks until the Future settles.
func (f *Future[T]) Get() (T, error) {
	<-f.doneCh
	return f.value, f.err
}

// Wait blocks until the Future settles or ctx ends. Giving up on the wait
// leaves the underlying operation untouched.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.doneCh:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then maps a settled value into a new Future.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	return Go(func() (U, error) {
		value, err := f.Get()
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(value)
	})
}
