package soundcloud

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout is how long callers block on a future before giving up.
const DefaultTimeout = 10 * time.Second

// Future is the eventual result of a request. It is resolved exactly once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that already holds value.
func Resolved[T any](value T) *Future[T] {
	f := newFuture[T]()
	f.resolve(value, nil)
	return f
}

// Failed returns a future that already holds err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.resolve(zero, err)
	return f
}

// resolve stores the outcome. Later calls are ignored.
func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future is resolved.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future is resolved or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks for at most timeout and returns ErrTimeout if the future is still pending.
func (f *Future[T]) Wait(timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		var zero T
		return zero, ErrTimeout
	}
}

// GetOrThrow waits on f with timeout, using DefaultTimeout when timeout is not positive.
func GetOrThrow[T any](f *Future[T], timeout time.Duration) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return f.Wait(timeout)
}
