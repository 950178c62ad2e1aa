package greeter

import (
	"context"
	"sync"
)

// Future is a request awaiting exactly one resolution. The first resolution
// wins; later ones are dropped.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// failedFuture returns a future already resolved with err
func failedFuture[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.resolve(zero, err)
	return f
}

func (f *Future[T]) resolve(val T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.val = val
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

func (f *Future[T]) fail(err error) bool {
	var zero T
	return f.resolve(zero, err)
}

// Done is closed once the future has resolved
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the future resolves
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Wait blocks until the future resolves or ctx ends. A cancelled ctx resolves
// the future with ErrCancelled unless the daemon answered first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		f.fail(newError(KindCancelled, "", "", ctx.Err()))
	}
	return f.Result()
}

// then runs done on loop once f resolves or ctx ends, never on the caller's stack
func (f *Future[T]) then(ctx context.Context, loop *Loop, done func(T, error)) {
	go func() {
		val, err := f.Wait(ctx)
		if done == nil {
			return
		}
		loop.post(func() { done(val, err) })
	}()
}
