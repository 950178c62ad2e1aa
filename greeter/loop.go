package greeter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrLoopRunning is returned when a second goroutine tries to run a loop
var ErrLoopRunning = errors.New("loop is already running")

// Loop is the execution context that owns a greeter's callbacks. Completion
// callbacks and signal handlers are queued on it and run one at a time on the
// goroutine that calls Run. Async operations take the loop as a parameter to
// make that confinement explicit.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	quit  chan struct{}

	running atomic.Bool
}

// NewLoop creates an idle loop
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}, 1),
	}
}

func (l *Loop) post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Invoke queues fn to run on the loop
func (l *Loop) Invoke(fn func()) {
	l.post(fn)
}

// Iterate runs the callbacks queued so far without blocking and reports
// whether any ran
func (l *Loop) Iterate() bool {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch) > 0
}

// Run dispatches callbacks until Quit is called or ctx ends
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	for {
		l.Iterate()

		select {
		case <-l.wake:
		case <-l.quit:
			// Callbacks queued before Quit still run
			l.Iterate()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Quit makes Run return after draining the queue
func (l *Loop) Quit() {
	select {
	case l.quit <- struct{}{}:
	default:
	}
}

// Running reports whether a goroutine is inside Run
func (l *Loop) Running() bool {
	return l.running.Load()
}
