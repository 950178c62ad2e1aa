package greeter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsCallbacksInOrder(t *testing.T) {
	loop := NewLoop()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		loop.Invoke(func() { order = append(order, i) })
	}
	loop.Invoke(loop.Quit)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.False(t, loop.Running())
}

func TestLoopRejectsSecondRunner(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	require.Eventually(t, loop.Running, testTimeout, time.Millisecond)

	assert.ErrorIs(t, loop.Run(ctx), ErrLoopRunning)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestLoopIterate(t *testing.T) {
	loop := NewLoop()
	assert.False(t, loop.Iterate())

	ran := false
	loop.Invoke(func() { ran = true })
	assert.True(t, loop.Iterate())
	assert.True(t, ran)
}

func TestFutureResolvesOnce(t *testing.T) {
	f := newFuture[string]()
	assert.True(t, f.resolve("first", nil))
	assert.False(t, f.resolve("second", nil))
	assert.False(t, f.fail(ErrTransport))

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestFutureWaitCancelled(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	// A late answer is dropped
	assert.False(t, f.resolve(3, nil))
}

func TestFutureThenPostsToLoop(t *testing.T) {
	loop := NewLoop()
	f := newFuture[int]()

	got := 0
	f.then(context.Background(), loop, func(v int, err error) {
		require.NoError(t, err)
		got = v
	})
	f.resolve(42, nil)

	require.Eventually(t, func() bool {
		loop.Iterate()
		return got == 42
	}, testTimeout, time.Millisecond)
}

func TestErrorMatching(t *testing.T) {
	err := newError(KindDaemonRejected, "start session", "daemon returned code 1", nil)

	assert.ErrorIs(t, err, ErrDaemonRejected)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Equal(t, "start session: daemon rejected request: daemon returned code 1", err.Error())
	assert.Equal(t, "protocol state error", KindProtocolState.String())
}
