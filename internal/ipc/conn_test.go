package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/bnema/lightgreet/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnConcurrentWrites(t *testing.T) {
	client, server := net.Pipe()
	greeter := NewConn(client)
	daemon := NewConn(server)
	defer greeter.Close()
	defer daemon.Close()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, greeter.WriteMessage(protocol.SetLanguage{Language: "lang-" + strconv.Itoa(i)}))
		}(i)
	}

	seen := make(map[string]bool)
	for i := 0; i < writers; i++ {
		frame, err := daemon.ReadFrame()
		require.NoError(t, err)
		msg, err := protocol.DecodeGreeterMessage(frame)
		require.NoError(t, err)
		seen[msg.(protocol.SetLanguage).Language] = true
	}
	wg.Wait()

	assert.Len(t, seen, writers, "frames must not interleave")
}

func TestConnCloseIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	conn := NewConn(client)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.WriteMessage(protocol.Idle{}), ErrClosed)

	_, err := conn.ReadFrame()
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-conn.Closed():
	default:
		t.Error("Closed() channel not closed")
	}
}

func TestDialEnv(t *testing.T) {
	toR, toW, err := os.Pipe()
	require.NoError(t, err)
	fromR, fromW, err := os.Pipe()
	require.NoError(t, err)
	defer toR.Close()
	defer fromW.Close()

	// Hand over duplicates so the Conn owns its descriptors outright
	toFD, err := syscall.Dup(int(toW.Fd()))
	require.NoError(t, err)
	fromFD, err := syscall.Dup(int(fromR.Fd()))
	require.NoError(t, err)
	require.NoError(t, toW.Close())
	require.NoError(t, fromR.Close())

	t.Setenv(EnvToServerFD, strconv.Itoa(toFD))
	t.Setenv(EnvFromServerFD, strconv.Itoa(fromFD))
	require.True(t, HasEnvPipes())

	rwc, err := DialEnv()
	require.NoError(t, err)
	conn := NewConn(rwc)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(protocol.CancelAuthentication{}))
	frame, err := protocol.ReadFrame(toR)
	require.NoError(t, err)
	assert.Equal(t, protocol.GreeterCancelAuthentication, frame.ID)

	_, err = fromW.Write(protocol.Encode(protocol.Idle{}))
	require.NoError(t, err)
	frame, err = conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.ServerIdle, frame.ID)
}

func TestDialEnvMissing(t *testing.T) {
	t.Setenv(EnvToServerFD, "")
	t.Setenv(EnvFromServerFD, "")
	assert.False(t, HasEnvPipes())

	_, err := DialEnv()
	assert.ErrorIs(t, err, ErrNoDaemon)

	t.Setenv(EnvToServerFD, "not-a-number")
	t.Setenv(EnvFromServerFD, "4")
	_, err = DialEnv()
	assert.ErrorIs(t, err, ErrNoDaemon)
}

func TestDialSocketNoDaemon(t *testing.T) {
	_, err := DialSocket(context.Background(), filepath.Join(t.TempDir(), "missing.sock"))
	assert.ErrorIs(t, err, ErrNoDaemon)
}

func TestConnRefusesOversizedMessage(t *testing.T) {
	client, server := net.Pipe()
	greeter := NewConn(client)
	daemon := NewConn(server)
	defer greeter.Close()
	defer daemon.Close()

	// net.Pipe is unbuffered, so a write that reached the pipe would block here
	err := greeter.WriteMessage(protocol.ContinueAuthentication{
		Responses: []string{strings.Repeat("x", protocol.MaxMessageLength)},
	})
	require.ErrorIs(t, err, protocol.ErrTooLarge)

	go func() { _ = greeter.WriteMessage(protocol.CancelAuthentication{}) }()
	frame, err := daemon.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.GreeterCancelAuthentication, frame.ID)
}
