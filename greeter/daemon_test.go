package greeter

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bnema/lightgreet/internal/daemon"
	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDaemonGreeter connects a greeter to the reference daemon over a unix socket
func newDaemonGreeter(t *testing.T, d *daemon.Daemon) (*Greeter, *events) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "greeter.sock")
	server, err := ipc.NewSocketServer(socketPath, d)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	ev := newEvents()
	g := New(NewLoop(), SocketDialer(socketPath), WithHandlers(ev.handlers()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = g.Loop().Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = g.Close()
	})

	require.NoError(t, g.ConnectToDaemonSync(ctx))
	return g, ev
}

func TestAgainstDaemon(t *testing.T) {
	hash, err := daemon.HashPassword("sha512", "secret")
	require.NoError(t, err)

	launcher := &daemon.RecordingLauncher{}
	root := t.TempDir()
	d := daemon.New(daemon.Config{DefaultSession: "xfce", GuestEnabled: true},
		daemon.WithAuthenticator(daemon.NewStaticAuthenticator(map[string]string{"bob": hash})),
		daemon.WithLauncher(launcher),
		daemon.WithSharedDirs(daemon.NewSharedDirProvisioner(root, "",
			daemon.WithUserLookup(func(string) (int, int, error) { return 1000, 1000, nil }),
			daemon.WithChown(func(string, int, int) error { return nil }),
		)),
	)

	g, ev := newDaemonGreeter(t, d)
	assert.Equal(t, "xfce", g.DefaultSessionHint())
	assert.True(t, g.HasGuestAccountHint())

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	// Wrong password first
	require.NoError(t, g.Authenticate("bob"))
	waitFor(t, ev.prompts)
	require.NoError(t, g.Respond("nope"))
	assert.Equal(t, "Authentication failure", waitFor(t, ev.messages))
	waitFor(t, ev.completed)
	assert.Equal(t, StateFailed, g.State())

	require.NoError(t, g.Authenticate("bob"))
	waitFor(t, ev.prompts)
	require.NoError(t, g.Respond("secret"))
	waitFor(t, ev.completed)
	require.True(t, g.IsAuthenticated())

	dir1, err := g.EnsureSharedDataDirSync(ctx, "bob")
	require.NoError(t, err)
	dir2, err := g.EnsureSharedDataDirSync(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "bob"), dir1)
	assert.Equal(t, dir1, dir2)

	require.NoError(t, g.StartSessionSync(ctx, ""))
	assert.Equal(t, []daemon.Launch{{User: "bob", Session: "xfce"}}, launcher.Launches())
}

func TestAgainstDaemonCancel(t *testing.T) {
	g, ev := newDaemonGreeter(t, daemon.New(daemon.Config{}))

	require.NoError(t, g.Authenticate(""))
	assert.Equal(t, "login:", waitFor(t, ev.prompts))

	require.NoError(t, g.CancelAuthentication())
	waitFor(t, ev.completed)
	assert.Equal(t, StateCancelled, g.State())
	assert.ErrorIs(t, g.Respond("bob"), ErrProtocolState)
}

func TestAgainstDaemonOversizedAnswer(t *testing.T) {
	hash, err := daemon.HashPassword("sha512", "secret")
	require.NoError(t, err)
	d := daemon.New(daemon.Config{DefaultSession: "xfce"},
		daemon.WithAuthenticator(daemon.NewStaticAuthenticator(map[string]string{"bob": hash})))

	g, ev := newDaemonGreeter(t, d)
	require.NoError(t, g.Authenticate("bob"))
	waitFor(t, ev.prompts)

	err = g.Respond(strings.Repeat("x", 70*1024))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	assert.True(t, g.Connected())

	require.NoError(t, g.Respond("secret"))
	waitFor(t, ev.completed)
	assert.True(t, g.IsAuthenticated())
}

func TestAgainstDaemonOverPipe(t *testing.T) {
	client, server := net.Pipe()
	d := daemon.New(daemon.Config{GuestEnabled: true})

	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background(), server) }()

	ev := newEvents()
	dial := func(context.Context) (io.ReadWriteCloser, error) { return client, nil }
	g := New(NewLoop(), dial, WithHandlers(ev.handlers()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = g.Loop().Run(ctx) }()

	require.NoError(t, g.ConnectToDaemonSync(ctx))
	require.NoError(t, g.AuthenticateAsGuest())
	waitFor(t, ev.completed)
	assert.True(t, g.IsAuthenticated())
	assert.Equal(t, "guest", g.AuthenticationUser())

	require.NoError(t, g.Close())
	require.NoError(t, <-done)
}
