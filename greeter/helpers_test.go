package greeter

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/bnema/lightgreet/internal/protocol"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

// fakeDaemon is the far end of a net.Pipe, driven by the test
type fakeDaemon struct {
	conn *ipc.Conn
	got  chan protocol.Message
}

func newFakeDaemon(rwc io.ReadWriteCloser) *fakeDaemon {
	d := &fakeDaemon{
		conn: ipc.NewConn(rwc),
		got:  make(chan protocol.Message, 32),
	}
	go d.read()
	return d
}

func (d *fakeDaemon) read() {
	defer close(d.got)
	for {
		frame, err := d.conn.ReadFrame()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeGreeterMessage(frame)
		if err != nil {
			continue
		}
		d.got <- msg
	}
}

func (d *fakeDaemon) expect(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-d.got:
		require.True(t, ok, "greeter closed the link")
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a greeter message")
		return nil
	}
}

func (d *fakeDaemon) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case msg, ok := <-d.got:
		if ok {
			t.Fatalf("unexpected greeter message %#v", msg)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func (d *fakeDaemon) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	require.NoError(t, d.conn.WriteMessage(msg))
}

// events collects handler notifications
type events struct {
	prompts   chan string
	messages  chan string
	completed chan struct{}
	autologin chan struct{}
	reset     chan struct{}
	idle      chan struct{}
}

func newEvents() *events {
	return &events{
		prompts:   make(chan string, 8),
		messages:  make(chan string, 8),
		completed: make(chan struct{}, 8),
		autologin: make(chan struct{}, 8),
		reset:     make(chan struct{}, 8),
		idle:      make(chan struct{}, 8),
	}
}

func (e *events) handlers() Handlers {
	return Handlers{
		ShowPrompt:             func(text string, _ PromptType) { e.prompts <- text },
		ShowMessage:            func(text string, _ MessageType) { e.messages <- text },
		AuthenticationComplete: func() { e.completed <- struct{}{} },
		AutologinTimerExpired:  func() { e.autologin <- struct{}{} },
		Reset:                  func() { e.reset <- struct{}{} },
		Idle:                   func() { e.idle <- struct{}{} },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a notification")
		var zero T
		return zero
	}
}

// newTestGreeter wires a greeter to a fake daemon and runs its loop
func newTestGreeter(t *testing.T, opts ...Option) (*Greeter, *fakeDaemon, *events) {
	t.Helper()

	client, server := net.Pipe()
	d := newFakeDaemon(server)
	ev := newEvents()

	dial := func(context.Context) (io.ReadWriteCloser, error) { return client, nil }
	opts = append([]Option{WithHandlers(ev.handlers())}, opts...)
	g := New(NewLoop(), dial, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = g.Loop().Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = g.Close()
		_ = d.conn.Close()
	})
	return g, d, ev
}

func connect(t *testing.T, g *Greeter, d *fakeDaemon, hints map[string]string) {
	t.Helper()

	f := g.ConnectToDaemonFuture(context.Background())
	msg := d.expect(t)
	req, ok := msg.(protocol.Connect)
	require.True(t, ok, "expected CONNECT, got %#v", msg)
	require.Equal(t, protocol.APIVersion, req.APIVersion)

	d.send(t, protocol.Connected{Version: "1.30.0", APIVersion: protocol.APIVersion, Hints: hints})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := f.Wait(ctx)
	require.NoError(t, err)
}

// authenticateBob runs a single password prompt for bob to success
func authenticateBob(t *testing.T, g *Greeter, d *fakeDaemon, ev *events) {
	t.Helper()

	require.NoError(t, g.Authenticate("bob"))
	require.Equal(t, protocol.Authenticate{Sequence: 1, Username: "bob"}, d.expect(t))

	d.send(t, protocol.PromptAuthentication{
		Sequence: 1,
		Username: "bob",
		Messages: []protocol.PromptMessage{{Style: protocol.StyleSecret, Text: "Password:"}},
	})
	require.Equal(t, "Password:", waitFor(t, ev.prompts))

	require.NoError(t, g.Respond("secret"))
	require.Equal(t, protocol.ContinueAuthentication{Responses: []string{"secret"}}, d.expect(t))

	d.send(t, protocol.EndAuthentication{Sequence: 1, Username: "bob", ReturnCode: 0})
	waitFor(t, ev.completed)
	require.True(t, g.IsAuthenticated())
}
