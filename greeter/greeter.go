package greeter

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/bnema/lightgreet/internal/logger"
	"github.com/bnema/lightgreet/internal/protocol"
	"github.com/charmbracelet/log"
)

// DefaultVersion is the library version announced to the daemon
const DefaultVersion = "1.32.0"

// State of the authentication sequence
type State int

const (
	StateIdle State = iota
	StateAwaitingPrompt
	StateResponding
	StateCancelling
	StateAuthenticated
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPrompt:
		return "awaiting-prompt"
	case StateResponding:
		return "responding"
	case StateCancelling:
		return "cancelling"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// InFlight reports whether an authentication sequence is active
func (s State) InFlight() bool {
	return s == StateAwaitingPrompt || s == StateResponding || s == StateCancelling
}

// PromptType tells a greeter how to read an answer
type PromptType int

const (
	// PromptTypeQuestion expects a visible answer, such as a username
	PromptTypeQuestion PromptType = iota
	// PromptTypeSecret expects a hidden answer, such as a password
	PromptTypeSecret
)

// MessageType classifies informational text from the daemon
type MessageType int

const (
	MessageTypeInfo MessageType = iota
	MessageTypeError
)

// Handlers receive daemon notifications. Each runs on the greeter's Loop.
type Handlers struct {
	ShowPrompt             func(text string, kind PromptType)
	ShowMessage            func(text string, kind MessageType)
	AuthenticationComplete func()
	AutologinTimerExpired  func()
	Idle                   func()
	Reset                  func()
}

// Dialer opens the byte channel to the daemon
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// EnvDialer dials the pipes LightDM passes to the greeter process
func EnvDialer() Dialer {
	return func(context.Context) (io.ReadWriteCloser, error) {
		return ipc.DialEnv()
	}
}

// SocketDialer dials a daemon listening on a unix socket
func SocketDialer(socketPath string) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return ipc.DialSocket(ctx, socketPath)
	}
}

type options struct {
	handlers      Handlers
	resettable    bool
	minAPIVersion uint32
	version       string
}

// Option configures a Greeter
type Option func(*options)

// WithHandlers installs notification handlers
func WithHandlers(h Handlers) Option {
	return func(o *options) { o.handlers = h }
}

// WithResettable tells the daemon the greeter can be reset instead of restarted
func WithResettable(resettable bool) Option {
	return func(o *options) { o.resettable = resettable }
}

// WithMinAPIVersion rejects daemons speaking an older greeter API
func WithMinAPIVersion(v uint32) Option {
	return func(o *options) { o.minAPIVersion = v }
}

// WithVersion overrides the version string sent on connect
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// Greeter is one client link to the display manager daemon
type Greeter struct {
	loop *Loop
	dial Dialer
	opts options
	log  *log.Logger

	// sendMu orders request writes with the state changes made for them
	sendMu sync.Mutex

	mu            sync.Mutex
	conn          *ipc.Conn
	connecting    *Future[struct{}]
	connected     bool
	daemonVersion string
	apiVersion    uint32
	hints         map[string]string

	state          State
	authSeq        uint32
	authUser       string
	promptsWaiting int
	responses      []string
	remoteSession  string
	language       string

	session        *Future[struct{}]
	sessionName    string
	dispatched     bool
	dispatchedName string

	sharedDirs []*Future[string]

	autologinTimer *time.Timer
}

// New creates a greeter bound to loop. Nothing is dialled until a connect call.
func New(loop *Loop, dial Dialer, opts ...Option) *Greeter {
	o := options{version: DefaultVersion}
	for _, opt := range opts {
		opt(&o)
	}
	if loop == nil {
		loop = NewLoop()
	}

	return &Greeter{
		loop:  loop,
		dial:  dial,
		opts:  o,
		log:   logger.With("component", "greeter"),
		hints: map[string]string{},
	}
}

// Loop returns the loop that runs this greeter's callbacks
func (g *Greeter) Loop() *Loop {
	return g.loop
}

func (g *Greeter) checkLoop(loop *Loop) {
	if loop != g.loop {
		panic("greeter: async operation issued from a loop that does not own this greeter")
	}
}

func (g *Greeter) emit(fn func()) {
	if fn != nil {
		g.loop.post(fn)
	}
}

// Close drops the link. Pending operations fail with ErrTransport.
func (g *Greeter) Close() error {
	g.mu.Lock()
	conn := g.conn
	pending := g.detachLocked()
	g.mu.Unlock()

	err := newError(KindTransport, "close", "connection closed", ipc.ErrClosed)
	pending.fail(err, err)

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// pendingCalls are the futures still waiting on a link
type pendingCalls struct {
	connecting *Future[struct{}]
	session    *Future[struct{}]
	sharedDirs []*Future[string]
}

func (p pendingCalls) fail(connectErr, err error) {
	if p.connecting != nil {
		p.connecting.fail(connectErr)
	}
	if p.session != nil {
		p.session.fail(err)
	}
	for _, f := range p.sharedDirs {
		f.fail(err)
	}
}

// detachLocked forgets the current link and hands back what was waiting on it
func (g *Greeter) detachLocked() pendingCalls {
	p := pendingCalls{
		connecting: g.connecting,
		session:    g.session,
		sharedDirs: g.sharedDirs,
	}
	g.connecting = nil
	g.session = nil
	g.sharedDirs = nil
	g.conn = nil
	g.connected = false

	if g.state.InFlight() {
		g.state = StateFailed
	}
	g.promptsWaiting = 0
	g.responses = nil
	g.stopAutologinTimerLocked()
	return p
}

// linkLost handles a read or write failure on conn
func (g *Greeter) linkLost(conn *ipc.Conn, cause error) {
	g.mu.Lock()
	if g.conn != conn {
		g.mu.Unlock()
		return
	}
	pending := g.detachLocked()
	g.mu.Unlock()

	_ = conn.Close()
	g.log.Warn("Lost connection to daemon", "err", cause)
	pending.fail(newError(KindConnection, "connect", "daemon closed the link", cause), transportError("", cause))
}

func (g *Greeter) readLoop(conn *ipc.Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			g.linkLost(conn, err)
			return
		}

		msg, err := protocol.DecodeServerMessage(frame)
		if err != nil {
			g.log.Warn("Ignoring undecodable message", "id", frame.ID, "err", err)
			continue
		}
		g.dispatch(conn, msg)
	}
}

func (g *Greeter) dispatch(conn *ipc.Conn, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Connected:
		g.handleConnected(conn, m)
	case protocol.PromptAuthentication:
		g.handlePrompt(m)
	case protocol.EndAuthentication:
		g.handleEndAuthentication(m)
	case protocol.SessionResult:
		g.handleSessionResult(m)
	case protocol.SharedDirResult:
		g.handleSharedDirResult(m)
	case protocol.Idle:
		g.emit(g.opts.handlers.Idle)
	case protocol.Reset:
		g.mu.Lock()
		g.hints = m.Hints
		g.mu.Unlock()
		g.emit(g.opts.handlers.Reset)
	default:
		g.log.Debug("Ignoring unexpected message", "id", msg.MessageID())
	}
}

// Connected reports whether the daemon has acknowledged the link
func (g *Greeter) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// DaemonVersion is the version string the daemon sent on connect
func (g *Greeter) DaemonVersion() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.daemonVersion
}

// APIVersion is the greeter API version of the daemon, 0 for legacy daemons
func (g *Greeter) APIVersion() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.apiVersion
}
