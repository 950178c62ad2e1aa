// Package daemon is a small stand-in for the display manager side of the
// greeter protocol. It checks passwords against configured users and
// records session launches instead of running them. It exists for
// development and tests.
package daemon

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/bnema/lightgreet/internal/logger"
)

// DefaultVersion is the daemon version announced to greeters
const DefaultVersion = "1.32.0"

// Return codes carried by END_AUTHENTICATION and SESSION_RESULT
const (
	ResultSuccess   uint32 = 0
	ResultFailure   uint32 = 1
	ResultAuthError uint32 = 7  // PAM_AUTH_ERR
	ResultConvError uint32 = 19 // PAM_CONV_ERR
)

// Config is what the daemon tells greeters and how it treats their requests
type Config struct {
	Version          string
	DefaultSession   string
	Sessions         []string
	GuestEnabled     bool
	GuestUser        string
	AutologinUser    string
	AutologinGuest   bool
	AutologinTimeout int
	AutologinSession string
	ShowManualLogin  bool
	ShowRemoteLogin  bool
	HideUsers        bool
	LockScreen       bool
	SelectUser       string
}

// Hints builds the hint table sent on connect
func (c Config) Hints() map[string]string {
	hints := map[string]string{}
	set := func(name, value string) {
		if value != "" {
			hints[name] = value
		}
	}
	flag := func(name string, v bool) {
		if v {
			hints[name] = "true"
		}
	}

	set("default-session", c.DefaultSession)
	set("autologin-user", c.AutologinUser)
	set("autologin-session", c.AutologinSession)
	set("select-user", c.SelectUser)
	flag("autologin-guest", c.AutologinGuest)
	flag("has-guest-account", c.GuestEnabled)
	flag("show-manual-login", c.ShowManualLogin)
	flag("show-remote-login", c.ShowRemoteLogin)
	flag("hide-users", c.HideUsers)
	flag("lock-screen", c.LockScreen)
	if c.AutologinTimeout > 0 {
		hints["autologin-timeout"] = strconv.Itoa(c.AutologinTimeout)
	}
	return hints
}

func (c Config) knowsSession(name string) bool {
	if len(c.Sessions) == 0 {
		return true
	}
	for _, s := range c.Sessions {
		if s == name {
			return true
		}
	}
	return false
}

// Daemon serves greeter links
type Daemon struct {
	cfg      Config
	auth     Authenticator
	launcher Launcher
	shared   *SharedDirProvisioner
	log      *log.Logger
}

// Option configures a Daemon
type Option func(*Daemon)

func WithAuthenticator(a Authenticator) Option {
	return func(d *Daemon) { d.auth = a }
}

func WithLauncher(l Launcher) Option {
	return func(d *Daemon) { d.launcher = l }
}

// WithSharedDirs enables ENSURE_SHARED_DIR. Without it every request fails.
func WithSharedDirs(p *SharedDirProvisioner) Option {
	return func(d *Daemon) { d.shared = p }
}

// New creates a daemon. Without an authenticator every login fails.
func New(cfg Config, opts ...Option) *Daemon {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.GuestUser == "" {
		cfg.GuestUser = "guest"
	}

	d := &Daemon{
		cfg:      cfg,
		auth:     NewStaticAuthenticator(nil),
		launcher: &RecordingLauncher{},
		log:      logger.With("component", "daemon"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Serve runs one greeter link over rwc until it closes or ctx ends
func (d *Daemon) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := ipc.NewConn(rwc)
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	return d.ServeConn(ctx, conn)
}

// ServeConn runs one greeter link. It returns nil when the greeter hangs up.
func (d *Daemon) ServeConn(ctx context.Context, conn *ipc.Conn) error {
	eg, ctx := errgroup.WithContext(ctx)
	l := &link{
		d:    d,
		conn: conn,
		eg:   eg,
		log:  d.log,
	}

	eg.Go(func() error {
		err := l.readLoop(ctx)
		l.abortConversation()
		return err
	})

	err := eg.Wait()
	if errors.Is(err, io.EOF) || errors.Is(err, ipc.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
