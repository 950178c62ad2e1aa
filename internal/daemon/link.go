package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/bnema/lightgreet/internal/protocol"
)

// ErrConversation is returned when the greeter answers a turn with the wrong
// number of responses
var ErrConversation = errors.New("conversation error")

// link is the daemon side of one greeter connection
type link struct {
	d    *Daemon
	conn *ipc.Conn
	eg   *errgroup.Group
	log  *log.Logger

	mu            sync.Mutex
	connected     bool
	conv          *conversation
	authUser      string
	authenticated bool
	remoteSession string
	language      string
}

// conversation is one authentication sequence
type conversation struct {
	l        *link
	seq      uint32
	username string
	ctx      context.Context
	cancel   context.CancelFunc

	// waiting is the number of answers expected, guarded by l.mu
	waiting int
	answers chan []string
}

func (c *conversation) Converse(ctx context.Context, messages []protocol.PromptMessage) ([]string, error) {
	prompts := 0
	for _, m := range messages {
		if m.Style.IsPrompt() {
			prompts++
		}
	}

	c.l.mu.Lock()
	if c.l.conv != c {
		c.l.mu.Unlock()
		return nil, context.Canceled
	}
	c.waiting = prompts
	c.l.mu.Unlock()

	err := c.l.conn.WriteMessage(protocol.PromptAuthentication{
		Sequence: c.seq,
		Username: c.username,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}
	if prompts == 0 {
		return nil, nil
	}

	select {
	case answers := <-c.answers:
		if len(answers) != prompts {
			return nil, fmt.Errorf("%w: expected %d answers, got %d", ErrConversation, prompts, len(answers))
		}
		return answers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *link) readLoop(ctx context.Context) error {
	for {
		frame, err := l.conn.ReadFrame()
		if err != nil {
			return err
		}

		msg, err := protocol.DecodeGreeterMessage(frame)
		if err != nil {
			l.log.Warn("Ignoring undecodable greeter message", "id", frame.ID, "err", err)
			continue
		}
		if err := l.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (l *link) handle(ctx context.Context, msg protocol.Message) error {
	if _, ok := msg.(protocol.Connect); !ok {
		l.mu.Lock()
		connected := l.connected
		l.mu.Unlock()
		if !connected {
			l.log.Warn("Ignoring message before connect", "id", msg.MessageID())
			return nil
		}
	}

	switch m := msg.(type) {
	case protocol.Connect:
		return l.handleConnect(m)
	case protocol.Authenticate:
		return l.startAuthentication(ctx, m.Sequence, m.Username, "")
	case protocol.AuthenticateRemote:
		return l.startAuthentication(ctx, m.Sequence, m.Username, m.Session)
	case protocol.AuthenticateAsGuest:
		return l.authenticateGuest(m.Sequence)
	case protocol.ContinueAuthentication:
		l.continueAuthentication(m.Responses)
	case protocol.CancelAuthentication:
		l.cancelAuthentication()
	case protocol.StartSession:
		return l.startSession(ctx, m.Session)
	case protocol.SetLanguage:
		l.setLanguage(m.Language)
	case protocol.EnsureSharedDir:
		return l.ensureSharedDir(m.Username)
	default:
		l.log.Debug("Ignoring greeter message", "id", msg.MessageID())
	}
	return nil
}

func (l *link) handleConnect(m protocol.Connect) error {
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()

	l.log.Info("Greeter connected", "version", m.Version, "api", m.APIVersion, "resettable", m.Resettable)
	return l.conn.WriteMessage(protocol.Connected{
		Version:    l.d.cfg.Version,
		APIVersion: protocol.APIVersion,
		Hints:      l.d.cfg.Hints(),
		// Greeters that send no API version only understand the original reply
		Legacy: m.APIVersion == 0,
	})
}

// abortConversation drops the running conversation without answering it
func (l *link) abortConversation() {
	l.mu.Lock()
	c := l.conv
	l.conv = nil
	l.mu.Unlock()

	if c != nil {
		c.cancel()
	}
}

func (l *link) startAuthentication(ctx context.Context, seq uint32, username, remoteSession string) error {
	l.abortConversation()

	cctx, cancel := context.WithCancel(ctx)
	c := &conversation{
		l:        l,
		seq:      seq,
		username: username,
		ctx:      cctx,
		cancel:   cancel,
		answers:  make(chan []string, 1),
	}

	l.mu.Lock()
	l.conv = c
	l.authenticated = false
	l.authUser = username
	l.remoteSession = remoteSession
	l.mu.Unlock()

	l.log.Debug("Starting authentication", "sequence", seq, "user", username, "remote", remoteSession)
	l.eg.Go(func() error {
		return l.runConversation(c)
	})
	return nil
}

func (l *link) runConversation(c *conversation) error {
	defer c.cancel()

	user, err := l.d.auth.Authenticate(c.ctx, c.username, c)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conv != c {
		// Superseded or the link is gone
		return nil
	}
	l.conv = nil

	rc := ResultSuccess
	switch {
	case c.ctx.Err() != nil:
		rc = ResultConvError
	case err != nil:
		rc = ResultAuthError
		l.log.Info("Authentication failed", "user", user, "err", err)
	default:
		l.authenticated = true
		l.log.Info("Authentication succeeded", "user", user)
	}
	if user != "" {
		l.authUser = user
	}

	// Held across the write so a new sequence cannot start before this one ends
	return l.conn.WriteMessage(protocol.EndAuthentication{
		Sequence:   c.seq,
		Username:   user,
		ReturnCode: rc,
	})
}

func (l *link) authenticateGuest(seq uint32) error {
	l.abortConversation()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.remoteSession = ""
	l.authenticated = l.d.cfg.GuestEnabled
	rc := ResultAuthError
	user := ""
	if l.authenticated {
		rc = ResultSuccess
		user = l.d.cfg.GuestUser
	}
	l.authUser = user

	l.log.Debug("Guest authentication", "sequence", seq, "enabled", l.d.cfg.GuestEnabled)
	return l.conn.WriteMessage(protocol.EndAuthentication{
		Sequence:   seq,
		Username:   user,
		ReturnCode: rc,
	})
}

func (l *link) continueAuthentication(responses []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.conv
	if c == nil || c.waiting == 0 {
		l.log.Debug("Ignoring stale responses")
		return
	}
	c.waiting = 0
	c.answers <- responses
}

func (l *link) cancelAuthentication() {
	l.mu.Lock()
	c := l.conv
	l.mu.Unlock()

	if c == nil {
		l.log.Debug("Ignoring cancel without authentication")
		return
	}
	// runConversation answers with END_AUTHENTICATION once the authenticator returns
	c.cancel()
}

func (l *link) startSession(ctx context.Context, session string) error {
	l.mu.Lock()
	launch := Launch{
		User:          l.authUser,
		Session:       session,
		Language:      l.language,
		RemoteSession: l.remoteSession,
	}
	authenticated := l.authenticated
	l.mu.Unlock()

	if launch.Session == "" {
		launch.Session = l.d.cfg.DefaultSession
	}

	rc := ResultFailure
	switch {
	case !authenticated:
		l.log.Warn("Refusing to start session before authentication")
	case !l.d.cfg.knowsSession(launch.Session):
		l.log.Warn("Refusing to start unknown session", "session", launch.Session)
	default:
		if err := l.d.launcher.Launch(ctx, launch); err != nil {
			l.log.Error("Failed to start session", "session", launch.Session, "err", err)
		} else {
			rc = ResultSuccess
		}
	}
	return l.conn.WriteMessage(protocol.SessionResult{ReturnCode: rc})
}

func (l *link) setLanguage(language string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.authenticated {
		l.log.Debug("Ignoring language before authentication", "language", language)
		return
	}
	l.language = language
}

func (l *link) ensureSharedDir(username string) error {
	dir := ""
	if l.d.shared != nil {
		var err error
		if dir, err = l.d.shared.Ensure(username); err != nil {
			l.log.Warn("Failed to provide shared dir", "user", username, "err", err)
			dir = ""
		}
	}
	return l.conn.WriteMessage(protocol.SharedDirResult{Dir: dir})
}
