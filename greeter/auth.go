package greeter

import (
	"fmt"
	"time"

	"github.com/bnema/lightgreet/internal/protocol"
)

// Authenticate starts authentication for username, or asks the daemon to
// prompt for one when username is empty. A nil error means the request was
// sent; the outcome arrives through the handlers.
func (g *Greeter) Authenticate(username string) error {
	return g.beginAuthentication("authenticate", username, "", func(seq uint32) protocol.Message {
		return protocol.Authenticate{Sequence: seq, Username: username}
	})
}

// AuthenticateAsGuest starts authentication for the guest account
func (g *Greeter) AuthenticateAsGuest() error {
	return g.beginAuthentication("authenticate as guest", "", "", func(seq uint32) protocol.Message {
		return protocol.AuthenticateAsGuest{Sequence: seq}
	})
}

// AuthenticateRemote starts authentication for a remote session type
func (g *Greeter) AuthenticateRemote(session, username string) error {
	return g.beginAuthentication("authenticate remote", username, session, func(seq uint32) protocol.Message {
		return protocol.AuthenticateRemote{Sequence: seq, Session: session, Username: username}
	})
}

// AuthenticateAutologin authenticates the account the daemon configured for
// automatic login
func (g *Greeter) AuthenticateAutologin() error {
	const op = "authenticate autologin"

	g.mu.Lock()
	connected := g.connected
	guest := hintBool(g.hints, HintAutologinGuest)
	user := g.hints[HintAutologinUser]
	g.mu.Unlock()

	switch {
	case !connected:
		return stateError(op, "not connected")
	case guest:
		return g.AuthenticateAsGuest()
	case user != "":
		return g.Authenticate(user)
	default:
		return stateError(op, "no autologin configured")
	}
}

func (g *Greeter) beginAuthentication(op, username, remoteSession string, build func(seq uint32) protocol.Message) error {
	if err := sizeError(op, build(0)); err != nil {
		return err
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return stateError(op, "not connected")
	}
	if g.state.InFlight() {
		state := g.state
		g.mu.Unlock()
		return stateError(op, fmt.Sprintf("authentication already in progress (%s)", state))
	}

	g.stopAutologinTimerLocked()
	g.authSeq++
	seq := g.authSeq
	g.state = StateAwaitingPrompt
	g.authUser = username
	g.remoteSession = remoteSession
	g.promptsWaiting = 0
	g.responses = nil
	conn := g.conn
	g.mu.Unlock()

	g.log.Debug("Starting authentication", "op", op, "user", username, "sequence", seq)
	if err := conn.WriteMessage(build(seq)); err != nil {
		g.mu.Lock()
		if g.authSeq == seq && g.state.InFlight() {
			g.state = StateFailed
		}
		g.mu.Unlock()
		return transportError(op, err)
	}
	return nil
}

// Respond answers the oldest unanswered prompt. Once every prompt of the
// current turn has an answer they are sent to the daemon together.
func (g *Greeter) Respond(response string) error {
	const op = "respond"

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.Lock()
	if g.state != StateAwaitingPrompt || g.promptsWaiting == 0 {
		state := g.state
		g.mu.Unlock()
		return stateError(op, fmt.Sprintf("not expecting a response (%s)", state))
	}

	// Answers of one turn share a frame
	pending := append(append([]string(nil), g.responses...), response)
	if err := sizeError(op, protocol.ContinueAuthentication{Responses: pending}); err != nil {
		g.mu.Unlock()
		return err
	}

	g.responses = pending
	g.promptsWaiting--
	if g.promptsWaiting > 0 {
		g.mu.Unlock()
		return nil
	}

	responses := g.responses
	g.responses = nil
	g.state = StateResponding
	seq := g.authSeq
	conn := g.conn
	g.mu.Unlock()

	if err := conn.WriteMessage(protocol.ContinueAuthentication{Responses: responses}); err != nil {
		g.mu.Lock()
		if g.authSeq == seq && g.state.InFlight() {
			g.state = StateFailed
		}
		g.mu.Unlock()
		return transportError(op, err)
	}
	return nil
}

// CancelAuthentication asks the daemon to abort the current sequence. The
// state becomes Cancelled when the daemon acknowledges.
func (g *Greeter) CancelAuthentication() error {
	const op = "cancel authentication"

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.Lock()
	if !g.state.InFlight() {
		state := g.state
		g.mu.Unlock()
		return stateError(op, fmt.Sprintf("no authentication in progress (%s)", state))
	}
	if g.state == StateCancelling {
		g.mu.Unlock()
		return nil
	}

	g.state = StateCancelling
	g.promptsWaiting = 0
	g.responses = nil
	conn := g.conn
	g.mu.Unlock()

	if err := conn.WriteMessage(protocol.CancelAuthentication{}); err != nil {
		return transportError(op, err)
	}
	return nil
}

// SetLanguage sets the language for the authenticated user's session
func (g *Greeter) SetLanguage(language string) error {
	const op = "set language"

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return stateError(op, "not connected")
	}
	if g.state != StateAuthenticated {
		state := g.state
		g.mu.Unlock()
		return stateError(op, fmt.Sprintf("not authenticated (%s)", state))
	}
	if err := sizeError(op, protocol.SetLanguage{Language: language}); err != nil {
		g.mu.Unlock()
		return err
	}
	g.language = language
	conn := g.conn
	g.mu.Unlock()

	if err := conn.WriteMessage(protocol.SetLanguage{Language: language}); err != nil {
		return transportError(op, err)
	}
	return nil
}

func (g *Greeter) handlePrompt(m protocol.PromptAuthentication) {
	g.mu.Lock()
	if m.Sequence != g.authSeq || (g.state != StateAwaitingPrompt && g.state != StateResponding) {
		state := g.state
		g.mu.Unlock()
		g.log.Debug("Ignoring prompt", "sequence", m.Sequence, "state", state)
		return
	}

	if m.Username != "" {
		g.authUser = m.Username
	}

	h := g.opts.handlers
	var notify []func()
	for _, pm := range m.Messages {
		text := pm.Text
		switch pm.Style {
		case protocol.StyleSecret, protocol.StyleQuestion:
			g.promptsWaiting++
			kind := PromptTypeQuestion
			if pm.Style == protocol.StyleSecret {
				kind = PromptTypeSecret
			}
			if h.ShowPrompt != nil {
				notify = append(notify, func() { h.ShowPrompt(text, kind) })
			}
		case protocol.StyleInfo, protocol.StyleError:
			kind := MessageTypeInfo
			if pm.Style == protocol.StyleError {
				kind = MessageTypeError
			}
			if h.ShowMessage != nil {
				notify = append(notify, func() { h.ShowMessage(text, kind) })
			}
		default:
			g.log.Debug("Ignoring prompt message with unknown style", "style", pm.Style)
		}
	}
	if g.promptsWaiting > 0 {
		g.state = StateAwaitingPrompt
	}
	g.mu.Unlock()

	for _, fn := range notify {
		g.loop.post(fn)
	}
}

func (g *Greeter) handleEndAuthentication(m protocol.EndAuthentication) {
	g.mu.Lock()
	if m.Sequence != g.authSeq || !g.state.InFlight() {
		state := g.state
		g.mu.Unlock()
		g.log.Debug("Ignoring end of authentication", "sequence", m.Sequence, "state", state)
		return
	}

	if m.Username != "" {
		g.authUser = m.Username
	}
	switch {
	case g.state == StateCancelling:
		g.state = StateCancelled
	case m.ReturnCode == 0:
		g.state = StateAuthenticated
	default:
		g.state = StateFailed
	}
	g.promptsWaiting = 0
	g.responses = nil
	state := g.state
	user := g.authUser
	g.mu.Unlock()

	g.log.Debug("Authentication complete", "user", user, "state", state, "code", m.ReturnCode)
	g.emit(g.opts.handlers.AuthenticationComplete)
}

// State returns the authentication state
func (g *Greeter) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// InAuthentication reports whether a sequence is in flight
func (g *Greeter) InAuthentication() bool {
	return g.State().InFlight()
}

// IsAuthenticated reports whether the last sequence succeeded
func (g *Greeter) IsAuthenticated() bool {
	return g.State() == StateAuthenticated
}

// AuthenticationUser is the user being or last authenticated
func (g *Greeter) AuthenticationUser() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authUser
}

// RemoteSession is the remote session type of the current sequence, if any
func (g *Greeter) RemoteSession() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remoteSession
}

// Language is the language last sent with SetLanguage
func (g *Greeter) Language() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.language
}

// CancelAutologin stops the autologin timer, if running
func (g *Greeter) CancelAutologin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopAutologinTimerLocked()
}

func (g *Greeter) startAutologinTimerLocked() {
	g.stopAutologinTimerLocked()

	timeout := hintInt(g.hints, HintAutologinTimeout)
	if timeout <= 0 {
		return
	}
	if g.hints[HintAutologinUser] == "" && !hintBool(g.hints, HintAutologinGuest) {
		return
	}

	expired := g.opts.handlers.AutologinTimerExpired
	var t *time.Timer
	t = time.AfterFunc(time.Duration(timeout)*time.Second, func() {
		g.mu.Lock()
		if g.autologinTimer != t {
			g.mu.Unlock()
			return
		}
		g.autologinTimer = nil
		g.mu.Unlock()

		g.log.Debug("Autologin timer expired")
		g.emit(expired)
	})
	g.autologinTimer = t
}

func (g *Greeter) stopAutologinTimerLocked() {
	if g.autologinTimer != nil {
		g.autologinTimer.Stop()
		g.autologinTimer = nil
	}
}
