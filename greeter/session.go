package greeter

import (
	"context"
	"fmt"

	"github.com/bnema/lightgreet/internal/protocol"
)

const opStartSession = "start session"

// StartSessionFuture asks the daemon to start session for the authenticated
// user; an empty session selects the daemon default. Fails without contacting
// the daemon unless authentication has succeeded.
func (g *Greeter) StartSessionFuture(session string) *Future[struct{}] {
	if err := sizeError(opStartSession, protocol.StartSession{Session: session}); err != nil {
		return failedFuture[struct{}](err)
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return failedFuture[struct{}](stateError(opStartSession, "not connected"))
	}
	if g.state != StateAuthenticated {
		state := g.state
		g.mu.Unlock()
		return failedFuture[struct{}](stateError(opStartSession, fmt.Sprintf("not authenticated (%s)", state)))
	}
	if g.session != nil {
		g.mu.Unlock()
		return failedFuture[struct{}](stateError(opStartSession, "session start already in progress"))
	}

	f := newFuture[struct{}]()
	g.session = f
	g.sessionName = session
	conn := g.conn
	g.mu.Unlock()

	if err := conn.WriteMessage(protocol.StartSession{Session: session}); err != nil {
		g.mu.Lock()
		if g.session == f {
			g.session = nil
		}
		g.mu.Unlock()
		f.fail(transportError(opStartSession, err))
	}
	return f
}

// StartSessionSync starts a session and blocks until the daemon answers
func (g *Greeter) StartSessionSync(ctx context.Context, session string) error {
	_, err := g.StartSessionFuture(session).Wait(ctx)
	return err
}

// StartSession starts a session without blocking. done runs once on loop.
func (g *Greeter) StartSession(ctx context.Context, loop *Loop, session string, done func(error)) {
	g.checkLoop(loop)
	g.StartSessionFuture(session).then(ctx, loop, func(_ struct{}, err error) {
		if done != nil {
			done(err)
		}
	})
}

func (g *Greeter) handleSessionResult(m protocol.SessionResult) {
	g.mu.Lock()
	f := g.session
	name := g.sessionName
	g.session = nil
	if f == nil {
		g.mu.Unlock()
		g.log.Debug("Ignoring unsolicited session result", "code", m.ReturnCode)
		return
	}
	if m.ReturnCode == 0 {
		g.dispatched = true
		g.dispatchedName = name
	}
	g.mu.Unlock()

	if m.ReturnCode != 0 {
		f.fail(newError(KindDaemonRejected, opStartSession, fmt.Sprintf("daemon returned code %d", m.ReturnCode), nil))
		return
	}
	g.log.Debug("Session dispatched", "session", name)
	f.resolve(struct{}{}, nil)
}

// DispatchedSession reports the session the daemon accepted to start. An
// empty name with ok set means the default session.
func (g *Greeter) DispatchedSession() (name string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dispatchedName, g.dispatched
}
