package greeter

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/bnema/lightgreet/internal/protocol"
)

const opConnect = "connect"

// ConnectToDaemonFuture starts connecting and returns the pending result.
// ctx bounds the dial and the handshake wait. When ctx ends first the half-open
// link is dropped, so a later connect starts afresh.
func (g *Greeter) ConnectToDaemonFuture(ctx context.Context) *Future[struct{}] {
	g.mu.Lock()
	if g.connected {
		g.mu.Unlock()
		return failedFuture[struct{}](stateError(opConnect, "already connected"))
	}
	if g.connecting != nil {
		g.mu.Unlock()
		return failedFuture[struct{}](stateError(opConnect, "connect already in progress"))
	}
	f := newFuture[struct{}]()
	g.connecting = f
	g.mu.Unlock()

	go g.watchConnect(ctx, f)
	go g.handshake(ctx, f)
	return f
}

// ConnectToDaemonSync connects and blocks until the daemon acknowledges.
// A ctx that expires first leaves the greeter disconnected and ready to retry.
func (g *Greeter) ConnectToDaemonSync(ctx context.Context) error {
	_, err := g.ConnectToDaemonFuture(ctx).Wait(ctx)
	return err
}

// ConnectSync is the old name of ConnectToDaemonSync.
//
// Deprecated: use ConnectToDaemonSync.
func (g *Greeter) ConnectSync(ctx context.Context) error {
	return g.ConnectToDaemonSync(ctx)
}

// ConnectToDaemon connects without blocking. done runs once on loop with the result.
func (g *Greeter) ConnectToDaemon(ctx context.Context, loop *Loop, done func(error)) {
	g.checkLoop(loop)
	g.ConnectToDaemonFuture(ctx).then(ctx, loop, func(_ struct{}, err error) {
		if done != nil {
			done(err)
		}
	})
}

func (g *Greeter) handshake(ctx context.Context, f *Future[struct{}]) {
	rwc, err := g.dial(ctx)
	if err != nil {
		g.mu.Lock()
		if g.connecting == f {
			g.connecting = nil
		}
		g.mu.Unlock()
		f.fail(connectError(err))
		return
	}

	conn := ipc.NewConn(rwc)

	g.mu.Lock()
	if g.connecting != f {
		// Closed while dialling
		g.mu.Unlock()
		_ = conn.Close()
		return
	}
	g.conn = conn
	g.mu.Unlock()

	go g.readLoop(conn)

	g.sendMu.Lock()
	err = conn.WriteMessage(protocol.Connect{
		Version:    g.opts.version,
		Resettable: g.opts.resettable,
		APIVersion: protocol.APIVersion,
	})
	g.sendMu.Unlock()
	if err != nil {
		g.linkLost(conn, err)
	}
}

// watchConnect drops the pending link when f ends without the daemon's answer,
// either because ctx ended or because a waiter gave up on f
func (g *Greeter) watchConnect(ctx context.Context, f *Future[struct{}]) {
	select {
	case <-f.Done():
	case <-ctx.Done():
	}

	g.mu.Lock()
	if g.connecting != f {
		g.mu.Unlock()
		return
	}
	g.connecting = nil
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	g.log.Debug("Connect abandoned", "err", ctx.Err())
	f.fail(connectError(ctx.Err()))
}

func (g *Greeter) handleConnected(conn *ipc.Conn, m protocol.Connected) {
	g.mu.Lock()
	f := g.connecting
	if f == nil || g.conn != conn {
		g.mu.Unlock()
		g.log.Debug("Ignoring unexpected connected message")
		return
	}
	g.connecting = nil

	if m.APIVersion < g.opts.minAPIVersion {
		g.conn = nil
		g.mu.Unlock()
		_ = conn.Close()
		f.fail(newError(KindConnection, opConnect,
			fmt.Sprintf("daemon speaks greeter API %d, need at least %d", m.APIVersion, g.opts.minAPIVersion), nil))
		return
	}

	g.connected = true
	g.daemonVersion = m.Version
	g.apiVersion = m.APIVersion
	g.hints = m.Hints
	if g.hints == nil {
		g.hints = map[string]string{}
	}

	// A fresh link starts a fresh authentication
	g.state = StateIdle
	g.authUser = ""
	g.dispatched = false
	g.dispatchedName = ""
	g.startAutologinTimerLocked()
	g.mu.Unlock()

	g.log.Debug("Connected to daemon", "version", m.Version, "api", m.APIVersion)
	f.resolve(struct{}{}, nil)
}

func connectError(err error) *Error {
	switch {
	case errors.Is(err, ipc.ErrPermission):
		return newError(KindConnection, opConnect, "permission denied", err)
	case errors.Is(err, ipc.ErrNoDaemon):
		return newError(KindConnection, opConnect, "daemon unreachable", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(KindCancelled, opConnect, "", err)
	default:
		return newError(KindConnection, opConnect, "", err)
	}
}
