package greeter

import (
	"context"

	"github.com/bnema/lightgreet/internal/protocol"
)

const opSharedDir = "ensure shared data dir"

// EnsureSharedDataDirFuture asks the daemon for a directory shared between
// the greeter and username. Both get write access. Requests are answered in
// the order they were sent.
func (g *Greeter) EnsureSharedDataDirFuture(username string) *Future[string] {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	msg := protocol.EnsureSharedDir{Username: username}
	if err := sizeError(opSharedDir, msg); err != nil {
		return failedFuture[string](err)
	}

	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return failedFuture[string](stateError(opSharedDir, "not connected"))
	}
	f := newFuture[string]()
	g.sharedDirs = append(g.sharedDirs, f)
	conn := g.conn
	g.mu.Unlock()

	if err := conn.WriteMessage(msg); err != nil {
		g.mu.Lock()
		g.sharedDirs = removeFuture(g.sharedDirs, f)
		g.mu.Unlock()
		f.fail(transportError(opSharedDir, err))
	}
	return f
}

// EnsureSharedDataDirSync blocks until the daemon returns the directory path
func (g *Greeter) EnsureSharedDataDirSync(ctx context.Context, username string) (string, error) {
	return g.EnsureSharedDataDirFuture(username).Wait(ctx)
}

// EnsureSharedDataDir requests the directory without blocking. done runs once on loop.
func (g *Greeter) EnsureSharedDataDir(ctx context.Context, loop *Loop, username string, done func(string, error)) {
	g.checkLoop(loop)
	g.EnsureSharedDataDirFuture(username).then(ctx, loop, done)
}

func (g *Greeter) handleSharedDirResult(m protocol.SharedDirResult) {
	g.mu.Lock()
	if len(g.sharedDirs) == 0 {
		g.mu.Unlock()
		g.log.Debug("Ignoring unsolicited shared dir result")
		return
	}
	f := g.sharedDirs[0]
	g.sharedDirs = g.sharedDirs[1:]
	g.mu.Unlock()

	if m.Dir == "" {
		f.fail(newError(KindDaemonRejected, opSharedDir, "daemon could not provide the directory", nil))
		return
	}
	f.resolve(m.Dir, nil)
}

func removeFuture[T any](list []*Future[T], f *Future[T]) []*Future[T] {
	for i, item := range list {
		if item == f {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
