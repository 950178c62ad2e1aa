package daemon

import (
	"context"
	"sync"

	"github.com/bnema/lightgreet/internal/logger"
)

// Launch describes a session the daemon was asked to start
type Launch struct {
	User          string
	Session       string
	Language      string
	RemoteSession string
}

// Launcher starts user sessions
type Launcher interface {
	Launch(ctx context.Context, l Launch) error
}

// RecordingLauncher logs and remembers every launch without running anything
type RecordingLauncher struct {
	mu       sync.Mutex
	launches []Launch
}

func (r *RecordingLauncher) Launch(_ context.Context, l Launch) error {
	r.mu.Lock()
	r.launches = append(r.launches, l)
	r.mu.Unlock()

	logger.Info("Starting session", "user", l.User, "session", l.Session, "language", l.Language)
	return nil
}

// Launches returns the launches seen so far
func (r *RecordingLauncher) Launches() []Launch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Launch(nil), r.launches...)
}
