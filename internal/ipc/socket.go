package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/lightgreet/internal/logger"
)

// ConnHandler serves one greeter link until it ends
type ConnHandler interface {
	ServeConn(ctx context.Context, conn *Conn) error
}

// ConnHandlerFunc adapts a function to ConnHandler
type ConnHandlerFunc func(ctx context.Context, conn *Conn) error

func (f ConnHandlerFunc) ServeConn(ctx context.Context, conn *Conn) error {
	return f(ctx, conn)
}

// SocketServer accepts greeter links on a unix socket
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    ConnHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a socket server. An empty socketPath selects the
// default per-user path.
func NewSocketServer(socketPath string, handler ConnHandler) (*SocketServer, error) {
	if socketPath == "" {
		path, err := getSocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
		socketPath = path
	}

	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
	}, nil
}

// SocketPath returns the path the server listens on
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Greeters run as the same user as the daemon in test mode
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Info("Greeter socket listening", "path", s.socketPath)
	return nil
}

// Stop stops the socket server and closes every open link
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.wg.Wait()

	_ = os.RemoveAll(s.socketPath)

	logger.Info("Greeter socket stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("Failed to accept connection: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, NewConn(nc))
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn *Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	// Unblock the handler's reads when the server stops
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger.Debug("Greeter connected")
	if err := s.handler.ServeConn(ctx, conn); err != nil {
		logger.Debug("Greeter link ended", "err", err)
		return
	}
	logger.Debug("Greeter disconnected")
}
