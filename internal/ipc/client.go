package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
)

// Environment variables LightDM uses to hand the greeter its pipe pair
const (
	EnvToServerFD   = "LIGHTDM_TO_SERVER_FD"
	EnvFromServerFD = "LIGHTDM_FROM_SERVER_FD"
)

var (
	// ErrNoDaemon is returned when no daemon socket or pipe is available
	ErrNoDaemon = errors.New("display manager daemon is not running")

	// ErrPermission is returned when the channel exists but may not be opened
	ErrPermission = errors.New("permission denied")
)

// pipePair joins the two unidirectional pipes into one stream
type pipePair struct {
	from *os.File
	to   *os.File
}

func (p *pipePair) Read(b []byte) (int, error)  { return p.from.Read(b) }
func (p *pipePair) Write(b []byte) (int, error) { return p.to.Write(b) }

func (p *pipePair) Close() error {
	errFrom := p.from.Close()
	errTo := p.to.Close()
	if errFrom != nil {
		return errFrom
	}
	return errTo
}

// HasEnvPipes reports whether the process was started by a daemon that
// passed greeter pipes
func HasEnvPipes() bool {
	return os.Getenv(EnvToServerFD) != "" && os.Getenv(EnvFromServerFD) != ""
}

// DialEnv opens the pipe pair named by the LIGHTDM_*_FD variables
func DialEnv() (io.ReadWriteCloser, error) {
	toFD, err := envFD(EnvToServerFD)
	if err != nil {
		return nil, err
	}
	fromFD, err := envFD(EnvFromServerFD)
	if err != nil {
		return nil, err
	}

	to := os.NewFile(uintptr(toFD), "lightdm-to-server")
	from := os.NewFile(uintptr(fromFD), "lightdm-from-server")
	if to == nil || from == nil {
		return nil, fmt.Errorf("%w: invalid greeter pipe descriptors", ErrNoDaemon)
	}

	return &pipePair{from: from, to: to}, nil
}

func envFD(name string) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return 0, fmt.Errorf("%w: %s not set", ErrNoDaemon, name)
	}
	fd, err := strconv.Atoi(value)
	if err != nil || fd < 0 {
		return 0, fmt.Errorf("%w: %s=%q is not a file descriptor", ErrNoDaemon, name, value)
	}
	return fd, nil
}

// DialSocket connects to a daemon listening on a unix socket
func DialSocket(ctx context.Context, socketPath string) (io.ReadWriteCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		switch {
		case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
			return nil, fmt.Errorf("%w: %s", ErrPermission, socketPath)
		case isConnectionRefused(err):
			return nil, fmt.Errorf("%w: %s", ErrNoDaemon, socketPath)
		}
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// isConnectionRefused checks if the error is a failed dial
func isConnectionRefused(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Op == "dial" {
			return true
		}
	}
	return false
}

// getSocketPath returns the path for the Unix socket
func getSocketPath() (string, error) {
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}

	// Use /tmp/lightgreet-{username}.sock
	socketPath := filepath.Join("/tmp", fmt.Sprintf("lightgreet-%s.sock", currentUser.Username))
	return socketPath, nil
}

// GetSocketPath returns the default socket path shared by the daemon and greeters
func GetSocketPath() (string, error) {
	return getSocketPath()
}
