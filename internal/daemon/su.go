package daemon

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"
)

var ErrAuthBackend = errors.New("auth backend error")

// ErrSuAsRoot is returned when the su backend runs with euid 0, where su
// switches user without asking for a password
var ErrSuAsRoot = errors.New("su authenticator cannot run as root")

var geteuid = os.Geteuid

// SuAuthenticator verifies passwords by running su(1) behind a pty, so any
// hash format the host supports works
type SuAuthenticator struct {
	// Command is the su binary, "su" when empty
	Command string
	Timeout time.Duration
}

func (a *SuAuthenticator) Authenticate(ctx context.Context, username string, conv Conversation) (string, error) {
	var err error
	if username == "" {
		if username, err = askUsername(ctx, conv); err != nil {
			return "", err
		}
	}
	if !ValidUsername(username) {
		reportFailure(ctx, conv, "Authentication failure")
		return username, ErrAuthFailed
	}

	password, err := askPassword(ctx, conv)
	if err != nil {
		return username, err
	}

	ok, err := a.verify(ctx, username, password)
	if err != nil {
		return username, err
	}
	if !ok {
		reportFailure(ctx, conv, "Authentication failure")
		return username, ErrAuthFailed
	}
	return username, nil
}

// verify succeeds only when su asked for the password and then exited 0
func (a *SuAuthenticator) verify(ctx context.Context, username, password string) (bool, error) {
	if geteuid() == 0 {
		return false, fmt.Errorf("%w: %w", ErrAuthBackend, ErrSuAsRoot)
	}

	command := a.Command
	if command == "" {
		command = "su"
	}
	timeout := a.Timeout
	if timeout == 0 {
		timeout = 6 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, "-s", "/bin/sh", "-c", "true", username)
	f, err := pty.Start(cmd)
	if err != nil {
		return false, fmt.Errorf("%w: start su: %v", ErrAuthBackend, err)
	}
	defer func() { _ = f.Close() }()

	prompted := false
	var out bytes.Buffer
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		br := bufio.NewReader(f)
		buf := make([]byte, 4096)
		for {
			_ = f.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, rerr := br.Read(buf)
			if n > 0 {
				out.Write(buf[:n])
				if !prompted && strings.Contains(strings.ToLower(out.String()), "password") {
					prompted = true
					_, _ = io.WriteString(f, password+"\n")
				}
			}
			if rerr != nil {
				return
			}
		}
	}()

	err = cmd.Wait()
	<-readerDone

	if ctx.Err() != nil {
		return false, fmt.Errorf("%w: su: %v", ErrAuthBackend, ctx.Err())
	}
	return prompted && err == nil, nil
}
