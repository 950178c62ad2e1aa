package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/bnema/lightgreet/internal/logger"
)

// DefaultSharedDirRoot is where LightDM keeps per-user greeter data
const DefaultSharedDirRoot = "/var/lib/lightdm-data"

var ErrInvalidUsername = errors.New("invalid username")

var usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}\$?$`)

// ValidUsername reports whether u is a plausible system account name
func ValidUsername(u string) bool {
	return usernameRe.MatchString(u)
}

// SharedDirProvisioner creates directories shared between the greeter and a user
type SharedDirProvisioner struct {
	root         string
	greeterGroup string

	lookupUser  func(name string) (uid, gid int, err error)
	lookupGroup func(name string) (gid int, err error)
	chown       func(path string, uid, gid int) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// SharedDirOption configures a SharedDirProvisioner
type SharedDirOption func(*SharedDirProvisioner)

// WithUserLookup replaces the account database lookup
func WithUserLookup(fn func(name string) (uid, gid int, err error)) SharedDirOption {
	return func(p *SharedDirProvisioner) { p.lookupUser = fn }
}

// WithGroupLookup replaces the group database lookup
func WithGroupLookup(fn func(name string) (gid int, err error)) SharedDirOption {
	return func(p *SharedDirProvisioner) { p.lookupGroup = fn }
}

// WithChown replaces os.Chown
func WithChown(fn func(path string, uid, gid int) error) SharedDirOption {
	return func(p *SharedDirProvisioner) { p.chown = fn }
}

// NewSharedDirProvisioner creates directories under root, group-owned by
// greeterGroup. An empty greeterGroup keeps the user's primary group.
func NewSharedDirProvisioner(root, greeterGroup string, opts ...SharedDirOption) *SharedDirProvisioner {
	if root == "" {
		root = DefaultSharedDirRoot
	}
	p := &SharedDirProvisioner{
		root:         root,
		greeterGroup: greeterGroup,
		lookupUser:   lookupUser,
		lookupGroup:  lookupGroup,
		chown:        os.Chown,
		locks:        map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root is the directory holding every shared directory
func (p *SharedDirProvisioner) Root() string {
	return p.root
}

func (p *SharedDirProvisioner) muFor(path string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m := p.locks[path]; m != nil {
		return m
	}
	m := &sync.Mutex{}
	p.locks[path] = m
	return m
}

// Ensure returns the shared directory of username, creating it on first use
func (p *SharedDirProvisioner) Ensure(username string) (string, error) {
	if !ValidUsername(username) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	path := filepath.Join(p.root, username)
	m := p.muFor(path)
	m.Lock()
	defer m.Unlock()

	if st, err := os.Stat(path); err == nil {
		if !st.IsDir() {
			return "", fmt.Errorf("shared dir %s is not a directory", path)
		}
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat shared dir: %w", err)
	}

	uid, gid, err := p.lookupUser(username)
	if err != nil {
		return "", fmt.Errorf("failed to look up user %s: %w", username, err)
	}
	if p.greeterGroup != "" {
		if gid, err = p.lookupGroup(p.greeterGroup); err != nil {
			return "", fmt.Errorf("failed to look up group %s: %w", p.greeterGroup, err)
		}
	}

	if err := os.MkdirAll(p.root, 0755); err != nil {
		return "", fmt.Errorf("failed to create shared dir root: %w", err)
	}
	if err := os.Mkdir(path, 0770); err != nil {
		return "", fmt.Errorf("failed to create shared dir: %w", err)
	}
	// Mkdir is subject to the umask
	if err := os.Chmod(path, 0770); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to set shared dir permissions: %w", err)
	}
	if err := p.chown(path, uid, gid); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to set shared dir owner: %w", err)
	}

	logger.Debug("Created shared dir", "path", path, "uid", uid, "gid", gid)
	return path, nil
}

func lookupUser(name string) (int, int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

func lookupGroup(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}
