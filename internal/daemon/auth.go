package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/bcrypt"

	"github.com/bnema/lightgreet/internal/protocol"
)

var (
	ErrAuthFailed      = errors.New("authentication failed")
	ErrUnsupportedHash = errors.New("unsupported password hash")
	ErrUserLocked      = errors.New("user is locked")
)

// Conversation exchanges one turn of prompts with the greeter. Messages with
// no prompt style are delivered without waiting; otherwise the answers come
// back in prompt order.
type Conversation interface {
	Converse(ctx context.Context, messages []protocol.PromptMessage) ([]string, error)
}

// Authenticator verifies a user through a conversation. username may be
// empty, in which case the authenticator asks for it. It returns the user
// name it settled on, also on failure.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, conv Conversation) (string, error)
}

// askUsername prompts for a login name when none was given
func askUsername(ctx context.Context, conv Conversation) (string, error) {
	answers, err := conv.Converse(ctx, []protocol.PromptMessage{{Style: protocol.StyleQuestion, Text: "login:"}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answers[0]), nil
}

func askPassword(ctx context.Context, conv Conversation) (string, error) {
	answers, err := conv.Converse(ctx, []protocol.PromptMessage{{Style: protocol.StyleSecret, Text: "Password: "}})
	if err != nil {
		return "", err
	}
	return answers[0], nil
}

func reportFailure(ctx context.Context, conv Conversation, text string) {
	_, _ = conv.Converse(ctx, []protocol.PromptMessage{{Style: protocol.StyleError, Text: text}})
}

// StaticAuthenticator checks passwords against a fixed table of hashes
type StaticAuthenticator struct {
	users map[string]string
}

// NewStaticAuthenticator maps user names to crypt(3) or bcrypt hashes
func NewStaticAuthenticator(users map[string]string) *StaticAuthenticator {
	copied := make(map[string]string, len(users))
	for name, hash := range users {
		copied[name] = hash
	}
	return &StaticAuthenticator{users: copied}
}

func (a *StaticAuthenticator) Authenticate(ctx context.Context, username string, conv Conversation) (string, error) {
	var err error
	if username == "" {
		if username, err = askUsername(ctx, conv); err != nil {
			return "", err
		}
	}

	password, err := askPassword(ctx, conv)
	if err != nil {
		return username, err
	}

	hash, ok := a.users[username]
	if !ok {
		reportFailure(ctx, conv, "Authentication failure")
		return username, ErrAuthFailed
	}
	if err := VerifyPassword(hash, password); err != nil {
		reportFailure(ctx, conv, "Authentication failure")
		return username, err
	}
	return username, nil
}

// VerifyPassword checks password against a crypt(3) or bcrypt hash
func VerifyPassword(hash, password string) error {
	if hash == "" || strings.HasPrefix(hash, "!") || strings.HasPrefix(hash, "*") {
		return ErrUserLocked
	}

	if strings.HasPrefix(hash, "$2") {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			return ErrAuthFailed
		}
		return nil
	}

	c, err := crypterFor(hash)
	if err != nil {
		return err
	}
	if err := c.Verify(hash, []byte(password)); err != nil {
		return ErrAuthFailed
	}
	return nil
}

func crypterFor(hash string) (crypt.Crypter, error) {
	switch {
	case strings.HasPrefix(hash, sha512_crypt.MagicPrefix):
		return sha512_crypt.New(), nil
	case strings.HasPrefix(hash, sha256_crypt.MagicPrefix):
		return sha256_crypt.New(), nil
	case strings.HasPrefix(hash, md5_crypt.MagicPrefix):
		return md5_crypt.New(), nil
	default:
		return nil, ErrUnsupportedHash
	}
}

// HashPassword hashes password with scheme "bcrypt" or "sha512"
func HashPassword(scheme, password string) (string, error) {
	switch scheme {
	case "", "bcrypt":
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		return string(b), nil
	case "sha512":
		hash, err := sha512_crypt.New().Generate([]byte(password), nil)
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		return hash, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedHash, scheme)
	}
}
