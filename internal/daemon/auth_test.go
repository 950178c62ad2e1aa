package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/lightgreet/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConversation answers prompts from a fixed list
type scriptedConversation struct {
	answers []string
	seen    []protocol.PromptMessage
}

func (c *scriptedConversation) Converse(_ context.Context, messages []protocol.PromptMessage) ([]string, error) {
	c.seen = append(c.seen, messages...)
	var out []string
	for _, m := range messages {
		if m.Style.IsPrompt() {
			out = append(out, c.answers[0])
			c.answers = c.answers[1:]
		}
	}
	return out, nil
}

func TestVerifyPassword(t *testing.T) {
	bcryptHash, err := HashPassword("bcrypt", "secret")
	require.NoError(t, err)
	shaHash, err := HashPassword("sha512", "secret")
	require.NoError(t, err)
	require.Contains(t, shaHash, "$6$")

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error
	}{
		{"bcrypt", bcryptHash, "secret", nil},
		{"bcrypt wrong", bcryptHash, "nope", ErrAuthFailed},
		{"sha512", shaHash, "secret", nil},
		{"sha512 wrong", shaHash, "nope", ErrAuthFailed},
		{"locked", "!" + shaHash, "secret", ErrUserLocked},
		{"empty", "", "", ErrUserLocked},
		{"yescrypt", "$y$j9T$salt$hash", "secret", ErrUnsupportedHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword(tt.hash, tt.password)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHashPasswordUnknownScheme(t *testing.T) {
	_, err := HashPassword("rot13", "secret")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestStaticAuthenticatorUnknownUser(t *testing.T) {
	a := NewStaticAuthenticator(map[string]string{})
	conv := &scriptedConversation{answers: []string{"mallory", "pw"}}

	user, err := a.Authenticate(context.Background(), "", conv)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, "mallory", user)
	require.Len(t, conv.seen, 3)
	assert.Equal(t, protocol.StyleError, conv.seen[2].Style)
}

func TestSuAuthenticator(t *testing.T) {
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pty support")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	// Stands in for su: asks for a password and accepts "secret"
	fakeSu := filepath.Join(t.TempDir(), "su")
	script := "#!/bin/sh\nprintf 'Password: '\nread pw\n[ \"$pw\" = secret ]\n"
	require.NoError(t, os.WriteFile(fakeSu, []byte(script), 0755))

	a := &SuAuthenticator{Command: fakeSu}
	withEUID(t, 1000)

	user, err := a.Authenticate(context.Background(), "bob", &scriptedConversation{answers: []string{"secret"}})
	require.NoError(t, err)
	assert.Equal(t, "bob", user)

	_, err = a.Authenticate(context.Background(), "bob", &scriptedConversation{answers: []string{"wrong"}})
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, err = a.Authenticate(context.Background(), "Not Valid", &scriptedConversation{})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func withEUID(t *testing.T, euid int) {
	t.Helper()
	saved := geteuid
	geteuid = func() int { return euid }
	t.Cleanup(func() { geteuid = saved })
}

func TestSuAuthenticatorRequiresPrompt(t *testing.T) {
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pty support")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	// su run by root switches user without asking
	fakeSu := filepath.Join(t.TempDir(), "su")
	require.NoError(t, os.WriteFile(fakeSu, []byte("#!/bin/sh\nexit 0\n"), 0755))
	withEUID(t, 1000)

	a := &SuAuthenticator{Command: fakeSu}
	conv := &scriptedConversation{answers: []string{"definitely-wrong"}}
	_, err := a.Authenticate(context.Background(), "bob", conv)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestSuAuthenticatorRefusesRoot(t *testing.T) {
	withEUID(t, 0)

	a := &SuAuthenticator{Command: "/nonexistent/su"}
	_, err := a.Authenticate(context.Background(), "bob", &scriptedConversation{answers: []string{"secret"}})
	assert.ErrorIs(t, err, ErrSuAsRoot)
	assert.ErrorIs(t, err, ErrAuthBackend)
}
