package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfigFile points the package at path for the duration of the test
func useConfigFile(t *testing.T, path string) {
	t.Helper()
	viper.Reset()
	SetConfigPath(path)
	t.Cleanup(func() {
		SetConfigPath("")
		Set(nil)
		viper.Reset()
	})
}

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		useConfigFile(t, filepath.Join(t.TempDir(), "lightgreet.toml"))

		require.NoError(t, Init())

		config := Get()
		require.NotNil(t, config)
		assert.Equal(t, "1.32.0", config.Daemon.Version)
		assert.Equal(t, "static", config.Daemon.Authenticator)
		assert.Equal(t, "/var/lib/lightdm-data", config.Daemon.SharedDirRoot)
		assert.Empty(t, config.Users)
	})

	t.Run("merges file values with defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lightgreet.toml")
		content := `[daemon]
default_session = "xfce"
guest_enabled = true
autologin_timeout = 10

[greeter]
min_api_version = 1

[[users]]
name = "bob"
real_name = "Bob"
password_hash = "$6$salt$hash"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		useConfigFile(t, path)

		require.NoError(t, Init())

		config := Get()
		assert.Equal(t, "xfce", config.Daemon.DefaultSession)
		assert.True(t, config.Daemon.GuestEnabled)
		assert.Equal(t, 10, config.Daemon.AutologinTimeout)
		assert.Equal(t, uint32(1), config.Greeter.MinAPIVersion)
		assert.Equal(t, "lightdm", config.Daemon.GreeterGroup)
		require.Len(t, config.Users, 1)
		assert.Equal(t, UserConfig{Name: "bob", RealName: "Bob", PasswordHash: "$6$salt$hash"}, config.Users[0])
	})

	t.Run("handles invalid TOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lightgreet.toml")
		require.NoError(t, os.WriteFile(path, []byte("[daemon\nversion = 1"), 0644))
		useConfigFile(t, path)

		assert.Error(t, Init())
	})
}

func TestGetWithoutInit(t *testing.T) {
	Set(nil)
	assert.Equal(t, &DefaultConfig, Get())
}

func TestGetConfigPath(t *testing.T) {
	t.Run("override wins", func(t *testing.T) {
		useConfigFile(t, "/tmp/custom.toml")
		assert.Equal(t, "/tmp/custom.toml", GetConfigPath())
	})

	t.Run("default location", func(t *testing.T) {
		useConfigFile(t, "")
		t.Setenv("HOME", "/home/testuser")

		want := "/home/testuser/.config/lightgreet/lightgreet.toml"
		if os.Getuid() == 0 {
			want = "/etc/lightgreet/lightgreet.toml"
		}
		assert.Equal(t, want, GetConfigPath())
	})
}

func TestUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lightgreet.toml")
	useConfigFile(t, path)
	require.NoError(t, Init())

	require.NoError(t, AddUser(UserConfig{Name: "bob", PasswordHash: "$2a$10$old"}))
	require.NoError(t, AddUser(UserConfig{Name: "alice", RealName: "Alice", PasswordHash: "$6$a$b"}))
	require.NoError(t, AddUser(UserConfig{Name: "bob", PasswordHash: "$2a$10$new"}))

	users := ListUsers()
	require.Len(t, users, 2)

	bob, err := GetUser("bob")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$new", bob.PasswordHash)
	assert.Equal(t, map[string]string{"bob": "$2a$10$new", "alice": "$6$a$b"}, PasswordHashes())

	// The saved file reads back the same accounts
	viper.Reset()
	require.NoError(t, Init())
	alice, err := GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, UserConfig{Name: "alice", RealName: "Alice", PasswordHash: "$6$a$b"}, *alice)

	require.NoError(t, RemoveUser("bob"))
	_, err = GetUser("bob")
	assert.Error(t, err)
	assert.Error(t, RemoveUser("nobody"))
}
