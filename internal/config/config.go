// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Greeter client configuration
	Greeter GreeterConfig `mapstructure:"greeter"`

	// Reference daemon configuration
	Daemon DaemonConfig `mapstructure:"daemon"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Accounts the static authenticator accepts
	Users []UserConfig `mapstructure:"users"`
}

// GreeterConfig contains greeter-side settings
type GreeterConfig struct {
	SocketPath    string `mapstructure:"socket_path"` // Empty means the per-user default
	Resettable    bool   `mapstructure:"resettable"`
	MinAPIVersion uint32 `mapstructure:"min_api_version"`
	DefaultUser   string `mapstructure:"default_user"`
	UseAccounts   bool   `mapstructure:"use_accounts"` // List users from AccountsService
}

// DaemonConfig contains settings for the reference daemon
type DaemonConfig struct {
	SocketPath       string   `mapstructure:"socket_path"`
	Version          string   `mapstructure:"version"`
	Authenticator    string   `mapstructure:"authenticator"` // "static" or "su"
	DefaultSession   string   `mapstructure:"default_session"`
	Sessions         []string `mapstructure:"sessions"` // Empty accepts any session
	SessionDirs      []string `mapstructure:"session_dirs"`
	GuestEnabled     bool     `mapstructure:"guest_enabled"`
	GuestUser        string   `mapstructure:"guest_user"`
	AutologinUser    string   `mapstructure:"autologin_user"`
	AutologinGuest   bool     `mapstructure:"autologin_guest"`
	AutologinTimeout int      `mapstructure:"autologin_timeout"` // Seconds
	AutologinSession string   `mapstructure:"autologin_session"`
	ShowManualLogin  bool     `mapstructure:"show_manual_login"`
	ShowRemoteLogin  bool     `mapstructure:"show_remote_login"`
	HideUsers        bool     `mapstructure:"hide_users"`
	LockScreen       bool     `mapstructure:"lock_screen"`
	SelectUser       string   `mapstructure:"select_user"`
	SharedDirRoot    string   `mapstructure:"shared_dir_root"`
	GreeterGroup     string   `mapstructure:"greeter_group"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

// UserConfig is one account known to the static authenticator
type UserConfig struct {
	Name         string `mapstructure:"name"`
	RealName     string `mapstructure:"real_name"`
	PasswordHash string `mapstructure:"password_hash"` // crypt(3) or bcrypt
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Greeter: GreeterConfig{
			SocketPath:    "",
			Resettable:    false,
			MinAPIVersion: 0,
			UseAccounts:   false,
		},
		Daemon: DaemonConfig{
			SocketPath:     "",
			Version:        "1.32.0",
			Authenticator:  "static",
			DefaultSession: "default",
			Sessions:       []string{},
			SessionDirs:    []string{"/usr/share/xsessions", "/usr/share/wayland-sessions"},
			GuestUser:      "guest",
			SharedDirRoot:  "/var/lib/lightdm-data",
			GreeterGroup:   "lightdm",
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
		Users: []UserConfig{},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("lightgreet")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/lightgreet")
		if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "lightgreet"))
		}
		viper.AddConfigPath(".")
	}

	// Individual keys so partial files merge with defaults
	viper.SetDefault("greeter.socket_path", DefaultConfig.Greeter.SocketPath)
	viper.SetDefault("greeter.resettable", DefaultConfig.Greeter.Resettable)
	viper.SetDefault("greeter.min_api_version", DefaultConfig.Greeter.MinAPIVersion)
	viper.SetDefault("greeter.default_user", DefaultConfig.Greeter.DefaultUser)
	viper.SetDefault("greeter.use_accounts", DefaultConfig.Greeter.UseAccounts)

	viper.SetDefault("daemon.socket_path", DefaultConfig.Daemon.SocketPath)
	viper.SetDefault("daemon.version", DefaultConfig.Daemon.Version)
	viper.SetDefault("daemon.authenticator", DefaultConfig.Daemon.Authenticator)
	viper.SetDefault("daemon.default_session", DefaultConfig.Daemon.DefaultSession)
	viper.SetDefault("daemon.sessions", DefaultConfig.Daemon.Sessions)
	viper.SetDefault("daemon.session_dirs", DefaultConfig.Daemon.SessionDirs)
	viper.SetDefault("daemon.guest_enabled", DefaultConfig.Daemon.GuestEnabled)
	viper.SetDefault("daemon.guest_user", DefaultConfig.Daemon.GuestUser)
	viper.SetDefault("daemon.autologin_user", DefaultConfig.Daemon.AutologinUser)
	viper.SetDefault("daemon.autologin_guest", DefaultConfig.Daemon.AutologinGuest)
	viper.SetDefault("daemon.autologin_timeout", DefaultConfig.Daemon.AutologinTimeout)
	viper.SetDefault("daemon.autologin_session", DefaultConfig.Daemon.AutologinSession)
	viper.SetDefault("daemon.show_manual_login", DefaultConfig.Daemon.ShowManualLogin)
	viper.SetDefault("daemon.show_remote_login", DefaultConfig.Daemon.ShowRemoteLogin)
	viper.SetDefault("daemon.hide_users", DefaultConfig.Daemon.HideUsers)
	viper.SetDefault("daemon.lock_screen", DefaultConfig.Daemon.LockScreen)
	viper.SetDefault("daemon.select_user", DefaultConfig.Daemon.SelectUser)
	viper.SetDefault("daemon.shared_dir_root", DefaultConfig.Daemon.SharedDirRoot)
	viper.SetDefault("daemon.greeter_group", DefaultConfig.Daemon.GreeterGroup)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	viper.SetDefault("users", DefaultConfig.Users)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	// The daemon side runs as root
	if os.Getuid() == 0 {
		return "/etc/lightgreet/lightgreet.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/lightgreet/lightgreet.toml"
	}

	return filepath.Join(home, ".config", "lightgreet", "lightgreet.toml")
}

// AddUser adds or replaces an account and saves the file
func AddUser(user UserConfig) error {
	cfg := Get()

	for i, u := range cfg.Users {
		if u.Name == user.Name {
			cfg.Users[i] = user
			viper.Set("users", usersToSettings(cfg.Users))
			return Save()
		}
	}

	cfg.Users = append(cfg.Users, user)
	viper.Set("users", usersToSettings(cfg.Users))
	return Save()
}

// RemoveUser removes an account and saves the file
func RemoveUser(name string) error {
	cfg := Get()

	for i, u := range cfg.Users {
		if u.Name == name {
			cfg.Users = append(cfg.Users[:i], cfg.Users[i+1:]...)
			viper.Set("users", usersToSettings(cfg.Users))
			return Save()
		}
	}

	return fmt.Errorf("user %s not found", name)
}

// GetUser returns an account by name
func GetUser(name string) (*UserConfig, error) {
	cfg := Get()

	for _, u := range cfg.Users {
		if u.Name == name {
			return &u, nil
		}
	}

	return nil, fmt.Errorf("user %s not found", name)
}

// ListUsers returns all configured accounts
func ListUsers() []UserConfig {
	return Get().Users
}

// PasswordHashes maps user names to password hashes for the static authenticator
func PasswordHashes() map[string]string {
	hashes := map[string]string{}
	for _, u := range Get().Users {
		hashes[u.Name] = u.PasswordHash
	}
	return hashes
}

// usersToSettings keys each account by its file names so Save writes
// password_hash rather than the Go field name
func usersToSettings(users []UserConfig) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]interface{}{
			"name":          u.Name,
			"real_name":     u.RealName,
			"password_hash": u.PasswordHash,
		})
	}
	return out
}
