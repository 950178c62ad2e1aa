package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/lightgreet/internal/config"
	"github.com/bnema/lightgreet/internal/daemon"
	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/bnema/lightgreet/internal/logger"
	"github.com/bnema/lightgreet/internal/sessions"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the reference greeter daemon",
	Long: `Run a small daemon that speaks the server side of the greeter protocol
on a unix socket. Sessions are recorded instead of started, which makes it
useful for testing greeters without a display manager.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.Get().Daemon

	d, err := buildDaemon(cfg)
	if err != nil {
		return err
	}

	path, err := resolveSocket(cfg.SocketPath)
	if err != nil {
		return err
	}
	srv, err := ipc.NewSocketServer(path, d)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Daemon %s waiting for greeters on %s", cfg.Version, srv.SocketPath())
	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

// buildDaemon turns the [daemon] table into a daemon
func buildDaemon(cfg config.DaemonConfig) (*daemon.Daemon, error) {
	auth, err := buildAuthenticator(cfg.Authenticator)
	if err != nil {
		return nil, err
	}

	known := cfg.Sessions
	if len(known) == 0 && len(cfg.SessionDirs) > 0 {
		installed, err := sessions.Load(cfg.SessionDirs...)
		if err != nil {
			logger.Warn("Failed to read installed sessions, accepting any", "err", err)
		}
		known = sessions.Keys(installed)
	}

	dc := daemon.Config{
		Version:          cfg.Version,
		DefaultSession:   cfg.DefaultSession,
		Sessions:         known,
		GuestEnabled:     cfg.GuestEnabled,
		GuestUser:        cfg.GuestUser,
		AutologinUser:    cfg.AutologinUser,
		AutologinGuest:   cfg.AutologinGuest,
		AutologinTimeout: cfg.AutologinTimeout,
		AutologinSession: cfg.AutologinSession,
		ShowManualLogin:  cfg.ShowManualLogin,
		ShowRemoteLogin:  cfg.ShowRemoteLogin,
		HideUsers:        cfg.HideUsers,
		LockScreen:       cfg.LockScreen,
		SelectUser:       cfg.SelectUser,
	}
	if dc.DefaultSession != "" && len(dc.Sessions) > 0 && !containsString(dc.Sessions, dc.DefaultSession) {
		dc.Sessions = append(dc.Sessions, dc.DefaultSession)
	}

	opts := []daemon.Option{daemon.WithAuthenticator(auth)}
	if cfg.SharedDirRoot != "" {
		opts = append(opts, daemon.WithSharedDirs(daemon.NewSharedDirProvisioner(cfg.SharedDirRoot, cfg.GreeterGroup)))
	}

	logger.Debug("Daemon configured", "authenticator", cfg.Authenticator, "sessions", len(dc.Sessions))
	return daemon.New(dc, opts...), nil
}

func buildAuthenticator(name string) (daemon.Authenticator, error) {
	switch name {
	case "", "static":
		return daemon.NewStaticAuthenticator(config.PasswordHashes()), nil
	case "su":
		return &daemon.SuAuthenticator{}, nil
	case "pam":
		if !daemon.PAMSupported {
			return nil, fmt.Errorf("authenticator %q: rebuild with -tags pam", name)
		}
		return daemon.NewPAMAuthenticator("lightdm")
	default:
		return nil, fmt.Errorf("unknown authenticator %q (want static, su or pam)", name)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
