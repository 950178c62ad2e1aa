package cmd

import (
	"fmt"

	"github.com/bnema/lightgreet/internal/config"
	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/bnema/lightgreet/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	socketPath string

	rootCmd = &cobra.Command{
		Use:   "lightgreet",
		Short: "lightgreet - LightDM greeter client",
		Long: `lightgreet speaks the LightDM greeter protocol. It can log a user in
from the terminal, query the daemon, and run a small reference daemon for
testing greeters without a display manager.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				config.SetConfigPath(configPath)
			}
			if err := config.Init(); err != nil {
				return err
			}
			if level := config.Get().Logging.LogLevel; level != "" {
				logger.SetLevel(level)
			}
			return nil
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default /etc/lightgreet/lightgreet.toml or ~/.config/lightgreet/lightgreet.toml)")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "", "daemon socket path")
}

// resolveSocket picks the flag, then the configured path, then the per-user default
func resolveSocket(configured string) (string, error) {
	if socketPath != "" {
		return socketPath, nil
	}
	if configured != "" {
		return configured, nil
	}
	path, err := ipc.GetSocketPath()
	if err != nil {
		return "", fmt.Errorf("failed to resolve socket path: %w", err)
	}
	return path, nil
}
