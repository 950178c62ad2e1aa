package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bnema/lightgreet/internal/config"
	"github.com/bnema/lightgreet/internal/daemon"
	"github.com/bnema/lightgreet/internal/logger"
	"github.com/bnema/lightgreet/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage lightgreet configuration",
	Long:  `Manage lightgreet configuration including daemon accounts and settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, ui.FormatHeader("Current Configuration"))
		fmt.Fprintln(out, ui.FormatKeyValue("Config file", config.GetConfigPath()))

		fmt.Fprintln(out, "\n[Greeter]")
		fmt.Fprintln(out, ui.FormatKeyValue("  Socket", orDefault(cfg.Greeter.SocketPath)))
		fmt.Fprintln(out, ui.FormatKeyValue("  Resettable", fmt.Sprint(cfg.Greeter.Resettable)))
		fmt.Fprintln(out, ui.FormatKeyValue("  Minimum API", fmt.Sprint(cfg.Greeter.MinAPIVersion)))
		fmt.Fprintln(out, ui.FormatKeyValue("  Default user", orDefault(cfg.Greeter.DefaultUser)))
		fmt.Fprintln(out, ui.FormatKeyValue("  Use AccountsService", fmt.Sprint(cfg.Greeter.UseAccounts)))

		fmt.Fprintln(out, "\n[Daemon]")
		fmt.Fprintln(out, ui.FormatKeyValue("  Socket", orDefault(cfg.Daemon.SocketPath)))
		fmt.Fprintln(out, ui.FormatKeyValue("  Version", cfg.Daemon.Version))
		fmt.Fprintln(out, ui.FormatKeyValue("  Authenticator", cfg.Daemon.Authenticator))
		fmt.Fprintln(out, ui.FormatKeyValue("  Default session", cfg.Daemon.DefaultSession))
		if len(cfg.Daemon.Sessions) > 0 {
			fmt.Fprintln(out, ui.FormatKeyValue("  Sessions", strings.Join(cfg.Daemon.Sessions, ", ")))
		} else {
			fmt.Fprintln(out, ui.FormatKeyValue("  Session dirs", strings.Join(cfg.Daemon.SessionDirs, ", ")))
		}
		fmt.Fprintln(out, ui.FormatKeyValue("  Guest", fmt.Sprintf("%v (%s)", cfg.Daemon.GuestEnabled, cfg.Daemon.GuestUser)))
		if cfg.Daemon.AutologinUser != "" || cfg.Daemon.AutologinGuest {
			who := cfg.Daemon.AutologinUser
			if cfg.Daemon.AutologinGuest {
				who = "guest"
			}
			fmt.Fprintln(out, ui.FormatKeyValue("  Autologin", fmt.Sprintf("%s after %ds", who, cfg.Daemon.AutologinTimeout)))
		}
		fmt.Fprintln(out, ui.FormatKeyValue("  Shared dirs", cfg.Daemon.SharedDirRoot))

		if len(cfg.Users) > 0 {
			fmt.Fprintln(out, "\n[Users]")
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			if _, err := fmt.Fprintln(w, "  Name\tReal name\tPassword"); err != nil {
				logger.Errorf("Failed to write header: %v", err)
			}
			for _, u := range cfg.Users {
				if _, err := fmt.Fprintf(w, "  %s\t%s\t%s\n", u.Name, u.RealName, hashScheme(u.PasswordHash)); err != nil {
					logger.Errorf("Failed to write user info: %v", err)
				}
			}
			if err := w.Flush(); err != nil {
				logger.Errorf("Failed to flush writer: %v", err)
			}
		}

		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save current configuration to file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Configuration saved to: %s", config.GetConfigPath())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			logger.Infof("Configuration file already exists at: %s", configPath)

			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		logger.Info("You can now:")
		logger.Info("  - Edit the configuration file directly")
		logger.Info("  - Use 'lightgreet config user add' to add daemon accounts")
		logger.Info("  - Use 'lightgreet config show' to view current settings")
		return nil
	},
}

var configUserCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts of the static authenticator",
}

var configUserAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !daemon.ValidUsername(name) {
			return fmt.Errorf("invalid user name %q", name)
		}

		realName, _ := cmd.Flags().GetString("real-name")
		scheme, _ := cmd.Flags().GetString("scheme")
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")

		var password string
		if fromStdin {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		} else {
			var err error
			if password, err = ui.NewFormPrompter().Input(fmt.Sprintf("Password for %s", name), true); err != nil {
				return err
			}
		}
		if password == "" {
			return fmt.Errorf("empty password")
		}

		hash, err := daemon.HashPassword(scheme, password)
		if err != nil {
			return err
		}

		if err := config.AddUser(config.UserConfig{Name: name, RealName: realName, PasswordHash: hash}); err != nil {
			return err
		}

		logger.Infof("Added user '%s' (%s)", name, scheme)
		return nil
	},
}

var configUserRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if err := config.RemoveUser(name); err != nil {
			return err
		}

		logger.Infof("Removed user '%s'", name)
		return nil
	},
}

var configUserListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		users := config.ListUsers()
		out := cmd.OutOrStdout()

		if len(users) == 0 {
			fmt.Fprintln(out, "No users configured")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "Name\tReal name\tPassword"); err != nil {
			logger.Errorf("Failed to write header: %v", err)
		}
		if _, err := fmt.Fprintln(w, "----\t---------\t--------"); err != nil {
			logger.Errorf("Failed to write separator: %v", err)
		}
		for _, u := range users {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", u.Name, u.RealName, hashScheme(u.PasswordHash)); err != nil {
				logger.Errorf("Failed to write user: %v", err)
			}
		}

		return w.Flush()
	},
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

// hashScheme names the hash format without revealing the hash
func hashScheme(hash string) string {
	switch {
	case hash == "", strings.HasPrefix(hash, "!"), strings.HasPrefix(hash, "*"):
		return "locked"
	case strings.HasPrefix(hash, "$2"):
		return "bcrypt"
	case strings.HasPrefix(hash, "$6$"):
		return "sha512"
	case strings.HasPrefix(hash, "$5$"):
		return "sha256"
	case strings.HasPrefix(hash, "$1$"):
		return "md5"
	default:
		return "unknown"
	}
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSaveCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configUserCmd)

	configUserCmd.AddCommand(configUserAddCmd)
	configUserCmd.AddCommand(configUserRemoveCmd)
	configUserCmd.AddCommand(configUserListCmd)

	configUserAddCmd.Flags().String("real-name", "", "Display name of the account")
	configUserAddCmd.Flags().String("scheme", "sha512", "Password hash scheme (sha512 or bcrypt)")
	configUserAddCmd.Flags().Bool("password-stdin", false, "Read the password from stdin")
	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
}
