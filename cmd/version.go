package cmd

import (
	"github.com/bnema/lightgreet/greeter"
	"github.com/bnema/lightgreet/internal/logger"
	"github.com/bnema/lightgreet/internal/protocol"
	"github.com/spf13/cobra"
)

var (
	// Version info set by main package
	Version = "0.1.0-dev"
	Commit  string
	Date    string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		logger.Infof("lightgreet %s", Version)
		logger.Infof("commit: %s", Commit)
		logger.Infof("built: %s", Date)
		logger.Infof("greeter library: %s (API %d)", greeter.DefaultVersion, protocol.APIVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
