package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/lightgreet/greeter"
	"github.com/spf13/cobra"
)

var sharedDirCmd = &cobra.Command{
	Use:   "shared-dir <user>",
	Short: "Ask the daemon for a directory shared between the greeter and user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGreeter(greeter.NewLoop(), greeter.Handlers{})
		if err != nil {
			return err
		}
		defer g.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := g.ConnectToDaemonSync(ctx); err != nil {
			return err
		}

		dir, err := g.EnsureSharedDataDirSync(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sharedDirCmd)
}
