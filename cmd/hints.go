package cmd

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/bnema/lightgreet/greeter"
	"github.com/bnema/lightgreet/internal/ui"
	"github.com/spf13/cobra"
)

var hintsOutput string

var hintsCmd = &cobra.Command{
	Use:   "hints",
	Short: "Show the hints the daemon sends on connect",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutput(hintsOutput); err != nil {
			return err
		}

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

		hints := g.Hints()
		out := cmd.OutOrStdout()
		if hintsOutput == outputYAML {
			return printYAML(out, hints)
		}

		names := make([]string, 0, len(hints))
		for name := range hints {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(out, ui.FormatStatus(true, fmt.Sprintf("daemon %s (API %d)", g.DaemonVersion(), g.APIVersion())))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%s\n", name, hints[name])
		}
		return w.Flush()
	},
}

func init() {
	hintsCmd.Flags().StringVarP(&hintsOutput, "output", "o", outputText, "output format (text or yaml)")
	rootCmd.AddCommand(hintsCmd)
}
