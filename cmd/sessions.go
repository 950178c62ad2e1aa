package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/bnema/lightgreet/internal/config"
	"github.com/bnema/lightgreet/internal/sessions"
	"github.com/spf13/cobra"
)

var (
	sessionsOutput string
	sessionsDirs   []string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List installed sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutput(sessionsOutput); err != nil {
			return err
		}

		dirs := sessionsDirs
		if len(dirs) == 0 {
			dirs = config.Get().Daemon.SessionDirs
		}
		list, err := sessions.Load(dirs...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if sessionsOutput == outputYAML {
			return printYAML(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No sessions installed")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tTYPE")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, s.Name, s.Type)
		}
		return w.Flush()
	},
}

func init() {
	sessionsCmd.Flags().StringVarP(&sessionsOutput, "output", "o", outputText, "output format (text or yaml)")
	sessionsCmd.Flags().StringSliceVar(&sessionsDirs, "dir", nil, "session directories to search")
	rootCmd.AddCommand(sessionsCmd)
}
