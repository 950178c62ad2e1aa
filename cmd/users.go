package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/bnema/lightgreet/internal/accounts"
	"github.com/spf13/cobra"
)

var usersOutput string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the accounts AccountsService offers for login",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutput(usersOutput); err != nil {
			return err
		}

		client, err := accounts.Connect()
		if err != nil {
			return err
		}
		defer client.Close()

		users, err := client.ListUsers(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if usersOutput == outputYAML {
			return printYAML(out, users)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tREAL NAME\tSESSION\tLOCKED")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", u.Name, u.RealName, u.Session, u.Locked)
		}
		return w.Flush()
	},
}

func init() {
	usersCmd.Flags().StringVarP(&usersOutput, "output", "o", outputText, "output format (text or yaml)")
	rootCmd.AddCommand(usersCmd)
}
