package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login [--account <id> | --all]",
	Short: "Checks that the configured credentials can log in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := selectedAccounts()
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Account", "Username", "State", "Error"})
		var failed error
		for _, account := range accounts {
			c, err := client(account)
			if err != nil {
				return err
			}
			err = c.Login(cmd.Context())
			message := ""
			if err != nil {
				message = err.Error()
				failed = err
			}
			t.AppendRow(table.Row{account.ID, c.Username(), c.State().String(), message})
		}
		t.Render()
		return failed
	},
}
