package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(accountsCmd)
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Lists the accounts visible to the configured user.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := login(cmd.Context())
		defer s.Close()

		t := newTable()
		t.AppendHeader(table.Row{"Account", "Name", "BSB", "Balance", "Available"})
		alignAmounts(t, 4, 5)
		for _, id := range sortedIds(s.accounts) {
			account := s.accounts[id]
			t.AppendRow(table.Row{
				account.ID,
				account.DisplayName,
				account.RoutingCode,
				account.Balance.StringFixed(2),
				account.Available.StringFixed(2),
			})
		}
		t.Render()
	},
}
