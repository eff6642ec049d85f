package commands

import (
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(detailsCmd)
}

func renderDetails(details map[string]string) {
	labels := make([]string, 0, len(details))
	for label := range details {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	t := newTable()
	t.AppendHeader(table.Row{"Label", "Value"})
	for _, label := range labels {
		t.AppendRow(table.Row{label, details[label]})
	}
	t.Render()
}

var detailsCmd = &cobra.Command{
	Use:   "details <url>",
	Short: "Shows the detail table behind a transaction's detail url.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := login(cmd.Context())
		defer s.Close()

		details, err := s.client.TransactionDetails(cmd.Context(), args[0])
		if err != nil {
			s.fatal("failed to fetch transaction details", err)
		}
		renderDetails(details)
	},
}
