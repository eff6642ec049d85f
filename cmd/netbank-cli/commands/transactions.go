package commands

import (
	"fmt"
	"log/slog"
	"netbank/internal/components/chrono"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// the portal's search form takes dates in this layout
const searchDateLayout = "02/01/2006"

var (
	fromDate    *string
	toDate      *string
	showDetails *bool
)

func init() {
	fromDate = transactionsCmd.Flags().String("from", "", "The first day to search, as dd/mm/yyyy. Defaults to 30 days ago.")
	toDate = transactionsCmd.Flags().String("to", "", "The last day to search, as dd/mm/yyyy. Defaults to today.")
	showDetails = transactionsCmd.Flags().Bool("details", false, "Also fetch the detail table of every transaction.")
	rootCmd.AddCommand(transactionsCmd)
}

// searchRange fills in and validates the date range of a search.
func searchRange(from, to string, now time.Time) (string, string, error) {
	if to == "" {
		to = now.Format(searchDateLayout)
	}
	if from == "" {
		from = now.AddDate(0, 0, -30).Format(searchDateLayout)
	}

	fromTime, err := time.Parse(searchDateLayout, from)
	if err != nil {
		return "", "", fmt.Errorf("invalid --from %q: %w", from, err)
	}
	toTime, err := time.Parse(searchDateLayout, to)
	if err != nil {
		return "", "", fmt.Errorf("invalid --to %q: %w", to, err)
	}
	if toTime.Before(fromTime) {
		return "", "", fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return from, to, nil
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions <account> [--from dd/mm/yyyy] [--to dd/mm/yyyy] [--details]",
	Short: "Searches the transaction history of an account, given by number or name.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		from, to, err := searchRange(*fromDate, *toDate, chrono.StandardTime{}.Now())
		if err != nil {
			fatal("invalid date range", err)
		}

		s := login(cmd.Context())
		defer s.Close()

		account, err := findAccount(s.accounts, args[0])
		if err != nil {
			s.fatal("unknown account", err)
		}
		slog.Info("searching transactions", "account", account.ID, "from", from, "to", to)

		transactions, err := s.client.Transactions(cmd.Context(), account, from, to)
		if err != nil {
			s.fatal("failed to search transactions", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Date", "Description", "Amount", "Balance", "Code", "Receipt"})
		alignAmounts(t, 3, 4)
		for _, tx := range transactions {
			t.AppendRow(table.Row{
				tx.Date(),
				tx.Description,
				tx.Amount.StringFixed(2),
				tx.Balance.StringFixed(2),
				tx.TranCode,
				tx.ReceiptNumber,
			})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d transactions", len(transactions))})
		t.Render()

		if !*showDetails {
			return
		}
		for _, tx := range transactions {
			if tx.DetailURL == "" {
				continue
			}
			details, err := s.client.TransactionDetails(cmd.Context(), tx.DetailURL)
			if err != nil {
				slog.Warn("failed to fetch transaction details", "url", tx.DetailURL, "err", err)
				continue
			}
			fmt.Printf("\n%s %s\n", tx.Date(), tx.Description)
			renderDetails(details)
		}
	},
}
