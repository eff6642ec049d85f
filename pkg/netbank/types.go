package netbank

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a single account as listed by the portal. Amounts are in AUD.
type Account struct {
	// ID is the account number, it keys the map returned by Client.Login.
	ID          string
	DisplayName string
	DetailURL   string
	// RoutingCode is the BSB, the JSON accounts endpoint does not expose it
	// so it is empty for accounts discovered that way.
	RoutingCode string
	Balance     decimal.Decimal
	Available   decimal.Decimal
}

// TimestampLayout is how Transaction.Date renders OccurredAt.
const TimestampLayout = "2006-01-02 15:04:05.000000"

type Transaction struct {
	// TimestampRaw is the portal's sortable key for the transaction, kept verbatim.
	TimestampRaw  string
	OccurredAt    time.Time
	Description   string
	Amount        decimal.Decimal
	Balance       decimal.Decimal
	TranCode      string
	ReceiptNumber string
	// DetailURL is relative to the portal's base url, pass it to Client.TransactionDetails.
	DetailURL string
}

func (t Transaction) Date() string {
	return t.OccurredAt.Format(TimestampLayout)
}
