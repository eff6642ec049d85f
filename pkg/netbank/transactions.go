package netbank

import (
	"encoding/json"
	"fmt"
	"netbank/pkg/htmlutil"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"
)

const searchFormSelector = "#aspnetForm"

// postback fields the portal's search button would set through javascript
const (
	fieldEventTarget     = "__EVENTTARGET"
	fieldScriptManager   = "ctl00$ctl00"
	fieldSearchType      = "ctl00$BodyPlaceHolder$searchTypeField"
	fieldDateRangeSwitch = "ctl00$BodyPlaceHolder$radioSwitchDateRange$field$"
	fieldDateRange       = "ctl00$BodyPlaceHolder$dateRangeField"
	fieldFromDate        = "ctl00$BodyPlaceHolder$fromCalTxtBox$field"
	fieldToDate          = "ctl00$BodyPlaceHolder$toCalTxtBox$field"
	fieldTypeSwitch      = "ctl00$BodyPlaceHolder$radioSwitchSearchType$field$"

	searchTrigger      = "ctl00$BodyPlaceHolder$lbSearch"
	searchUpdatePanel  = "ctl00$BodyPlaceHolder$updatePanelSearch|ctl00$BodyPlaceHolder$lbSearch"
	searchTypeDates    = "1"
	chooseDates        = "ChooseDates"
	allTransactions    = "AllTransactions"
	transactionsKey    = "Transactions"
	transactionsSortAt = 1
)

// populateSearch emulates the client-side search event on the account's postback form.
func populateSearch(form *Form, from, to string) {
	form.InjectHiddenField(fieldEventTarget, searchTrigger)
	form.InjectHiddenField(fieldScriptManager, searchUpdatePanel)
	form.InjectHiddenField(fieldSearchType, searchTypeDates)
	form.InjectHiddenField(fieldDateRangeSwitch, chooseDates)
	form.InjectHiddenField(fieldDateRange, chooseDates)
	form.InjectHiddenField(fieldFromDate, from)
	form.InjectHiddenField(fieldToDate, to)
	form.InjectHiddenField(fieldTypeSwitch, allTransactions)
}

var transactionsLiteralRegex = regexp.MustCompile(`(\{"Transactions":.+\})\);`)

type transactionTextJson struct {
	Text looseString `json:"Text"`
	Url  string      `json:"Url"`
}

type transactionDateJson struct {
	Sort []looseString `json:"Sort"`
	Text looseString   `json:"Text"`
}

type transactionJson struct {
	Date          transactionDateJson `json:"Date"`
	Description   transactionTextJson `json:"Description"`
	Amount        transactionTextJson `json:"Amount"`
	Balance       transactionTextJson `json:"Balance"`
	TranCode      transactionTextJson `json:"TranCode"`
	ReceiptNumber transactionTextJson `json:"ReceiptNumber"`
}

type transactionsJson struct {
	Transactions []transactionJson `json:"Transactions"`
}

// decodeTransactionsLiteral parses a script literal, strict JSON first and then as
// json5 in case the script emitted a plain javascript object.
func decodeTransactionsLiteral(literal string) (transactionsJson, error) {
	var out transactionsJson
	err := json.Unmarshal([]byte(literal), &out)
	if err == nil {
		return out, nil
	}

	// numbers stay literal text, a sort token does not fit in a float64
	dec := json5.NewDecoder(strings.NewReader(literal))
	dec.UseNumber()
	var loose any
	err5 := dec.Decode(&loose)
	if err5 != nil {
		return transactionsJson{}, fmt.Errorf("decode transactions literal: %w", err)
	}
	normalized, err := json.Marshal(loose)
	if err != nil {
		return transactionsJson{}, err
	}
	err = json.Unmarshal(normalized, &out)
	if err != nil {
		return transactionsJson{}, fmt.Errorf("decode transactions literal: %w", err)
	}
	return out, nil
}

// extractTransactions scans every script block for the literal carrying the
// Transactions key. The portal emits several similar blocks, the first candidate
// that decodes wins. found is false when no block carried the literal.
func extractTransactions(doc *goquery.Document) (result transactionsJson, found bool) {
	for _, script := range doc.Find("script").Nodes {
		text := htmlutil.GetText(script)
		for _, match := range transactionsLiteralRegex.FindAllStringSubmatch(text, -1) {
			if !strings.Contains(match[1], transactionsKey) {
				continue
			}
			decoded, err := decodeTransactionsLiteral(match[1])
			if err != nil {
				continue
			}
			return decoded, true
		}
	}
	return transactionsJson{}, false
}

func (c *Client) mapTransaction(entry transactionJson, loc *time.Location) Transaction {
	token := ""
	if len(entry.Date.Sort) > transactionsSortAt {
		token = string(entry.Date.Sort[transactionsSortAt])
	}

	occurredAt, err := ParseTimestamp(token, string(entry.Date.Text), loc)
	if err != nil {
		c.tel.ReportWarning(
			report_client_transactions,
			fmt.Errorf("parse timestamp: %w", err),
			token,
		)
	}

	return Transaction{
		TimestampRaw:  token,
		OccurredAt:    occurredAt,
		Description:   string(entry.Description.Text),
		Amount:        ParseCurrency(string(entry.Amount.Text)),
		Balance:       ParseCurrency(string(entry.Balance.Text)),
		TranCode:      string(entry.TranCode.Text),
		ReceiptNumber: string(entry.ReceiptNumber.Text),
		DetailURL:     entry.Description.Url,
	}
}
