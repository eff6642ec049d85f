package netbank

import (
	"bytes"
	"encoding/json"
	"net/url"
	"netbank/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// looseString accepts a JSON string, number or bool as text, the portal is not
// consistent about quoting identifiers.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		err := json.Unmarshal(data, &str)
		if err != nil {
			return err
		}
		*s = looseString(str)
		return nil
	}
	*s = looseString(data)
	return nil
}

// jsonAmount accepts a JSON number, a numeric string or a display string like "$1,234.56 DR".
type jsonAmount struct {
	decimal.Decimal
}

func (a *jsonAmount) UnmarshalJSON(data []byte) error {
	var text looseString
	err := text.UnmarshalJSON(data)
	if err != nil {
		return err
	}
	value, err := decimal.NewFromString(string(text))
	if err != nil {
		value = ParseCurrency(string(text))
	}
	a.Decimal = value
	return nil
}

type accountAmountJson struct {
	Amount jsonAmount `json:"amount"`
}

type accountLinkJson struct {
	Url string `json:"url"`
}

type accountJson struct {
	Number         looseString          `json:"number"`
	DisplayName    string               `json:"displayName"`
	Link           *accountLinkJson     `json:"link"`
	Balance        []*accountAmountJson `json:"balance"`
	AvailableFunds []*accountAmountJson `json:"availableFunds"`
}

type accountsJson struct {
	Accounts []accountJson `json:"accounts"`
}

type accountsShape int

const (
	shapeJson accountsShape = iota
	shapeHtml
)

func (s accountsShape) String() string {
	if s == shapeJson {
		return "json"
	}
	return "html"
}

// accountsPayload is whichever shape the portal answered the account listing with.
type accountsPayload struct {
	shape accountsShape
	json  accountsJson
	html  page
}

// probeAccounts resolves the shape of the listing: the accounts endpoint's body if
// it is JSON, otherwise the rendered landing page.
func probeAccounts(apiBody []byte, landing page) accountsPayload {
	if apiBody != nil {
		var parsed accountsJson
		err := json.Unmarshal(apiBody, &parsed)
		if err == nil {
			return accountsPayload{shape: shapeJson, json: parsed}
		}
	}
	return accountsPayload{shape: shapeHtml, html: landing}
}

// accounts extracts every supported account, keyed by account number.
func (p accountsPayload) accounts(base *url.URL) map[string]Account {
	switch p.shape {
	case shapeJson:
		return accountsFromJson(p.json, base)
	default:
		return accountsFromHtml(p.html)
	}
}

func accountsFromJson(listing accountsJson, base *url.URL) map[string]Account {
	out := map[string]Account{}
	for _, entry := range listing.Accounts {
		// margin loans have no link and share portfolios have no available funds,
		// neither can be searched for transactions
		if entry.Link == nil || entry.Link.Url == "" || len(entry.AvailableFunds) == 0 || entry.AvailableFunds[0] == nil {
			continue
		}
		number := string(entry.Number)
		if number == "" {
			continue
		}

		detailUrl := entry.Link.Url
		parsed, err := url.Parse(detailUrl)
		if err == nil {
			detailUrl = base.ResolveReference(parsed).String()
		}

		balance := decimal.Zero
		if len(entry.Balance) > 0 && entry.Balance[0] != nil {
			balance = entry.Balance[0].Amount.Decimal
		}

		out[number] = Account{
			ID:          number,
			DisplayName: entry.DisplayName,
			DetailURL:   detailUrl,
			// not available from this endpoint, kept empty for consumers that expect the field
			RoutingCode: "",
			Balance:     balance,
			Available:   entry.AvailableFunds[0].Amount.Decimal,
		}
	}
	return out
}

const (
	accountRowSelector       = ".main_group_account_row"
	accountNicknameSelector  = ".NicknameField a"
	accountBsbSelector       = ".BSBField .text"
	accountNumberSelector    = ".AccountNumberField .text"
	accountBalanceSelector   = ".AccountBalanceField .Currency"
	accountAvailableSelector = ".AvailableFundsField .Currency, .FundsField .Currency"
)

func currencyCell(row *goquery.Selection, selector string) decimal.Decimal {
	cell := row.Find(selector).First()
	if cell.Length() == 0 {
		return decimal.Zero
	}
	return ParseCurrency(cell.Text())
}

func accountsFromHtml(landing page) map[string]Account {
	out := map[string]Account{}
	if landing.Doc == nil {
		return out
	}

	landing.Doc.Find(accountRowSelector).Each(func(_ int, row *goquery.Selection) {
		number := htmlutil.CleanText(row.Find(accountNumberSelector).First().Text())
		if number == "" {
			return
		}

		account := Account{
			ID:          number,
			RoutingCode: htmlutil.CleanText(row.Find(accountBsbSelector).First().Text()),
			Balance:     currencyCell(row, accountBalanceSelector),
			Available:   currencyCell(row, accountAvailableSelector),
		}

		nickname := row.Find(accountNicknameSelector).First()
		account.DisplayName = htmlutil.CleanText(nickname.Text())
		anchors := htmlutil.GetAnchors(landing.Url, nickname)
		if len(anchors) > 0 {
			account.DetailURL = anchors[0].Url.String()
		}

		out[number] = account
	})
	return out
}
