package netbank

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// the portal rotates this cookie on detail requests, and every request made
// with the rotated value is refused with a security error
const securityCookie = "_CBAPVCOOKIE"

const detailRowSelector = "table > * > tr"

// detailRows selects the rows of every table in the document. Partial postback
// responses carry the markup escaped as text, in which case the text is parsed again.
func detailRows(doc *goquery.Document) *goquery.Selection {
	rows := doc.Find(detailRowSelector)
	if rows.Length() > 0 {
		return rows
	}

	text := doc.Text()
	if !strings.Contains(text, "<table") {
		return rows
	}
	nested, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return rows
	}
	return nested.Find(detailRowSelector)
}

// detailValues reads each row as a label/value pair from its first and last cell,
// later labels overwrite earlier ones.
func detailValues(rows *goquery.Selection) map[string]string {
	values := map[string]string{}
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Children()
		if cells.Length() == 0 {
			return
		}
		label := strings.TrimSpace(cells.First().Text())
		value := strings.TrimSpace(cells.Last().Text())
		// structural rows wrap whole blocks of markup rather than a label
		if strings.Contains(label, "\n") {
			return
		}
		values[label] = value
	})
	return values
}
