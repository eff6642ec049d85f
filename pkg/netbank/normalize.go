package netbank

import (
	"fmt"
	"netbank/internal/components/chrono"
	"netbank/pkg/htmlutil"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const debitMarker = "DR"

// ParseCurrency converts a display amount like "$1,234.56 DR" into a signed decimal.
// Everything except digits and '.' is discarded, a debit marker anywhere in the text
// negates the result. Input that does not leave a number behind yields zero.
func ParseCurrency(text string) decimal.Decimal {
	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)

	value, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero
	}
	if strings.Contains(text, debitMarker) {
		return value.Neg()
	}
	return value
}

const (
	// sort tokens above this are dense YYYYMMDDhhmmss + microsecond keys
	sortTokenThreshold = 200000
	sortTokenLength    = 20
	sortTokenLayout    = "20060102150405"
)

var displayLayouts = []string{
	"2 Jan 2006",
	"2 Jan 2006 15:04:05",
	"2 Jan 2006 3:04 PM",
	"Mon 2 Jan 2006",
	"2 January 2006",
	"02/01/2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
}

// highPrecisionToken reports whether the leading digits of `token` exceed the threshold.
func highPrecisionToken(token string) bool {
	end := 0
	for end < len(token) && token[end] >= '0' && token[end] <= '9' {
		end++
	}
	digits := strings.TrimLeft(token[:end], "0")
	if len(digits) == 0 {
		return false
	}
	if len(digits) > 6 {
		return true
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return false
	}
	return n > sortTokenThreshold
}

func parseSortToken(token string) (time.Time, error) {
	if len(token) < sortTokenLength {
		return time.Time{}, fmt.Errorf("sort token %q is shorter than %d characters", token, sortTokenLength)
	}
	token = token[:sortTokenLength]

	t, err := time.ParseInLocation(sortTokenLayout, token[:len(sortTokenLayout)], time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	micros, err := strconv.Atoi(token[len(sortTokenLayout):])
	if err != nil {
		return time.Time{}, fmt.Errorf("sort token microseconds: %w", err)
	}
	return t.Add(time.Duration(micros) * time.Microsecond), nil
}

func parseDisplayDate(text string, loc *time.Location) (time.Time, error) {
	text = htmlutil.CleanText(text)
	for _, layout := range displayLayouts {
		t, err := time.ParseInLocation(layout, text, loc)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

// ParseTimestamp resolves when a transaction occurred. High precision sort tokens are
// read as UTC, anything else falls back to the display text interpreted in `loc`.
// The result is always in `loc`, a nil `loc` means the process-wide default.
func ParseTimestamp(sortToken, displayText string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = chrono.Location()
	}

	if highPrecisionToken(sortToken) {
		t, err := parseSortToken(sortToken)
		if err == nil {
			return t.In(loc), nil
		}
		// a malformed token still leaves the display text to go on
	}

	t, err := parseDisplayDate(displayText, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}
