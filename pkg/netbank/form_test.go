package netbank

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testPage(t *testing.T, rawUrl, body string) page {
	t.Helper()
	u, err := url.Parse(rawUrl)
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return page{Url: u, Body: []byte(body), Doc: doc}
}

const formFixture = `<html><body>
<form id="search" method="get" action="results.aspx?page=1">
	<input type="text" name="q" value="coffee">
	<input type="submit" name="go" value="Search">
</form>
<form id="settings" method="post">
	<input type="hidden" name="token" value="abc">
	<input type="checkbox" name="alerts" checked>
	<input type="checkbox" name="marketing" value="yes">
	<input type="radio" name="period" value="week">
	<input type="radio" name="period" value="month" checked>
	<select name="currency">
		<option value="AUD">Australian dollar</option>
		<option value="NZD">New Zealand dollar</option>
	</select>
	<select name="tags" multiple>
		<option selected>Groceries</option>
		<option value="travel" selected>Travel</option>
		<option value="rent">Rent</option>
	</select>
	<textarea name="note">hello</textarea>
	<input type="file" name="attachment">
	<input name="untyped" value="plain">
	<input value="nameless">
	<fieldset disabled>
		<input type="text" name="locked" value="1">
	</fieldset>
	<input type="text" name="disabled" value="2" disabled>
	<button name="save" value="now">Save changes</button>
	<button name="cancel" value="x">Cancel</button>
	<input type="image" name="map" alt="Map">
</form>
<div id="outside"><input type="submit" value="Orphan"></div>
</body></html>`

func TestFormByButton(t *testing.T) {
	p := testPage(t, "https://bank.test/netbank/settings.aspx", formFixture)

	form, err := formByButton(p, "Save changes")
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, form.Method)
	require.Equal(t, "https://bank.test/netbank/settings.aspx", form.Action.String())

	expected := url.Values{
		"token":    {"abc"},
		"alerts":   {"on"},
		"period":   {"month"},
		"currency": {"AUD"},
		"tags":     {"Groceries", "travel"},
		"note":     {"hello"},
		"untyped":  {"plain"},
		"save":     {"now"},
	}
	if diff := cmp.Diff(expected, form.Values()); diff != "" {
		t.Fatalf("unexpected values (-expected +actual):\n%s", diff)
	}

	require.True(t, form.Disabled("locked"))
	require.True(t, form.Disabled("disabled"))
	form.Enable()
	require.Equal(t, "1", form.Values().Get("locked"))
	require.Equal(t, "2", form.Values().Get("disabled"))
}

func TestFormByButtonImage(t *testing.T) {
	p := testPage(t, "https://bank.test/netbank/settings.aspx", formFixture)

	form, err := formByButton(p, "Map")
	require.NoError(t, err)
	values := form.Values()
	require.Equal(t, "0", values.Get("map.x"))
	require.Equal(t, "0", values.Get("map.y"))
	require.False(t, values.Has("save"))
}

func TestFormByButtonGet(t *testing.T) {
	p := testPage(t, "https://bank.test/netbank/home.aspx", formFixture)

	form, err := formByButton(p, "Search")
	require.NoError(t, err)
	require.Equal(t, http.MethodGet, form.Method)
	require.Equal(t, "https://bank.test/netbank/results.aspx?page=1", form.Action.String())
	require.Equal(t, url.Values{"q": {"coffee"}, "go": {"Search"}}, form.Values())
}

func TestFormByButtonNotFound(t *testing.T) {
	p := testPage(t, "https://bank.test/", formFixture)

	_, err := formByButton(p, "Log off")
	require.ErrorIs(t, err, ErrFormNotFound)

	// a matching button outside of any form does not count
	_, err = formByButton(p, "Orphan")
	require.ErrorIs(t, err, ErrFormNotFound)
}

func TestFormBySelector(t *testing.T) {
	p := testPage(t, "https://bank.test/", formFixture)

	form, err := formBySelector(p, "#search")
	require.NoError(t, err)
	require.Equal(t, url.Values{"q": {"coffee"}}, form.Values())

	form, err = formBySelector(p, "textarea")
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, form.Method)
	value, ok := form.Get("token")
	require.True(t, ok)
	require.Equal(t, "abc", value)

	_, err = formBySelector(p, "#outside")
	require.ErrorIs(t, err, ErrFormNotFound)
	_, err = formBySelector(p, "#aspnetForm")
	require.ErrorIs(t, err, ErrFormNotFound)
}

func TestFormSet(t *testing.T) {
	p := testPage(t, "https://bank.test/", formFixture)
	form, err := formBySelector(p, "#settings")
	require.NoError(t, err)

	form.Set("disabled", "3")
	require.False(t, form.Disabled("disabled"))
	require.Equal(t, "3", form.Values().Get("disabled"))

	form.Set("tags", "bills")
	require.Equal(t, []string{"bills"}, form.Values()["tags"])

	form.InjectHiddenField("__EVENTTARGET", "lbSearch")
	value, ok := form.Get("__EVENTTARGET")
	require.True(t, ok)
	require.Equal(t, "lbSearch", value)

	_, ok = form.Get("missing")
	require.False(t, ok)
}

func TestPopulateSearch(t *testing.T) {
	p := testPage(t, "https://bank.test/", fakeHistoryPage)
	form, err := formBySelector(p, searchFormSelector)
	require.NoError(t, err)

	populateSearch(&form, "01/03/2024", "15/03/2024")
	values := form.Values()

	expected := map[string]string{
		"__EVENTTARGET": "ctl00$BodyPlaceHolder$lbSearch",
		"ctl00$ctl00":   "ctl00$BodyPlaceHolder$updatePanelSearch|ctl00$BodyPlaceHolder$lbSearch",
		"ctl00$BodyPlaceHolder$searchTypeField":                "1",
		"ctl00$BodyPlaceHolder$radioSwitchDateRange$field$":    "ChooseDates",
		"ctl00$BodyPlaceHolder$dateRangeField":                 "ChooseDates",
		"ctl00$BodyPlaceHolder$fromCalTxtBox$field":            "01/03/2024",
		"ctl00$BodyPlaceHolder$toCalTxtBox$field":              "15/03/2024",
		"ctl00$BodyPlaceHolder$radioSwitchSearchType$field$":   "AllTransactions",
		"__VIEWSTATE":                                          "vs-history",
		"__EVENTARGUMENT":                                      "",
	}
	for name, value := range expected {
		require.Equal(t, []string{value}, values[name], name)
	}
	require.Len(t, values, len(expected))
}
