package netbank

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	fakeClientNumber = "12345678"
	fakePassword     = "hunter2"
	fakeSession      = "NetBankSession"
)

var fakeNow = time.Date(2024, time.March, 16, 9, 30, 0, 0, time.UTC)

type fixedTime struct{}

func (fixedTime) Now() time.Time {
	return fakeNow
}

const fakeLoginPage = `<!DOCTYPE html>
<html>
<head><title>NetBank - Log on</title></head>
<body>
<h2>Log on to NetBank</h2>
<form method="post" action="/netbank/Logon/Logon.aspx" id="form1">
	<input type="hidden" name="__VIEWSTATE" value="vs-login">
	<input type="hidden" name="RID" value="rid-42" disabled="disabled">
	<input type="hidden" name="JS" value="" disabled="disabled">
	<input type="text" name="txtMyClientNumber$field" value="" disabled="disabled">
	<input type="password" name="txtMyPassword$field" value="" disabled="disabled">
	<input type="checkbox" name="chkRemember$field" value="on">
	<input type="submit" name="btnLogon$field" value="Log on" disabled="disabled">
	<input type="submit" name="btnRegister$field" value="Register">
</form>
</body>
</html>`

const fakeContinuePage = `<!DOCTYPE html>
<html>
<body>
<p>We have updated our terms and conditions.</p>
<form method="post" action="/netbank/Logon/Continue.aspx">
	<input type="hidden" name="token" value="c1">
	<button>Click to continue</button>
</form>
</body>
</html>`

const fakeLandingRows = `
<table>
	<tr class="main_group_account_row">
		<td class="NicknameField"><div class="left"><a href="/netbank/TransactionHistory/History.aspx?ACCOUNT=smart">Smart   Access</a></div></td>
		<td class="BSBField"><span class="text">06 2000</span></td>
		<td class="AccountNumberField"><span class="text">1234 5678</span></td>
		<td class="AccountBalanceField"><span class="Currency">$1,947.90 CR</span></td>
		<td class="AvailableFundsField"><span class="Currency">$1,900.00 CR</span></td>
	</tr>
	<tr class="main_group_account_row">
		<td class="NicknameField"><a href="/netbank/TransactionHistory/History.aspx?ACCOUNT=card">MasterCard Platinum</a></td>
		<td class="BSBField"><span class="text"></span></td>
		<td class="AccountNumberField"><span class="text">5218 0000 1111 2222</span></td>
		<td class="AccountBalanceField"><span class="Currency">$512.35 DR</span></td>
	</tr>
</table>`

const fakeAccountsJson = `{"accounts":[
	{"number":"06200012345678","displayName":"Smart Access","link":{"url":"/netbank/TransactionHistory/History.aspx?ACCOUNT=smart"},"balance":[{"amount":1947.90,"currency":"AUD"}],"availableFunds":[{"amount":"1900.00","currency":"AUD"}]},
	{"number":"99990000","displayName":"Margin Loan","balance":[{"amount":-25000}],"availableFunds":[{"amount":0}]},
	{"number":"88880000","displayName":"Share Portfolio","link":{"url":"/netbank/Portfolio/Shares.aspx"},"balance":[{"amount":10000}],"availableFunds":[]},
	{"number":"06200087654321","displayName":"Everyday Offset","link":{"url":"/netbank/Portfolio/Other/NoSearch.aspx"},"balance":[{"amount":"12.00"}],"availableFunds":[{"amount":"12.00"}]}
]}`

const fakeHistoryPage = `<!DOCTYPE html>
<html>
<body>
<form method="post" action="./History.aspx?ACCOUNT=smart" id="aspnetForm">
	<input type="hidden" name="__VIEWSTATE" value="vs-history">
	<input type="hidden" name="__EVENTTARGET" value="">
	<input type="hidden" name="__EVENTARGUMENT" value="">
	<input type="text" name="ctl00$BodyPlaceHolder$fromCalTxtBox$field" value="">
</form>
</body>
</html>`

const fakeTransactionsLiteral = `{"Transactions":[` +
	`{"Date":{"Sort":["20240315","20240315023045123456"],"Text":"15 Mar 2024"},"Description":{"Text":"WOOLWORTHS 1234 SYDNEY","Url":"/netbank/TransactionHistory/Detail.aspx?RID=aaa"},"Amount":{"Text":"$52.10 DR"},"Balance":{"Text":"$1,947.90 CR"},"TranCode":{"Text":"00 05"},"ReceiptNumber":{"Text":"N031512345"}},` +
	`{"Date":{"Sort":["20240314",0],"Text":"14 Mar 2024"},"Description":{"Text":"SALARY ACME PTY LTD","Url":"/netbank/TransactionHistory/Detail.aspx?RID=bbb"},"Amount":{"Text":"$2,000.00"},"Balance":{"Text":"$2,000.00 CR"},"TranCode":{"Text":50},"ReceiptNumber":{"Text":""}}` +
	`]}`

func searchResultPage(literal string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body>
<script type="text/javascript">
//<![CDATA[
Sys.Application.add_init(function() {
    $create(CBA.Summary, {"Summary":{"Count":2}});
    $create(CBA.Recent, {"RecentTransactions":[{"Broken":true}]});
});
//]]>
</script>
<script type="text/javascript">
//<![CDATA[
Sys.Application.add_init(function() {
    $create(CBA.Grid, %s);
});
//]]>
</script>
</body>
</html>`, literal)
}

const fakeDetailPage = `<!DOCTYPE html>
<html>
<body>
<table class="details">
<tbody>
<tr><th>Description</th><td>WOOLWORTHS</td></tr>
<tr><td>Amount</td><td class="spacer"></td><td>$52.10 DR</td></tr>
<tr><td>
<table><tbody><tr>
<td>Nested</td>
<td>Value</td>
</tr></tbody></table>
</td><td>ignored</td></tr>
<tr><td>Description</td><td> WOOLWORTHS 1234 SYDNEY </td></tr>
</tbody>
</table>
</body>
</html>`

// fakePortal imitates the parts of the portal the client talks to.
type fakePortal struct {
	t      *testing.T
	server *httptest.Server

	mutex sync.Mutex
	// generation is the only session token the portal currently accepts
	generation     int
	logins         int
	continues      int
	rejectLogins   bool
	interstitial   bool
	accountsApi    bool
	accountsJson   string
	landingRows    string
	searchLiteral  string
	searchForms    []url.Values
	securitySeen   []string
	detailRequests int
}

func newFakePortal(t *testing.T) *fakePortal {
	f := &fakePortal{
		t:             t,
		accountsApi:   true,
		accountsJson:  fakeAccountsJson,
		landingRows:   fakeLandingRows,
		searchLiteral: fakeTransactionsLiteral,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/netbank/Logon/Logon.aspx", f.logon)
	mux.HandleFunc("/netbank/Logon/Continue.aspx", f.continueLogon)
	mux.HandleFunc("/netbank/Portfolio/Home/Home.aspx", f.home)
	mux.HandleFunc("/api/home/v1/accounts", f.accounts)
	mux.HandleFunc("/netbank/TransactionHistory/History.aspx", f.history)
	mux.HandleFunc("/netbank/Portfolio/Other/NoSearch.aspx", f.noSearch)
	mux.HandleFunc("/netbank/TransactionHistory/Detail.aspx", f.detail)
	mux.HandleFunc("/netbank/Broken.aspx", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server error", http.StatusInternalServerError)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePortal) client() *Client {
	c, err := NewClient(ClientOptions{
		BaseUrl:    f.server.URL + "/",
		ApiBaseUrl: f.server.URL + "/api/",
		RateLimit:  rate.Inf,
		Time:       fixedTime{},
	})
	require.NoError(f.t, err)
	return c
}

func (f *fakePortal) loggedIn(t *testing.T) (*Client, map[string]Account) {
	c := f.client()
	accounts, err := c.Login(context.Background(), fakeClientNumber, fakePassword)
	require.NoError(t, err)
	return c, accounts
}

// expire invalidates every session token handed out so far.
func (f *fakePortal) expire() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.generation++
}

func (f *fakePortal) set(fn func(f *fakePortal)) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	fn(f)
}

func (f *fakePortal) authenticated(r *http.Request) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	cookie, err := r.Cookie(fakeSession)
	if err != nil || f.generation == 0 {
		return false
	}
	return cookie.Value == strconv.Itoa(f.generation)
}

// secure refuses requests that carry a rotated security cookie, like the portal does.
func (f *fakePortal) secure(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie(securityCookie)
	if err == nil && cookie.Value != "original" {
		http.Error(w, "security error", http.StatusForbidden)
		return false
	}
	return true
}

func writeHtml(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(body))
}

func (f *fakePortal) logon(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if f.authenticated(r) {
			http.Redirect(w, r, "/netbank/Portfolio/Home/Home.aspx", http.StatusFound)
			return
		}
		writeHtml(w, fakeLoginPage)
		return
	}

	err := r.ParseForm()
	require.NoError(f.t, err)

	expected := map[string]string{
		"__VIEWSTATE":             "vs-login",
		"RID":                     "rid-42",
		"JS":                      "E",
		"txtMyClientNumber$field": fakeClientNumber,
		"txtMyPassword$field":     fakePassword,
		"btnLogon$field":          "Log on",
	}
	valid := true
	for name, value := range expected {
		if r.PostForm.Get(name) != value {
			valid = false
		}
	}
	if r.PostForm.Has("chkRemember$field") || r.PostForm.Has("btnRegister$field") {
		valid = false
	}

	f.mutex.Lock()
	if f.rejectLogins {
		valid = false
	}
	if !valid {
		f.mutex.Unlock()
		writeHtml(w, fakeLoginPage)
		return
	}
	f.logins++
	f.generation++
	generation := f.generation
	interstitial := f.interstitial
	f.mutex.Unlock()

	http.SetCookie(w, &http.Cookie{Name: fakeSession, Value: strconv.Itoa(generation), Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: securityCookie, Value: "original", Path: "/"})
	if interstitial {
		writeHtml(w, fakeContinuePage)
		return
	}
	http.Redirect(w, r, "/netbank/Portfolio/Home/Home.aspx", http.StatusFound)
}

func (f *fakePortal) continueLogon(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	if r.Method != http.MethodPost || r.PostForm.Get("token") != "c1" || !f.authenticated(r) {
		writeHtml(w, fakeContinuePage)
		return
	}
	f.set(func(f *fakePortal) { f.continues++ })
	http.Redirect(w, r, "/netbank/Portfolio/Home/Home.aspx", http.StatusFound)
}

func (f *fakePortal) home(w http.ResponseWriter, r *http.Request) {
	if !f.authenticated(r) {
		writeHtml(w, fakeLoginPage)
		return
	}
	f.mutex.Lock()
	rows := f.landingRows
	f.mutex.Unlock()
	writeHtml(w, "<!DOCTYPE html><html><body><h1>Welcome</h1>"+rows+"</body></html>")
}

func (f *fakePortal) accounts(w http.ResponseWriter, r *http.Request) {
	if !f.authenticated(r) {
		writeHtml(w, fakeLoginPage)
		return
	}
	require.Equal(f.t, strconv.FormatInt(fakeNow.Unix(), 10), r.URL.Query().Get("t"))

	f.mutex.Lock()
	enabled := f.accountsApi
	body := f.accountsJson
	f.mutex.Unlock()

	if !enabled {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (f *fakePortal) history(w http.ResponseWriter, r *http.Request) {
	if !f.secure(w, r) {
		return
	}
	if !f.authenticated(r) {
		writeHtml(w, fakeLoginPage)
		return
	}
	if r.Method == http.MethodGet {
		writeHtml(w, fakeHistoryPage)
		return
	}

	require.NoError(f.t, r.ParseForm())
	f.mutex.Lock()
	f.searchForms = append(f.searchForms, r.PostForm)
	literal := f.searchLiteral
	f.mutex.Unlock()

	if r.PostForm.Get("__VIEWSTATE") != "vs-history" {
		writeHtml(w, fakeHistoryPage)
		return
	}
	writeHtml(w, searchResultPage(literal))
}

func (f *fakePortal) noSearch(w http.ResponseWriter, r *http.Request) {
	if !f.authenticated(r) {
		writeHtml(w, fakeLoginPage)
		return
	}
	writeHtml(w, "<!DOCTYPE html><html><body><p>This account has no transaction history.</p></body></html>")
}

func (f *fakePortal) detail(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(securityCookie)
	f.mutex.Lock()
	f.detailRequests++
	if err == nil {
		f.securitySeen = append(f.securitySeen, cookie.Value)
	}
	f.mutex.Unlock()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !f.secure(w, r) {
		return
	}

	http.SetCookie(w, &http.Cookie{Name: securityCookie, Value: "rotated", Path: "/"})
	writeHtml(w, fakeDetailPage)
}
