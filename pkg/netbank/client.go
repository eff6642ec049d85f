// Package netbank drives a session against the NetBank web portal, which has no
// public api: it logs in through the html form, lists accounts, searches transaction
// history and reads transaction details.
package netbank

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"netbank/internal/components/assert"
	"netbank/internal/components/chrono"
	"netbank/internal/components/telemetry"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("netbank")

const (
	report_client_login               = "client.login"
	report_client_accounts            = "client.accounts"
	report_client_transactions        = "client.transactions"
	report_client_transaction_details = "client.transaction-details"
)

const (
	DefaultBaseUrl    = "https://www.my.commbank.com.au/"
	DefaultApiBaseUrl = "https://www.commbank.com.au/retail/netbank/api/"

	loginPath    = "netbank/Logon/Logon.aspx"
	accountsPath = "home/v1/accounts"

	defaultTimeout   = time.Minute
	defaultRateLimit = rate.Limit(2)
)

type ClientOptions struct {
	// BaseUrl is the portal's origin, defaults to DefaultBaseUrl.
	BaseUrl string
	// ApiBaseUrl is the root of the JSON api, defaults to DefaultApiBaseUrl.
	ApiBaseUrl string
	// Timeout bounds every request, defaults to a minute.
	Timeout time.Duration
	// RateLimit is the maximum requests per second, defaults to 2.
	RateLimit rate.Limit
	// BrowserTransport makes the TLS handshake and headers look like a desktop browser.
	BrowserTransport bool
	// Telemetry defaults to telemetry.SlogAPI.
	Telemetry telemetry.API
	// MessageOutput, if set, receives a dump of every request and response.
	MessageOutput telemetry.MessageOutput
	// Time is used to timestamp api requests, defaults to chrono.StandardTime.
	Time chrono.TimeAPI
}

// Client is a single session with the portal. It is not safe for concurrent use,
// use one Client per set of credentials.
type Client struct {
	session  *session
	apiBase  *url.URL
	tel      telemetry.API
	time     chrono.TimeAPI
	username string
	password string
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.ApiBaseUrl == "" {
		opts.ApiBaseUrl = DefaultApiBaseUrl
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	if opts.Time == nil {
		opts.Time = chrono.StandardTime{}
	}

	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	apiBase, err := url.Parse(opts.ApiBaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	assert.True(base.IsAbs() && apiBase.IsAbs(), "portal urls must be absolute")

	tel := telemetry.NewScopedAPI("netbank", opts.Telemetry)

	s, err := newSession(sessionOptions{
		base:             base,
		hosts:            []string{base.Hostname(), apiBase.Hostname()},
		timeout:          opts.Timeout,
		rateLimit:        opts.RateLimit,
		browserTransport: opts.BrowserTransport,
		output:           opts.MessageOutput,
	}, tel)
	if err != nil {
		return nil, err
	}

	return &Client{
		session: s,
		apiBase: apiBase,
		tel:     tel,
		time:    opts.Time,
	}, nil
}

// SetTimezone changes the process-wide zone transaction timestamps are normalized into.
func SetTimezone(name string) error {
	return chrono.SetDefault(name)
}

// Login authenticates with the portal and lists the accounts the session can see.
// The credentials are kept so later calls can log in again when the portal expires
// the session.
func (c *Client) Login(ctx context.Context, username, password string) (map[string]Account, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if username == "" || password == "" {
		return nil, &AuthenticationError{Reason: "missing credentials"}
	}
	c.username = username
	c.password = password

	loginUrl, err := c.session.resolve(loginPath)
	if err != nil {
		return nil, err
	}

	c.tel.ReportDebug("login state", stateAnonymous.String(), loginUrl.String())
	p, err := c.session.request(ctx, http.MethodGet, loginUrl.String())
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch logon page")
		c.tel.ReportBroken(report_client_login, fmt.Errorf("fetch logon page: %w", err))
		return nil, err
	}

	landing, err := c.authenticate(ctx, p)
	if err != nil {
		span.SetStatus(codes.Error, "failed to authenticate")
		c.tel.ReportWarning(report_client_login, err)
		return nil, err
	}

	accounts, err := c.discoverAccounts(ctx, landing)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list accounts")
		return nil, err
	}
	span.SetAttributes(attribute.Int("accounts", len(accounts)))
	return accounts, nil
}

// discoverAccounts asks the JSON api first and falls back to the rows rendered on
// the landing page when the api does not answer with JSON.
func (c *Client) discoverAccounts(ctx context.Context, landing page) (map[string]Account, error) {
	endpoint := c.apiBase.ResolveReference(&url.URL{Path: accountsPath})
	query := url.Values{}
	query.Set("t", strconv.FormatInt(c.time.Now().Unix(), 10))
	endpoint.RawQuery = query.Encode()

	var apiBody []byte
	res, err := c.session.request(ctx, http.MethodGet, endpoint.String())
	var transportErr *TransportError
	switch {
	case err == nil:
		apiBody = res.Body
	case errors.As(err, &transportErr) && transportErr.Status != 0:
		c.tel.ReportDebug("accounts api unavailable", transportErr.Status)
	default:
		c.tel.ReportBroken(report_client_accounts, fmt.Errorf("fetch: %w", err))
		return nil, err
	}

	payload := probeAccounts(apiBody, landing)
	c.tel.ReportDebug("accounts shape", payload.shape.String())

	accounts := payload.accounts(c.session.base)
	c.tel.ReportCount(report_client_accounts, int64(len(accounts)))
	if len(accounts) == 0 {
		c.tel.ReportWarning(report_client_accounts, "no accounts", payload.shape.String())
		return nil, &AuthenticationError{Reason: "unable to retrieve account list"}
	}
	return accounts, nil
}

// Transactions searches the account's history between `from` and `to`, given in
// the portal's own date format (dd/mm/yyyy). Transactions are returned in the
// order the portal lists them. Accounts without a search form and searches with
// no results both give an empty list.
func (c *Client) Transactions(ctx context.Context, account Account, from, to string) ([]Transaction, error) {
	ctx, span := tracer.Start(ctx, "client:Transactions")
	defer span.End()
	span.SetAttributes(attribute.String("account", account.ID))

	if account.DetailURL == "" {
		return []Transaction{}, nil
	}
	link, err := c.session.resolve(account.DetailURL)
	if err != nil {
		return nil, err
	}

	p, err := c.navigate(ctx, link.String())
	if err != nil {
		span.SetStatus(codes.Error, "failed to open account page")
		c.tel.ReportBroken(report_client_transactions, fmt.Errorf("open account page: %w", err), account.ID)
		return nil, err
	}

	form, err := formBySelector(p, searchFormSelector)
	if err != nil {
		c.tel.ReportDebug("account has no search form", account.ID)
		return []Transaction{}, nil
	}
	populateSearch(&form, from, to)

	result, err := c.session.submit(ctx, form)
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit search")
		c.tel.ReportBroken(report_client_transactions, fmt.Errorf("submit search: %w", err), account.ID)
		return nil, err
	}

	literal, found := extractTransactions(result.Doc)
	if !found {
		c.tel.ReportDebug("no transactions literal in search result", account.ID)
		return []Transaction{}, nil
	}

	loc := chrono.Location()
	transactions := make([]Transaction, 0, len(literal.Transactions))
	for _, entry := range literal.Transactions {
		transactions = append(transactions, c.mapTransaction(entry, loc))
	}
	span.SetAttributes(attribute.Int("transactions", len(transactions)))
	return transactions, nil
}

// TransactionDetails reads the detail table behind a Transaction.DetailURL.
func (c *Client) TransactionDetails(ctx context.Context, relativeUrl string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "client:TransactionDetails")
	defer span.End()

	link, err := c.session.resolve(relativeUrl)
	if err != nil {
		return nil, err
	}

	var p page
	err = c.session.preserveCookie(securityCookie, func() error {
		var err error
		p, err = c.session.request(ctx, http.MethodPost, link.String())
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch details")
		c.tel.ReportBroken(report_client_transaction_details, fmt.Errorf("fetch: %w", err), relativeUrl)
		return nil, err
	}

	return detailValues(detailRows(p.Doc)), nil
}
