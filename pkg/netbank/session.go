package netbank

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"netbank/internal/components/telemetry"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_session_request = "session.request"
	report_session_parse   = "session.parse"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// page is a response from the portal, both as raw bytes for marker probes and as a
// parsed document for queries.
type page struct {
	// Url is where the request ended up after redirects.
	Url  *url.URL
	Body []byte
	Doc  *goquery.Document
}

type sessionOptions struct {
	base             *url.URL
	hosts            []string
	timeout          time.Duration
	rateLimit        rate.Limit
	browserTransport bool
	output           telemetry.MessageOutput
}

// session is a cookie-carrying http client for the portal. It holds shared mutable
// state and must not be used from more than one goroutine at a time.
type session struct {
	http    *resty.Client
	cookies *cookieStore
	base    *url.URL
	tel     telemetry.API
}

func newSession(opts sessionOptions, tel telemetry.API) (*session, error) {
	cookies, err := newCookieStore()
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetCookieJar(cookies)
	if opts.browserTransport {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(opts.hosts...),
	)
	httpClient.SetTimeout(opts.timeout)

	rateLimiter := rate.NewLimiter(opts.rateLimit, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel, tracer, opts.output)

	return &session{
		http:    httpClient,
		cookies: cookies,
		base:    opts.base,
		tel:     tel,
	}, nil
}

// resolve turns a link found on the portal into an absolute url on the portal's origin.
func (s *session) resolve(ref string) (*url.URL, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse link %q: %w", ref, err)
	}
	return s.base.ResolveReference(parsed), nil
}

func (s *session) newPage(res *resty.Response) (page, error) {
	finalUrl, err := url.Parse(res.Request.URL)
	if err != nil {
		return page{}, err
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL
	}

	body := res.Body()
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		s.tel.ReportBroken(report_session_parse, fmt.Errorf("parse html: %w", err), finalUrl.String())
		return page{}, err
	}
	return page{Url: finalUrl, Body: body, Doc: doc}, nil
}

func (s *session) do(req *resty.Request, method, link string) (page, error) {
	res, err := req.Execute(method, link)
	if err != nil {
		s.tel.ReportBroken(report_session_request, fmt.Errorf("fetch: %w", err), method, link)
		return page{}, &TransportError{Method: method, Url: link, Err: err}
	}
	if res.IsError() {
		s.tel.ReportWarning(report_session_request, res.Status(), method, link)
		return page{}, &TransportError{
			Method: method,
			Url:    link,
			Status: res.StatusCode(),
			Err:    fmt.Errorf("unexpected status %s", res.Status()),
		}
	}
	return s.newPage(res)
}

// request performs a bodyless request. It does not check whether the portal
// considers the session authenticated.
func (s *session) request(ctx context.Context, method, link string) (page, error) {
	return s.do(s.http.R().SetContext(ctx), method, link)
}

// submit sends the form's enabled fields the way a browser would.
func (s *session) submit(ctx context.Context, form Form) (page, error) {
	req := s.http.R().SetContext(ctx)
	values := form.Values()

	if form.Method != http.MethodPost {
		action := *form.Action
		query := action.Query()
		for name, vals := range values {
			query[name] = vals
		}
		action.RawQuery = query.Encode()
		return s.do(req, http.MethodGet, action.String())
	}

	req.SetFormDataFromValues(values)
	return s.do(req, http.MethodPost, form.Action.String())
}

// preserveCookie runs `fn` and then puts the cookie `name` back to the value it had
// before, whatever the responses received inside `fn` set it to.
func (s *session) preserveCookie(name string, fn func() error) error {
	snap := s.cookies.snapshot(name)
	defer s.cookies.restore(snap)
	return fn()
}
