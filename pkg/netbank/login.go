package netbank

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

const (
	report_login_credentials = "login.credentials"
	report_login_continue    = "login.continue"
)

var (
	loginMarker    = []byte("<h2>Log on to NetBank</h2>")
	continueMarker = []byte("<button>Click to continue</button>")
)

const (
	logonButton    = "Log on"
	continueButton = "Click to continue"

	fieldClientNumber = "txtMyClientNumber$field"
	fieldPassword     = "txtMyPassword$field"
	// tells the portal the browser runs javascript
	fieldCapability = "JS"
	capabilityValue = "E"
)

type loginState int

const (
	stateAnonymous loginState = iota
	stateCredentials
	stateContinue
	stateAuthenticated
)

func (s loginState) String() string {
	switch s {
	case stateAnonymous:
		return "anonymous"
	case stateCredentials:
		return "credentials"
	case stateContinue:
		return "continue"
	case stateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("loginState(%d)", int(s))
}

// probeLogin classifies a response body by the step of the login handshake it
// asks for. The portal answers expired sessions with the logon page and a 200,
// so this is the only way to tell.
func probeLogin(body []byte) loginState {
	switch {
	case bytes.Contains(body, loginMarker):
		return stateCredentials
	case bytes.Contains(body, continueMarker):
		return stateContinue
	}
	return stateAuthenticated
}

// authenticate drives the handshake from `p` until the portal stops asking for
// anything. Credentials are submitted at most once per call.
func (c *Client) authenticate(ctx context.Context, p page) (page, error) {
	submittedCredentials := false
	submittedContinue := false

	for {
		state := probeLogin(p.Body)
		c.tel.ReportDebug("login state", state.String(), p.Url.String())

		var err error
		switch state {
		case stateAuthenticated:
			return p, nil
		case stateCredentials:
			if submittedCredentials {
				return page{}, &AuthenticationError{Reason: "portal returned to the logon page after credentials were submitted"}
			}
			submittedCredentials = true
			p, err = c.submitCredentials(ctx, p)
		case stateContinue:
			if submittedContinue {
				return page{}, &AuthenticationError{Reason: "portal repeated the continue interstitial"}
			}
			submittedContinue = true
			p, err = c.submitContinue(ctx, p)
		}
		if err != nil {
			return page{}, err
		}
	}
}

func (c *Client) submitCredentials(ctx context.Context, p page) (page, error) {
	if c.username == "" {
		return page{}, &AuthenticationError{Reason: "not logged in"}
	}

	form, err := formByButton(p, logonButton)
	if err != nil {
		c.tel.ReportBroken(report_login_credentials, fmt.Errorf("locate logon form: %w", err), p.Url.String())
		return page{}, fmt.Errorf("locate logon form: %w", err)
	}

	// disabled fields are dropped from a submission but the portal expects them
	form.Enable()
	form.Set(fieldClientNumber, c.username)
	form.Set(fieldPassword, c.password)
	form.Set(fieldCapability, capabilityValue)
	if form.Method != http.MethodPost {
		c.tel.ReportWarning(report_login_credentials, "logon form is not a POST form", form.Method)
	}

	next, err := c.session.submit(ctx, form)
	if err != nil {
		return page{}, fmt.Errorf("submit credentials: %w", err)
	}
	return next, nil
}

func (c *Client) submitContinue(ctx context.Context, p page) (page, error) {
	form, err := formByButton(p, continueButton)
	if err != nil {
		c.tel.ReportBroken(report_login_continue, fmt.Errorf("locate continue form: %w", err), p.Url.String())
		return page{}, fmt.Errorf("locate continue form: %w", err)
	}
	next, err := c.session.submit(ctx, form)
	if err != nil {
		return page{}, fmt.Errorf("submit continue: %w", err)
	}
	return next, nil
}

// navigate fetches an authenticated page, logging in again once if the portal
// sends the session back to the logon page, then retrying the fetch once.
func (c *Client) navigate(ctx context.Context, link string) (page, error) {
	p, err := c.session.request(ctx, http.MethodGet, link)
	if err != nil {
		return page{}, err
	}
	if probeLogin(p.Body) == stateAuthenticated {
		return p, nil
	}

	c.tel.ReportDebug("session expired, logging in again", link)
	_, err = c.authenticate(ctx, p)
	if err != nil {
		return page{}, err
	}

	p, err = c.session.request(ctx, http.MethodGet, link)
	if err != nil {
		return page{}, err
	}
	if state := probeLogin(p.Body); state != stateAuthenticated {
		return page{}, &AuthenticationError{
			Reason: fmt.Sprintf("still at login step %q after logging in again", state),
		}
	}
	return p, nil
}
