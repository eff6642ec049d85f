package netbank

import (
	"fmt"
)

// TransportError is returned when a request to the portal could not complete,
// either because no response arrived or because the response carried an error status.
type TransportError struct {
	Method string
	Url    string
	// Status is 0 when no response was received.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("netbank: %s %s: status %d", e.Method, e.Url, e.Status)
	}
	return fmt.Sprintf("netbank: %s %s: %v", e.Method, e.Url, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned when the login sequence finishes without
// leaving the session in a usable state. It is never retried.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("netbank: authentication failed: %s", e.Reason)
}
