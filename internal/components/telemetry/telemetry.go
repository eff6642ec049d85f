package telemetry

import (
	"fmt"
)

// API is where the client sends everything worth logging or counting. Tests swap
// it for a recorder to check which reports a flow produced.
type API interface {
	// ReportBroken reports a failed portal operation. `id` names the operation,
	// not the step that failed inside it: a dropped connection during a search is
	// still `client.transactions`, the error carries the detail.
	//
	// ids are lowercase and dotted by component, with dashes inside a name,
	// e.g. `session.request`, `login.continue`, `client.transaction-details`.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something odd the client recovered from, like an
	// unparseable timestamp or an error status from the portal. Same ids as
	// ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports request level detail, only shown with verbose logging.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a point-in-time count, like the number of accounts
	// found at login. Values are samples, not increments.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id and message with a namespace, e.g. "netbank: client.login".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
