// Package connector defines the capability-interface contract every SaaS
// data source implements, per the spec's design note replacing the Python
// prototype's connector class hierarchy with a narrow Go interface plus a
// manifest-parameterized generic adapter for declarative sources.
package connector

import (
	"context"
	"time"

	"github.com/leapstack-labs/omniquery/internal/model"
)

// FetchRequest describes what a connector must retrieve: a fetch key
// (connector-specific table/resource identifier), pushed-down predicates it
// may use to narrow the request, and the columns the caller actually needs
// projected (empty means "all known columns").
type FetchRequest struct {
	FetchKey         string
	PushedPredicates []model.Predicate
	ProjectedColumns []string
	Deadline         time.Time
}

// Connector is the capability interface every source adapter implements.
// Connectors own pagination, auth refresh, and upstream error translation;
// they never retry on throttling themselves — a 429-equivalent upstream
// response is translated to *RateLimitedError and left to the Rate Governor
// and caller to decide whether to retry.
type Connector interface {
	// Describe returns the schema a fetch key will produce.
	Describe(ctx context.Context, fetchKey string) (model.Schema, error)

	// Fetch retrieves rows for req, respecting req.Deadline. A request that
	// cannot complete before the deadline returns *TimeoutError.
	Fetch(ctx context.Context, req FetchRequest) (model.Rowset, error)
}

// sentinel error kinds a Connector implementation can return; internal/executor
// translates these to internal/apperr wire codes.
type (
	// TimeoutError reports the connector could not complete before the
	// request deadline.
	TimeoutError struct{ FetchKey string }
	// RateLimitedError reports the upstream API itself rejected the
	// request with a throttling response.
	RateLimitedError struct {
		FetchKey     string
		RetryAfterMS int64
	}
	// UpstreamError wraps any other connector-level failure (auth, 5xx,
	// malformed response).
	UpstreamError struct {
		FetchKey string
		Message  string
	}
)

func (e *TimeoutError) Error() string { return "connector: timeout fetching " + e.FetchKey }

func (e *RateLimitedError) Error() string {
	return "connector: upstream rate limited fetching " + e.FetchKey
}

func (e *UpstreamError) Error() string {
	return "connector: " + e.FetchKey + ": " + e.Message
}
