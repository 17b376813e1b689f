// Package fixture provides an in-memory Connector used by unit tests to
// exercise the pipeline without network IO, in the style of the teacher's
// adapter test fakes (pkg/adapters/duckdb/adapter_test.go): preloaded
// tables, no auth, deterministic fetch latency.
package fixture

import (
	"context"
	"time"

	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/model"
)

// Connector serves canned Rowsets keyed by fetch key.
type Connector struct {
	Tables map[string]model.Rowset
	// Latency, if set, is slept before returning to let tests exercise
	// deadline handling.
	Latency time.Duration
}

// New creates an empty fixture Connector.
func New() *Connector {
	return &Connector{Tables: make(map[string]model.Rowset)}
}

// Seed registers fetchKey's schema and rows.
func (c *Connector) Seed(fetchKey string, rs model.Rowset) {
	c.Tables[fetchKey] = rs
}

// Describe implements connector.Connector.
func (c *Connector) Describe(ctx context.Context, fetchKey string) (model.Schema, error) {
	rs, ok := c.Tables[fetchKey]
	if !ok {
		return model.Schema{}, &connector.UpstreamError{FetchKey: fetchKey, Message: "unknown fixture table"}
	}
	return rs.Schema, nil
}

// Fetch implements connector.Connector. It applies no filtering itself —
// pushed predicates are accepted but ignored, so tests can assert the
// planner/executor correctly treats unfiltered fixture data as the
// "connector chose not to push this predicate" case when needed.
func (c *Connector) Fetch(ctx context.Context, req connector.FetchRequest) (model.Rowset, error) {
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return model.Rowset{}, &connector.TimeoutError{FetchKey: req.FetchKey}
		}
	}
	if !req.Deadline.IsZero() && time.Now().After(req.Deadline) {
		return model.Rowset{}, &connector.TimeoutError{FetchKey: req.FetchKey}
	}

	rs, ok := c.Tables[req.FetchKey]
	if !ok {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: "unknown fixture table"}
	}
	rs.FetchedAt = time.Now()
	return rs, nil
}
