// Package generic implements the single manifest-parameterized connector
// spec.md's design notes call for: rather than one Go type per declarative
// YAML-described SaaS source, sources whose shape is just "REST endpoint
// returning a JSON array of flat objects" all share this one adapter,
// configured entirely by its Manifest value.
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/model"
)

// FieldMapping maps a JSON response field to a typed output column.
type FieldMapping struct {
	JSONField  string
	Column     string
	ColumnType model.ColumnType
}

// Manifest is the declarative description of one generic REST source: one
// endpoint per fetch key, with a fixed field mapping and a template for
// turning pushed-down equality predicates into query-string parameters.
type Manifest struct {
	BaseURL        string
	AuthHeader     string // e.g. "Authorization"
	AuthValue      string // e.g. "Bearer <token>"
	Endpoints      map[string]Endpoint
}

// Endpoint describes one fetch key's REST call and response shape.
type Endpoint struct {
	Path        string // relative to BaseURL, may contain no placeholders
	ResponseKey string // JSON field holding the array of items; "" means the root is the array
	Fields      []FieldMapping
	// PushableParams maps a predicate column name to the query-string
	// parameter name it should become when pushed down.
	PushableParams map[string]string
}

// Connector serves any number of Manifest-described sources through the one
// adapter, dispatch keyed by fetch key.
type Connector struct {
	Manifest   Manifest
	HTTPClient *http.Client
}

// New creates a generic.Connector for m.
func New(m Manifest) *Connector {
	return &Connector{Manifest: m, HTTPClient: http.DefaultClient}
}

// Describe implements connector.Connector.
func (c *Connector) Describe(ctx context.Context, fetchKey string) (model.Schema, error) {
	ep, ok := c.Manifest.Endpoints[fetchKey]
	if !ok {
		return model.Schema{}, fmt.Errorf("generic: unknown fetch key %q", fetchKey)
	}
	cols := make([]model.Column, len(ep.Fields))
	for i, f := range ep.Fields {
		cols[i] = model.Column{Name: f.Column, Type: f.ColumnType}
	}
	return model.Schema{Columns: cols}, nil
}

// Fetch implements connector.Connector.
func (c *Connector) Fetch(ctx context.Context, req connector.FetchRequest) (model.Rowset, error) {
	ep, ok := c.Manifest.Endpoints[req.FetchKey]
	if !ok {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: "unknown fetch key"}
	}

	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	endpoint := c.Manifest.BaseURL + ep.Path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}
	if c.Manifest.AuthHeader != "" {
		httpReq.Header.Set(c.Manifest.AuthHeader, c.Manifest.AuthValue)
	}

	q := httpReq.URL.Query()
	for _, p := range req.PushedPredicates {
		if p.Op != model.OpEq {
			continue
		}
		param, ok := ep.PushableParams[p.Column]
		if !ok {
			continue
		}
		q.Set(param, fmt.Sprintf("%v", p.Value))
	}
	httpReq.URL.RawQuery = q.Encode()

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return model.Rowset{}, &connector.TimeoutError{FetchKey: req.FetchKey}
		}
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return model.Rowset{}, &connector.RateLimitedError{FetchKey: req.FetchKey, RetryAfterMS: 30_000}
	}
	if resp.StatusCode >= 400 {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: "generic source status " + resp.Status}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}

	items, err := extractItems(payload, ep.ResponseKey)
	if err != nil {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}

	schema, _ := c.Describe(ctx, req.FetchKey)
	rows := make([][]any, 0, len(items))
	for _, item := range items {
		row := make([]any, len(ep.Fields))
		for i, f := range ep.Fields {
			row[i] = item[f.JSONField]
		}
		rows = append(rows, row)
	}

	return model.Rowset{Schema: schema, Rows: rows, FetchedAt: time.Now()}, nil
}

func extractItems(payload any, responseKey string) ([]map[string]any, error) {
	if responseKey != "" {
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("generic: expected object response, got %T", payload)
		}
		payload = obj[responseKey]
	}
	arr, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("generic: expected array response, got %T", payload)
	}
	items := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, nil
}

var _ connector.Connector = (*Connector)(nil)
