// Package github implements a Connector over the GitHub REST API, grounded
// on original_source/omnisql/connectors/github.py. It supports two fetch
// keys: "issues" and "pull_requests", both scoped to a single
// "owner/repo" passed as the FetchKey suffix (e.g. "issues:acme/widgets").
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/model"
)

const defaultBaseURL = "https://api.github.com"

var schemas = map[string]model.Schema{
	"issues": {Columns: []model.Column{
		{Name: "id", Type: model.ColumnInt},
		{Name: "number", Type: model.ColumnInt},
		{Name: "title", Type: model.ColumnString},
		{Name: "state", Type: model.ColumnString},
		{Name: "user_login", Type: model.ColumnString},
		{Name: "created_at", Type: model.ColumnTime},
	}},
	"pull_requests": {Columns: []model.Column{
		{Name: "id", Type: model.ColumnInt},
		{Name: "number", Type: model.ColumnInt},
		{Name: "title", Type: model.ColumnString},
		{Name: "state", Type: model.ColumnString},
		{Name: "user_login", Type: model.ColumnString},
		{Name: "merged", Type: model.ColumnBool},
		{Name: "created_at", Type: model.ColumnTime},
	}},
}

// Connector fetches issues and pull requests for repositories the caller
// names in its fetch keys.
type Connector struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

// New creates a github.Connector. baseURL empty means the public API.
func New(baseURL, authToken string) *Connector {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Connector{BaseURL: baseURL, AuthToken: authToken, HTTPClient: http.DefaultClient}
}

func splitFetchKey(fetchKey string) (resource, repo string, err error) {
	parts := strings.SplitN(fetchKey, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("github: fetch key %q must be \"resource:owner/repo\"", fetchKey)
	}
	return parts[0], parts[1], nil
}

// Describe implements connector.Connector.
func (c *Connector) Describe(ctx context.Context, fetchKey string) (model.Schema, error) {
	resource, _, err := splitFetchKey(fetchKey)
	if err != nil {
		return model.Schema{}, err
	}
	schema, ok := schemas[resource]
	if !ok {
		return model.Schema{}, fmt.Errorf("github: unknown resource %q", resource)
	}
	return schema, nil
}

// Fetch implements connector.Connector.
func (c *Connector) Fetch(ctx context.Context, req connector.FetchRequest) (model.Rowset, error) {
	resource, repo, err := splitFetchKey(req.FetchKey)
	if err != nil {
		return model.Rowset{}, err
	}
	schema, ok := schemas[resource]
	if !ok {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: "unknown resource " + resource}
	}

	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s?state=%s&per_page=100", c.BaseURL, repo, endpointFor(resource), stateFilter(req.PushedPredicates))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return model.Rowset{}, &connector.TimeoutError{FetchKey: req.FetchKey}
		}
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		retryAfterMS := retryAfterFromHeader(resp.Header.Get("Retry-After"))
		return model.Rowset{}, &connector.RateLimitedError{FetchKey: req.FetchKey, RetryAfterMS: retryAfterMS}
	}
	if resp.StatusCode >= 400 {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: "github API status " + resp.Status}
	}

	var raw []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}

	rows := make([][]any, 0, len(raw))
	for _, item := range raw {
		rows = append(rows, rowFrom(resource, item))
	}

	return model.Rowset{Schema: schema, Rows: rows}, nil
}

func endpointFor(resource string) string {
	if resource == "pull_requests" {
		return "pulls"
	}
	return "issues"
}

func stateFilter(preds []model.Predicate) string {
	for _, p := range preds {
		if p.Column == "state" && p.Op == model.OpEq {
			if s, ok := p.Value.(string); ok {
				return s
			}
		}
	}
	return "all"
}

func retryAfterFromHeader(v string) int64 {
	if v == "" {
		return 60_000
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return int64(secs) * 1000
	}
	return 60_000
}

func rowFrom(resource string, item map[string]any) []any {
	user, _ := item["user"].(map[string]any)
	login, _ := user["login"].(string)

	switch resource {
	case "pull_requests":
		return []any{
			item["id"], item["number"], item["title"], item["state"], login,
			item["merged_at"] != nil, item["created_at"],
		}
	default:
		return []any{
			item["id"], item["number"], item["title"], item["state"], login, item["created_at"],
		}
	}
}

var _ connector.Connector = (*Connector)(nil)
