// Package jira implements a Connector over the Jira Cloud REST API (v3
// search endpoint), grounded on original_source/omnisql/connectors/jira.py.
// The single fetch key "issues" is scoped by a JQL project filter derived
// from pushed-down predicates on the "project" column.
package jira

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/model"
)

var issueSchema = model.Schema{Columns: []model.Column{
	{Name: "key", Type: model.ColumnString},
	{Name: "project", Type: model.ColumnString},
	{Name: "summary", Type: model.ColumnString},
	{Name: "status", Type: model.ColumnString},
	{Name: "assignee", Type: model.ColumnString},
	{Name: "created", Type: model.ColumnTime},
}}

// Connector fetches Jira issues via basic auth (email + API token), the
// standard Jira Cloud credential shape.
type Connector struct {
	BaseURL    string // e.g. https://acme.atlassian.net
	Email      string
	APIToken   string
	HTTPClient *http.Client
}

// New creates a jira.Connector.
func New(baseURL, email, apiToken string) *Connector {
	return &Connector{BaseURL: baseURL, Email: email, APIToken: apiToken, HTTPClient: http.DefaultClient}
}

// Describe implements connector.Connector.
func (c *Connector) Describe(ctx context.Context, fetchKey string) (model.Schema, error) {
	if fetchKey != "issues" {
		return model.Schema{}, fmt.Errorf("jira: unknown fetch key %q", fetchKey)
	}
	return issueSchema, nil
}

// Fetch implements connector.Connector.
func (c *Connector) Fetch(ctx context.Context, req connector.FetchRequest) (model.Rowset, error) {
	if req.FetchKey != "issues" {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: "unknown fetch key"}
	}

	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	jql := jqlFor(req.PushedPredicates)
	endpoint := fmt.Sprintf("%s/rest/api/3/search?jql=%s&maxResults=100", c.BaseURL, url.QueryEscape(jql))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}
	cred := base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.APIToken))
	httpReq.Header.Set("Authorization", "Basic "+cred)
	httpReq.Header.Set("Accept", "application/json")

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
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: "jira API status " + resp.Status}
	}

	var body struct {
		Issues []struct {
			Key    string `json:"key"`
			Fields struct {
				Project struct {
					Key string `json:"key"`
				} `json:"project"`
				Summary string `json:"summary"`
				Status  struct {
					Name string `json:"name"`
				} `json:"status"`
				Assignee *struct {
					DisplayName string `json:"displayName"`
				} `json:"assignee"`
				Created string `json:"created"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Rowset{}, &connector.UpstreamError{FetchKey: req.FetchKey, Message: err.Error()}
	}

	rows := make([][]any, 0, len(body.Issues))
	for _, issue := range body.Issues {
		assignee := ""
		if issue.Fields.Assignee != nil {
			assignee = issue.Fields.Assignee.DisplayName
		}
		rows = append(rows, []any{
			issue.Key, issue.Fields.Project.Key, issue.Fields.Summary,
			issue.Fields.Status.Name, assignee, issue.Fields.Created,
		})
	}

	return model.Rowset{Schema: issueSchema, Rows: rows}, nil
}

func jqlFor(preds []model.Predicate) string {
	for _, p := range preds {
		if p.Column == "project" && p.Op == model.OpEq {
			if s, ok := p.Value.(string); ok {
				return fmt.Sprintf("project = %q", s)
			}
		}
	}
	return "order by created desc"
}

var _ connector.Connector = (*Connector)(nil)
