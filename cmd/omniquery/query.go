package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/omniquery/internal/config"
	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/connector/generic"
	"github.com/leapstack-labs/omniquery/internal/connector/github"
	"github.com/leapstack-labs/omniquery/internal/connector/jira"
	"github.com/leapstack-labs/omniquery/internal/model"
	"github.com/leapstack-labs/omniquery/internal/obslog"
	"github.com/leapstack-labs/omniquery/internal/orchestrator"
	"github.com/leapstack-labs/omniquery/internal/tenant"
)

type queryOptions struct {
	TenantID string
	UserID   string
}

func newQueryCommand() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a federated SQL query across configured sources",
		Example: `  omniquery query --tenant acme "SELECT * FROM gh.issues WHERE gh.issues.state = 'open'"
  omniquery query --tenant acme --format json "SELECT key, status FROM jira.issues"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant ID to run the query as (required)")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "principal user ID for row/column security evaluation")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runQuery(cmd *cobra.Command, sqlText string, opts *queryOptions) error {
	path, err := resolveManifestPath()
	if err != nil {
		return err
	}
	manifest, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	registry := tenant.NewRegistry(manifest)
	logger := obslog.Discard()

	orch, err := orchestrator.New(orchestrator.Config{
		Registry:         registry,
		Logger:           logger,
		MaxParallelism:   manifest.Defaults.MaxParallelism,
		CacheTTLMS:       manifest.Defaults.CacheTTLMS,
		CacheMaxEntries:  manifest.Defaults.CacheMaxEntries,
		RateCapacity:     manifest.Defaults.RateCapacity,
		RateRefillPerSec: manifest.Defaults.RateRefillPerSec,
	})
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}
	defer orch.Close()

	for sourceID, srcCfg := range manifest.Sources {
		conn, err := buildConnector(srcCfg)
		if err != nil {
			return fmt.Errorf("source %q: %w", sourceID, err)
		}
		orch.RegisterConnector(sourceID, conn)
	}

	resp, err := orch.Execute(cmd.Context(), orchestrator.Request{
		TenantID:  opts.TenantID,
		Principal: model.Principal{TenantID: opts.TenantID, UserID: opts.UserID},
		SQL:       sqlText,
	})
	if err != nil {
		return err
	}

	return renderRows(cmd.OutOrStdout(), resp.Columns, resp.Rows, outputFormat)
}

func renderRows(w io.Writer, cols []string, rows [][]any, format string) error {
	switch format {
	case "json":
		return renderJSON(w, cols, rows)
	case "csv":
		return renderCSV(w, cols, rows)
	default:
		return renderTable(w, cols, rows)
	}
}

func renderTable(w io.Writer, cols []string, rows [][]any) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = formatValue(v)
		}
		t.AppendRow(r)
	}

	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

func renderJSON(w io.Writer, cols []string, rows [][]any) error {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = row[i]
		}
		out = append(out, rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func renderCSV(w io.Writer, cols []string, rows [][]any) error {
	fmt.Fprintln(w, strings.Join(cols, ","))
	for _, row := range rows {
		vals := make([]string, len(row))
		for i, v := range row {
			vals[i] = escapeCSV(formatValue(v))
		}
		fmt.Fprintln(w, strings.Join(vals, ","))
	}
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// buildConnector mirrors omniqueryd's connector wiring; kept duplicated
// rather than shared since the CLI and the server have no other common
// dependency and a shared internal/connectorwiring package would exist
// solely to hold this one switch.
func buildConnector(src config.SourceConfig) (connector.Connector, error) {
	switch src.Connector {
	case "github":
		baseURL := src.BaseURL
		if baseURL == "" {
			baseURL = "https://api.github.com"
		}
		return github.New(baseURL, src.AuthToken), nil
	case "jira":
		return jira.New(src.BaseURL, src.Options["email"], src.AuthToken), nil
	case "generic":
		return generic.New(generic.Manifest{
			BaseURL:    src.BaseURL,
			AuthHeader: src.Options["auth_header"],
			AuthValue:  src.Options["auth_value"],
			Endpoints:  convertEndpoints(src.Endpoints),
		}), nil
	default:
		return nil, fmt.Errorf("unknown connector kind %q", src.Connector)
	}
}

func convertEndpoints(in map[string]config.GenericEndpoint) map[string]generic.Endpoint {
	out := make(map[string]generic.Endpoint, len(in))
	for key, ep := range in {
		fields := make([]generic.FieldMapping, 0, len(ep.Fields))
		for _, f := range ep.Fields {
			fields = append(fields, generic.FieldMapping{
				JSONField:  f.JSONField,
				Column:     f.Column,
				ColumnType: model.ColumnType(f.ColumnType),
			})
		}
		out[key] = generic.Endpoint{
			Path:           ep.Path,
			ResponseKey:    ep.ResponseKey,
			Fields:         fields,
			PushableParams: ep.PushableParams,
		}
	}
	return out
}
