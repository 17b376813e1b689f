// Command omniqueryd runs the OmniQuery query server: it loads a manifest,
// wires connectors and the orchestrator, and serves POST /v1/query over
// HTTP until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leapstack-labs/omniquery/internal/config"
	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/connector/generic"
	"github.com/leapstack-labs/omniquery/internal/connector/github"
	"github.com/leapstack-labs/omniquery/internal/connector/jira"
	"github.com/leapstack-labs/omniquery/internal/httpapi"
	"github.com/leapstack-labs/omniquery/internal/model"
	"github.com/leapstack-labs/omniquery/internal/obslog"
	"github.com/leapstack-labs/omniquery/internal/orchestrator"
	"github.com/leapstack-labs/omniquery/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "omniqueryd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		manifestPath string
		port         int
		jsonLogs     bool
		debug        bool
	)
	flag.StringVar(&manifestPath, "config", "", "path to omniquery.yaml (default: search upward from cwd)")
	flag.IntVar(&port, "port", 8080, "HTTP listen port")
	flag.BoolVar(&jsonLogs, "json-logs", false, "emit JSON-formatted logs")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	logger := obslog.New(obslog.Options{JSON: jsonLogs, Debug: debug})

	if manifestPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		dir := config.FindProjectRoot(cwd)
		if dir == "" {
			return fmt.Errorf("no %s found searching upward from %s", config.ManifestFileName, cwd)
		}
		if p := filepath.Join(dir, config.ManifestFileName); fileExists(p) {
			manifestPath = p
		} else {
			manifestPath = filepath.Join(dir, config.ManifestFileNameAlt)
		}
	}

	manifest, err := config.Load(manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	registry := tenant.NewRegistry(manifest)

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

	watcher, err := config.NewWatcher(manifestPath, logger, func(m *config.Manifest) {
		registry.Replace(m)
	})
	if err != nil {
		logger.Warn("manifest hot-reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	srv := httpapi.NewServer(httpapi.Config{
		Orchestrator: orch,
		Port:         port,
		Logger:       logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Serve(ctx)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// buildConnector constructs the Connector a source config names. "generic"
// sources describe their own endpoints through src.Endpoints, since a
// declarative REST source has no fixed Go type to parameterize.
func buildConnector(src config.SourceConfig) (connector.Connector, error) {
	switch src.Connector {
	case "github":
		return github.New(firstNonEmpty(src.BaseURL, "https://api.github.com"), src.AuthToken), nil
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

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
