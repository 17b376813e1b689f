// Package orchestrator wires the SQL Analyzer, Fetch Planner, Parallel
// Executor, and Analytical Runtime into the single Query Orchestrator entry
// point external callers use. Shaped after the teacher's internal/engine.Engine:
// a New(Config) constructor defaulting to a discard logger, explicit %w
// error wrapping, and a Close() (which currently has nothing to release).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/omniquery/internal/analyzer"
	"github.com/leapstack-labs/omniquery/internal/apperr"
	"github.com/leapstack-labs/omniquery/internal/cache"
	"github.com/leapstack-labs/omniquery/internal/config"
	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/executor"
	"github.com/leapstack-labs/omniquery/internal/governor"
	"github.com/leapstack-labs/omniquery/internal/model"
	"github.com/leapstack-labs/omniquery/internal/planner"
	"github.com/leapstack-labs/omniquery/internal/runtime"
	"github.com/leapstack-labs/omniquery/internal/security"
	"github.com/leapstack-labs/omniquery/internal/tenant"
)

// Config configures an Orchestrator.
type Config struct {
	Registry *tenant.Registry
	Logger   *slog.Logger

	QueryDeadline    time.Duration
	MaxParallelism   int
	CacheTTLMS       int64
	CacheMaxEntries  int
	RateCapacity     int
	RateRefillPerSec float64
}

// Orchestrator is the Query Orchestrator: the single object external
// interfaces (cmd/omniqueryd, cmd/omniquery) call into.
type Orchestrator struct {
	registry   *tenant.Registry
	logger     *slog.Logger
	cache      *cache.Cache
	governor   *governor.Governor
	security   *security.Filter
	connectors map[string]connector.Connector

	queryDeadline  time.Duration
	maxParallelism int
}

// New constructs an Orchestrator. cfg.Logger defaults to a discard handler,
// matching internal/engine.New's nil-logger handling.
func New(cfg Config) (*Orchestrator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("orchestrator: Registry is required")
	}

	sec, err := security.New()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	deadline := cfg.QueryDeadline
	if deadline <= 0 {
		deadline = time.Duration(config.DefaultQueryDeadlineMS) * time.Millisecond
	}
	maxPar := cfg.MaxParallelism
	if maxPar <= 0 {
		maxPar = config.DefaultMaxParallelism
	}
	ttl := cfg.CacheTTLMS
	if ttl <= 0 {
		ttl = config.DefaultCacheTTLMS
	}
	maxEntries := cfg.CacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}
	rateCap := cfg.RateCapacity
	if rateCap <= 0 {
		rateCap = config.DefaultRateCapacity
	}
	rateRefill := cfg.RateRefillPerSec
	if rateRefill <= 0 {
		rateRefill = config.DefaultRateRefillPerSec
	}

	return &Orchestrator{
		registry:       cfg.Registry,
		logger:         logger,
		cache:          cache.New(maxEntries, ttl),
		governor:       governor.New(rateCap, rateRefill),
		security:       sec,
		connectors:     make(map[string]connector.Connector),
		queryDeadline:  deadline,
		maxParallelism: maxPar,
	}, nil
}

// RegisterConnector wires a source ID to the Connector implementation that
// serves it.
func (o *Orchestrator) RegisterConnector(sourceID string, c connector.Connector) {
	o.connectors[sourceID] = c
}

// Close releases the orchestrator's resources. There is currently nothing
// to release beyond in-process state, but the method exists so callers
// always have a symmetric New/Close pair to defer, matching the teacher's
// Engine shape.
func (o *Orchestrator) Close() error {
	return nil
}

// Request is one query execution request.
type Request struct {
	TenantID       string
	Principal      model.Principal
	SQL            string
	MaxStalenessMS int64
	TraceID        string
}

// Timing breaks down where time was spent executing a query.
type Timing struct {
	TotalMS    int64
	PlanningMS int64
	FetchMS    int64
	SecurityMS int64
	DuckDBMS   int64
}

// Response is the full result of executing a query.
type Response struct {
	Columns         []string
	Rows            [][]any
	FreshnessMS     int64
	FromCache       bool
	RateLimitStatus map[string]model.RateState
	Timing          Timing
	Warnings        []string
	TraceID         string
}

// Execute runs req end to end: analyze, plan, fan out fetches, apply
// security, register results in a fresh DuckDB session, and execute the
// rewritten SQL.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	logger := o.logger.With("trace_id", traceID, "tenant_id", req.TenantID)

	deadline := start.Add(o.queryDeadline)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	tenantCfg, err := o.registry.Tenant(req.TenantID)
	if err != nil {
		return nil, apperr.New(apperr.CodePlanFailed, "%v", err)
	}

	planStart := time.Now()
	analyzed, err := analyzer.Analyze(req.SQL, tenantCfg)
	if err != nil {
		return nil, err
	}
	plan := planner.Build(analyzed)
	planningMS := time.Since(planStart).Milliseconds()

	sources := make(map[string]config.SourceConfig)
	for _, t := range analyzed.Tables {
		if _, ok := sources[t.Binding.Source]; ok {
			continue
		}
		srcCfg, err := o.registry.Source(t.Binding.Source)
		if err != nil {
			return nil, apperr.New(apperr.CodePlanFailed, "%v", err)
		}
		sources[t.Binding.Source] = srcCfg
	}

	fetchStart := time.Now()
	results, warnings, err := executor.Run(ctx, plan.Nodes, executor.Deps{
		Cache:          o.cache,
		Governor:       o.governor,
		Security:       o.security,
		Connectors:     o.connectors,
		Sources:        sources,
		RLSRules:       tenantCfg.RLSRules,
		CLSRules:       tenantCfg.CLSRules,
		Principal:      req.Principal,
		TenantID:       req.TenantID,
		MaxParallelism: o.maxParallelism,
		MaxStalenessMS: req.MaxStalenessMS,
	})
	fetchMS := time.Since(fetchStart).Milliseconds()
	if err != nil {
		logger.Warn("query execution failed during fetch", "error", err)
		return nil, err
	}

	sess, err := runtime.Open(ctx)
	if err != nil {
		return nil, apperr.New(apperr.CodeRuntimeError, "%v", err)
	}
	defer sess.Close()

	var tableKeys []string
	fromCacheAll := true
	var maxFreshness int64
	for _, t := range analyzed.Tables {
		res := results[t.Alias]
		tableKeys = append(tableKeys, t.Table)
		if err := sess.Register(ctx, t.Table, res.Rowset); err != nil {
			return nil, apperr.New(apperr.CodeRuntimeError, "%v", err)
		}
		if !res.FromCache {
			fromCacheAll = false
		}
		if res.FreshnessMS > maxFreshness {
			maxFreshness = res.FreshnessMS
		}
	}

	rewritten := runtime.Rewrite(req.SQL, tableKeys)

	duckStart := time.Now()
	cols, rows, err := sess.Query(ctx, rewritten)
	duckMS := time.Since(duckStart).Milliseconds()
	if err != nil {
		return nil, apperr.New(apperr.CodeRuntimeError, "%v", err)
	}

	rateStatus := make(map[string]model.RateState, len(sources))
	for sourceID := range sources {
		b := o.governor.Bucket(req.TenantID, sourceID, sources[sourceID].RateCapacity, sources[sourceID].RateRefillPerSec)
		st := b.Status()
		rateStatus[sourceID] = model.RateState{Tokens: st.Tokens, Capacity: st.Capacity}
	}

	return &Response{
		Columns:         cols,
		Rows:            rows,
		FreshnessMS:     maxFreshness,
		FromCache:       fromCacheAll,
		RateLimitStatus: rateStatus,
		Timing: Timing{
			TotalMS:    time.Since(start).Milliseconds(),
			PlanningMS: planningMS,
			FetchMS:    fetchMS,
			DuckDBMS:   duckMS,
		},
		Warnings: warnings,
		TraceID:  traceID,
	}, nil
}
