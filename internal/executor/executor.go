// Package executor implements the Parallel Executor: bounded, cancellable
// fan-out across a query's FetchNodes, each running the same per-node
// pipeline (cache lookup -> rate admission -> connector fetch -> cache
// write-back -> security filter).
//
// Uses golang.org/x/sync/errgroup for fan-out — a teacher dependency
// already imported for graceful HTTP server shutdown (internal/ui/server.go
// in the original tree) but not yet used for parallel work before this
// package. The base design fails the whole query as soon as any one node's
// fetch fails fatally (see SPEC_FULL.md REDESIGN FLAGS on partial-success).
package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/omniquery/internal/apperr"
	"github.com/leapstack-labs/omniquery/internal/cache"
	"github.com/leapstack-labs/omniquery/internal/config"
	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/governor"
	"github.com/leapstack-labs/omniquery/internal/model"
	"github.com/leapstack-labs/omniquery/internal/security"
)

// Deps bundles the shared services each node's pipeline needs.
type Deps struct {
	Cache      *cache.Cache
	Governor   *governor.Governor
	Security   *security.Filter
	Connectors map[string]connector.Connector // sourceID -> Connector
	Sources    map[string]config.SourceConfig // sourceID -> config
	RLSRules   []config.RLSRule
	CLSRules   []config.CLSRule
	Principal  model.Principal
	TenantID   string

	MaxParallelism int
	MaxStalenessMS int64
}

// NodeResult is one FetchNode's outcome: its secured rowset plus the
// per-node timing and freshness metadata the orchestrator surfaces in the
// query response.
type NodeResult struct {
	Alias          string
	Rowset         model.Rowset
	RawCount       int
	FromCache      bool
	FreshnessMS    int64
	ConnectorMS    int64
}

// Run executes every node in nodes concurrently, bounded to
// deps.MaxParallelism in flight at once, and returns once all have
// completed or the first fatal error cancels the rest.
func Run(ctx context.Context, nodes []model.FetchNode, deps Deps) (map[string]NodeResult, []string, error) {
	maxPar := deps.MaxParallelism
	if maxPar <= 0 || maxPar > len(nodes) {
		maxPar = len(nodes)
	}
	if maxPar == 0 {
		return map[string]NodeResult{}, nil, nil
	}

	sem := make(chan struct{}, maxPar)
	g, gctx := errgroup.WithContext(ctx)

	results := make(map[string]NodeResult, len(nodes))
	warnings := make(map[string]bool)
	resultCh := make(chan NodeResult, len(nodes))
	warnCh := make(chan string, len(nodes)*2)

	for _, node := range nodes {
		node := node
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			res, nodeWarnings, err := runNode(gctx, node, deps)
			if err != nil {
				return err
			}
			resultCh <- res
			for _, w := range nodeWarnings {
				warnCh <- w
			}
			return nil
		})
	}

	err := g.Wait()
	close(resultCh)
	close(warnCh)
	for r := range resultCh {
		results[r.Alias] = r
	}
	var warningList []string
	for w := range warnCh {
		if !warnings[w] {
			warnings[w] = true
			warningList = append(warningList, w)
		}
	}

	return results, warningList, err
}

// runNode drives one FetchNode through cache lookup -> rate admission ->
// connector fetch -> cache write-back -> security filter, in that order
// (spec.md §2's Cache -> RateGovernor -> Connector data flow): the rate
// governor is only consulted from inside the cache's fetch closure, so a
// cache hit never consumes a rate-limit token.
func runNode(ctx context.Context, node model.FetchNode, deps Deps) (NodeResult, []string, error) {
	conn, ok := deps.Connectors[node.SourceID]
	if !ok {
		return NodeResult{}, nil, apperr.New(apperr.CodeConnectorError, "no connector registered for source %q", node.SourceID)
	}
	srcCfg := deps.Sources[node.SourceID]

	key := cache.Key(deps.TenantID, node.SourceID, node.FetchKey, node.CacheKey())

	start := time.Now()
	data, fromCache, stale, err := deps.Cache.GetOrFetch(key, deps.MaxStalenessMS, func() (any, error) {
		if err := deps.Governor.Admit(deps.TenantID, node.SourceID, srcCfg.RateCapacity, srcCfg.RateRefillPerSec); err != nil {
			if rle, ok := err.(*governor.RateLimitError); ok {
				return nil, apperr.RateLimited(rle.RetryAfterMS, "source %q rate limit exhausted", node.SourceID)
			}
			return nil, err
		}

		deadline, _ := ctx.Deadline()
		rs, err := conn.Fetch(ctx, connector.FetchRequest{
			FetchKey:         node.FetchKey,
			PushedPredicates: node.PushedPredicates,
			ProjectedColumns: node.ProjectedColumns,
			Deadline:         deadline,
		})
		if err != nil {
			return nil, translateConnectorErr(node, err)
		}
		return rs, nil
	})
	connectorMS := time.Since(start).Milliseconds()
	if err != nil {
		return NodeResult{}, nil, err
	}

	var warnings []string
	if stale {
		warnings = append(warnings, string(apperr.CodeStaleData))
	}

	rs := data.(model.Rowset)
	rs.FromCache = fromCache
	rawCount := len(rs.Rows)

	var freshnessMS int64
	if fromCache {
		if entry, ok := deps.Cache.Get(key); ok {
			freshnessMS = entry.AgeMS(time.Now())
		}
	}

	if deps.Security != nil {
		secured, err := deps.Security.ApplyRLS(rs, node.SourceID, deps.Principal, deps.RLSRules)
		if err != nil {
			return NodeResult{}, nil, apperr.New(apperr.CodeInternal, "applying row security: %v", err)
		}
		secured, err = deps.Security.ApplyCLS(secured, node.SourceID, deps.Principal, deps.CLSRules)
		if err != nil {
			return NodeResult{}, nil, apperr.New(apperr.CodeInternal, "applying column security: %v", err)
		}
		rs = secured
	}

	if node.ProjectedColumns != nil {
		for _, col := range node.ProjectedColumns {
			if rs.Schema.IndexOf(col) < 0 {
				return NodeResult{}, nil, apperr.New(apperr.CodeEntitlementDenied,
					"column %q on source %q required by the query was removed by a column security rule", col, node.SourceID)
			}
		}
	}

	if rawCount > 0 && len(rs.Rows) == 0 {
		warnings = append(warnings, string(apperr.CodeEntitlementDenied))
	}

	return NodeResult{
		Alias:       node.Alias,
		Rowset:      rs,
		RawCount:    rawCount,
		FromCache:   fromCache,
		FreshnessMS: freshnessMS,
		ConnectorMS: connectorMS,
	}, warnings, nil
}

func translateConnectorErr(node model.FetchNode, err error) error {
	switch e := err.(type) {
	case *connector.TimeoutError:
		return apperr.New(apperr.CodeSourceTimeout, "source %q timed out fetching %q", node.SourceID, e.FetchKey)
	case *connector.RateLimitedError:
		return apperr.RateLimited(e.RetryAfterMS, "upstream rate limited source %q", node.SourceID)
	case *connector.UpstreamError:
		return apperr.New(apperr.CodeConnectorError, "%s", e.Error())
	default:
		return apperr.New(apperr.CodeConnectorError, "%s: %v", fmt.Sprintf("source %q", node.SourceID), err)
	}
}
