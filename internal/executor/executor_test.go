package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/omniquery/internal/apperr"
	"github.com/leapstack-labs/omniquery/internal/cache"
	"github.com/leapstack-labs/omniquery/internal/config"
	"github.com/leapstack-labs/omniquery/internal/connector"
	"github.com/leapstack-labs/omniquery/internal/connector/fixture"
	"github.com/leapstack-labs/omniquery/internal/governor"
	"github.com/leapstack-labs/omniquery/internal/model"
	"github.com/leapstack-labs/omniquery/internal/security"
)

func issuesRowset() model.Rowset {
	return model.Rowset{
		Schema: model.Schema{Columns: []model.Column{
			{Name: "id", Type: model.ColumnInt},
			{Name: "title", Type: model.ColumnString},
			{Name: "assignee_email", Type: model.ColumnString},
		}},
		Rows: [][]any{
			{int64(1), "fix login bug", "alice@acme.com"},
			{int64(2), "add dark mode", "bob@acme.com"},
		},
	}
}

func baseDeps(t *testing.T) Deps {
	t.Helper()
	sec, err := security.New()
	require.NoError(t, err)

	conn := fixture.New()
	conn.Seed("issues:acme/widgets", issuesRowset())

	return Deps{
		Cache:    cache.New(100, 60_000),
		Governor: governor.New(50, 10.0),
		Security: sec,
		Connectors: map[string]connector.Connector{
			"github": conn,
		},
		Sources: map[string]config.SourceConfig{
			"github": {RateCapacity: 50, RateRefillPerSec: 10.0},
		},
		Principal:      model.Principal{TenantID: "acme", UserID: "u1"},
		TenantID:       "acme",
		MaxParallelism: 4,
		MaxStalenessMS: 60_000,
	}
}

func fetchNode() model.FetchNode {
	return model.FetchNode{
		ID:       "node_0_i",
		Alias:    "i",
		SourceID: "github",
		FetchKey: "issues:acme/widgets",
	}
}

func TestRun_FetchesSingleNode(t *testing.T) {
	deps := baseDeps(t)
	results, warnings, err := Run(context.Background(), []model.FetchNode{fetchNode()}, deps)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	res := results["i"]
	assert.Len(t, res.Rowset.Rows, 2)
	assert.False(t, res.FromCache)
}

func TestRun_SecondFetchIsServedFromCache(t *testing.T) {
	deps := baseDeps(t)
	node := fetchNode()

	_, _, err := Run(context.Background(), []model.FetchNode{node}, deps)
	require.NoError(t, err)

	results, _, err := Run(context.Background(), []model.FetchNode{node}, deps)
	require.NoError(t, err)
	assert.True(t, results["i"].FromCache)
}

func TestRun_AppliesRowLevelSecurity(t *testing.T) {
	deps := baseDeps(t)
	deps.RLSRules = []config.RLSRule{
		{Source: "github", Expression: `row.assignee_email == principal.user_id + "@acme.com"`},
	}
	deps.Principal = model.Principal{TenantID: "acme", UserID: "alice"}

	results, _, err := Run(context.Background(), []model.FetchNode{fetchNode()}, deps)
	require.NoError(t, err)
	assert.Len(t, results["i"].Rowset.Rows, 1)
	assert.Equal(t, "alice@acme.com", results["i"].Rowset.Rows[0][2])
}

func TestRun_AppliesColumnLevelSecurityHash(t *testing.T) {
	deps := baseDeps(t)
	deps.CLSRules = []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSHash},
	}

	results, _, err := Run(context.Background(), []model.FetchNode{fetchNode()}, deps)
	require.NoError(t, err)
	for _, row := range results["i"].Rowset.Rows {
		masked := row[2].(string)
		assert.Contains(t, masked, "****@ema.co")
		assert.NotContains(t, masked, "@acme.com")
	}
}

func TestRun_AppliesColumnLevelSecurityBlockRemovesColumn(t *testing.T) {
	deps := baseDeps(t)
	deps.CLSRules = []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSBlock},
	}

	results, _, err := Run(context.Background(), []model.FetchNode{fetchNode()}, deps)
	require.NoError(t, err)
	res := results["i"]
	assert.Len(t, res.Rowset.Schema.Columns, 2)
	for _, row := range res.Rowset.Rows {
		assert.Len(t, row, 2)
	}
}

func TestRun_WarnsWhenSecurityFiltersOutAllRows(t *testing.T) {
	deps := baseDeps(t)
	deps.RLSRules = []config.RLSRule{
		{Source: "github", Expression: `false`},
	}

	results, warnings, err := Run(context.Background(), []model.FetchNode{fetchNode()}, deps)
	require.NoError(t, err)
	assert.Empty(t, results["i"].Rowset.Rows)
	assert.Contains(t, warnings, "ENTITLEMENT_DENIED")
}

func TestRun_SourceTimeoutTranslatesToSourceTimeoutCode(t *testing.T) {
	deps := baseDeps(t)
	conn := fixture.New()
	conn.Seed("issues:acme/widgets", issuesRowset())
	conn.Latency = 50 * time.Millisecond
	deps.Connectors["github"] = conn

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, _, err := Run(ctx, []model.FetchNode{fetchNode()}, deps)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeSourceTimeout, ae.Code)
}

func TestRun_ZeroMaxStalenessBypassesCacheAndRefetchesLive(t *testing.T) {
	deps := baseDeps(t)
	node := fetchNode()

	_, _, err := Run(context.Background(), []model.FetchNode{node}, deps)
	require.NoError(t, err)

	deps.MaxStalenessMS = 0
	results, _, err := Run(context.Background(), []model.FetchNode{node}, deps)
	require.NoError(t, err)
	assert.False(t, results["i"].FromCache, "max_staleness_ms=0 must always fetch live, even with a cached entry present")
}

func TestRun_CacheHitDoesNotConsumeRateLimitToken(t *testing.T) {
	deps := baseDeps(t)
	deps.Governor = governor.New(1, 0.0001)
	deps.Sources["github"] = config.SourceConfig{RateCapacity: 1, RateRefillPerSec: 0.0001}
	node := fetchNode()

	_, _, err := Run(context.Background(), []model.FetchNode{node}, deps)
	require.NoError(t, err, "the first fetch spends the bucket's only token")

	results, _, err := Run(context.Background(), []model.FetchNode{node}, deps)
	require.NoError(t, err, "a cache hit must not need the rate governor at all")
	assert.True(t, results["i"].FromCache)
}

func TestRun_EntitlementDeniedWhenRequiredProjectedColumnIsBlocked(t *testing.T) {
	deps := baseDeps(t)
	deps.CLSRules = []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSBlock},
	}
	node := fetchNode()
	node.ProjectedColumns = []string{"id", "assignee_email"}

	_, _, err := Run(context.Background(), []model.FetchNode{node}, deps)
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeEntitlementDenied, ae.Code)
}

func TestRun_BlockedColumnNotProjectedDoesNotFailTheQuery(t *testing.T) {
	deps := baseDeps(t)
	deps.CLSRules = []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSBlock},
	}
	node := fetchNode()
	node.ProjectedColumns = []string{"id", "title"}

	_, _, err := Run(context.Background(), []model.FetchNode{node}, deps)
	require.NoError(t, err)
}

func TestRun_RateLimitExhaustedStopsFetch(t *testing.T) {
	deps := baseDeps(t)
	deps.Governor = governor.New(1, 0.0001)
	deps.Sources["github"] = config.SourceConfig{RateCapacity: 1, RateRefillPerSec: 0.0001}

	// Exhaust the bucket before the executor ever gets to run.
	deps.Governor.Admit("acme", "github", 1, 0.0001)

	_, _, err := Run(context.Background(), []model.FetchNode{fetchNode()}, deps)
	require.Error(t, err)
}
