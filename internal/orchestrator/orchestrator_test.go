package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/omniquery/internal/apperr"
	"github.com/leapstack-labs/omniquery/internal/config"
	"github.com/leapstack-labs/omniquery/internal/connector/fixture"
	"github.com/leapstack-labs/omniquery/internal/model"
	"github.com/leapstack-labs/omniquery/internal/tenant"
	"github.com/leapstack-labs/omniquery/internal/testutil"
)

func issuesRowset() model.Rowset {
	return model.Rowset{
		Schema: model.Schema{Columns: []model.Column{
			{Name: "id", Type: model.ColumnInt},
			{Name: "title", Type: model.ColumnString},
			{Name: "state", Type: model.ColumnString},
		}},
		Rows: [][]any{
			{int64(1), "fix login bug", "open"},
			{int64(2), "add dark mode", "closed"},
		},
	}
}

func testRegistry() *tenant.Registry {
	reg := tenant.NewRegistry(nil)
	reg.Put("acme", config.TenantConfig{
		Tables: map[string]config.TableBinding{
			"gh.issues": {Source: "github", FetchKey: "issues:acme/widgets"},
		},
	})
	reg.PutSource("github", config.SourceConfig{RateCapacity: 50, RateRefillPerSec: 10})
	return reg
}

func TestOrchestrator_Execute_EndToEnd(t *testing.T) {
	orch, err := New(Config{Registry: testRegistry(), Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	defer orch.Close()

	conn := fixture.New()
	conn.Seed("issues:acme/widgets", issuesRowset())
	orch.RegisterConnector("github", conn)

	resp, err := orch.Execute(context.Background(), Request{
		TenantID:  "acme",
		Principal: model.Principal{TenantID: "acme", UserID: "u1"},
		SQL:       `SELECT title, state FROM gh.issues AS i WHERE i.state = 'open'`,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "state"}, resp.Columns)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "fix login bug", resp.Rows[0][0])
	assert.NotEmpty(t, resp.TraceID)
	assert.GreaterOrEqual(t, resp.Timing.TotalMS, int64(0))
}

func TestOrchestrator_Execute_UnknownTenantFails(t *testing.T) {
	orch, err := New(Config{Registry: testRegistry()})
	require.NoError(t, err)
	defer orch.Close()

	_, err = orch.Execute(context.Background(), Request{
		TenantID: "nope",
		SQL:      `SELECT 1 FROM gh.issues`,
	})
	require.Error(t, err)
}

func TestOrchestrator_Execute_PlanFailureSurfacesTypedError(t *testing.T) {
	orch, err := New(Config{Registry: testRegistry()})
	require.NoError(t, err)
	defer orch.Close()

	_, err = orch.Execute(context.Background(), Request{
		TenantID: "acme",
		SQL:      `WITH x AS (SELECT 1) SELECT * FROM x`,
	})
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodePlanFailed, ae.Code)
}
