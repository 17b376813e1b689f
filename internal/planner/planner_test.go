package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/omniquery/internal/analyzer"
	"github.com/leapstack-labs/omniquery/internal/config"
)

func tenantFixture() config.TenantConfig {
	return config.TenantConfig{
		Tables: map[string]config.TableBinding{
			"gh.issues":   {Source: "github", FetchKey: "issues:acme/widgets"},
			"jira.issues": {Source: "jira", FetchKey: "issues"},
		},
	}
}

func TestBuild_OneNodePerTable(t *testing.T) {
	res, err := analyzer.Analyze(`SELECT i.title FROM gh.issues AS i WHERE i.state = 'open'`, tenantFixture())
	require.NoError(t, err)

	plan := Build(res)
	require.Len(t, plan.Nodes, 1)
	node := plan.Nodes[0]
	assert.Equal(t, "i", node.Alias)
	assert.Equal(t, "github", node.SourceID)
	assert.Equal(t, "issues:acme/widgets", node.FetchKey)
	assert.Equal(t, []string{"title", "state"}, node.ProjectedColumns)
	assert.Equal(t, 0, node.Wave)
}

func TestBuild_BareStarProjectsAllColumns(t *testing.T) {
	res, err := analyzer.Analyze(`SELECT * FROM gh.issues AS i`, tenantFixture())
	require.NoError(t, err)

	plan := Build(res)
	require.Len(t, plan.Nodes, 1)
	assert.Nil(t, plan.Nodes[0].ProjectedColumns)
}

func TestBuild_AliasStarProjectsOnlyThatAliasAllColumns(t *testing.T) {
	res, err := analyzer.Analyze(
		`SELECT g.*, j.status FROM gh.issues AS g JOIN jira.issues AS j ON g.title = j.summary`,
		tenantFixture(),
	)
	require.NoError(t, err)

	plan := Build(res)
	require.Len(t, plan.Nodes, 2)

	byAlias := make(map[string][]string)
	for _, n := range plan.Nodes {
		byAlias[n.Alias] = n.ProjectedColumns
	}
	assert.Nil(t, byAlias["g"])
	assert.Equal(t, []string{"status", "summary"}, byAlias["j"])
}

func TestBuild_CarriesPushedPredicatesPerNode(t *testing.T) {
	res, err := analyzer.Analyze(`SELECT * FROM gh.issues AS i WHERE i.state = 'open'`, tenantFixture())
	require.NoError(t, err)

	plan := Build(res)
	require.Len(t, plan.Nodes[0].PushedPredicates, 1)
	assert.Equal(t, "state", plan.Nodes[0].PushedPredicates[0].Column)
}
