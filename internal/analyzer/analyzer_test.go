package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/omniquery/internal/apperr"
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

func TestAnalyze_ResolvesAliasedTable(t *testing.T) {
	res, err := Analyze(`SELECT i.title FROM gh.issues AS i WHERE i.state = 'open'`, tenantFixture())
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "i", res.Tables[0].Alias)
	assert.Equal(t, "gh.issues", res.Tables[0].Table)
	assert.Equal(t, "github", res.Tables[0].Binding.Source)
}

func TestAnalyze_DefaultsAliasToTableName(t *testing.T) {
	res, err := Analyze(`SELECT * FROM gh.issues`, tenantFixture())
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "gh.issues", res.Tables[0].Alias)
}

func TestAnalyze_PushesEqualityPredicateOnKnownAlias(t *testing.T) {
	res, err := Analyze(`SELECT * FROM gh.issues AS i WHERE i.state = 'open' AND i.number > 10`, tenantFixture())
	require.NoError(t, err)

	pushed := res.Pushed["i"]
	require.Len(t, pushed, 2)
	assert.Equal(t, "state", pushed[0].Column)
	assert.Equal(t, "number", pushed[1].Column)
}

func TestAnalyze_PushesInListPredicate(t *testing.T) {
	res, err := Analyze(`SELECT * FROM gh.issues AS i WHERE i.state IN ('open', 'closed')`, tenantFixture())
	require.NoError(t, err)

	pushed := res.Pushed["i"]
	require.Len(t, pushed, 1)
	assert.Equal(t, []any{"open", "closed"}, pushed[0].Values)
}

func TestAnalyze_LeavesOrBranchesUnpushed(t *testing.T) {
	res, err := Analyze(`SELECT * FROM gh.issues AS i WHERE i.state = 'open' OR i.number > 10`, tenantFixture())
	require.NoError(t, err)
	assert.Empty(t, res.Pushed["i"])
}

func TestAnalyze_LeavesCrossColumnComparisonUnpushed(t *testing.T) {
	res, err := Analyze(`SELECT * FROM gh.issues AS i WHERE i.state = i.user_login`, tenantFixture())
	require.NoError(t, err)
	assert.Empty(t, res.Pushed["i"])
}

func TestAnalyze_RejectsUnknownTable(t *testing.T) {
	_, err := Analyze(`SELECT * FROM not.registered`, tenantFixture())
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodePlanFailed, ae.Code)
}

func TestAnalyze_RejectsUnresolvedQualifierInWhere(t *testing.T) {
	_, err := Analyze(`SELECT * FROM gh.issues AS i WHERE bogus.col = 1`, tenantFixture())
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodePlanFailed, ae.Code)
}

func TestAnalyze_RejectsUnresolvedQualifierInWhereIn(t *testing.T) {
	_, err := Analyze(`SELECT * FROM gh.issues AS i WHERE bogus.state IN ('open', 'closed')`, tenantFixture())
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodePlanFailed, ae.Code)
}

func TestAnalyze_RejectsCTE(t *testing.T) {
	_, err := Analyze(`WITH x AS (SELECT 1) SELECT * FROM gh.issues`, tenantFixture())
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodePlanFailed, ae.Code)
}

func TestAnalyze_RejectsSetOperations(t *testing.T) {
	_, err := Analyze(`SELECT * FROM gh.issues UNION SELECT * FROM gh.issues`, tenantFixture())
	require.Error(t, err)
}

func TestAnalyze_RejectsDerivedTable(t *testing.T) {
	_, err := Analyze(`SELECT * FROM (SELECT 1 AS x) AS d`, tenantFixture())
	require.Error(t, err)
}

func TestAnalyze_ResolvesMultipleJoinedAliases(t *testing.T) {
	res, err := Analyze(
		`SELECT * FROM gh.issues AS g JOIN jira.issues AS j ON g.title = j.summary`,
		tenantFixture(),
	)
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	assert.Equal(t, "g", res.Tables[0].Alias)
	assert.Equal(t, "j", res.Tables[1].Alias)
}
