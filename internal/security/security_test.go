package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/omniquery/internal/config"
	"github.com/leapstack-labs/omniquery/internal/model"
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

func TestApplyRLS_NoMatchingRulesReturnsRowsetUnchanged(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	out, err := f.ApplyRLS(issuesRowset(), "github", model.Principal{}, nil)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 2)
}

func TestApplyRLS_KeepsOnlyMatchingRows(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.RLSRule{
		{Source: "github", Expression: `row.assignee_email == principal.user_id + "@acme.com"`},
	}
	out, err := f.ApplyRLS(issuesRowset(), "github", model.Principal{UserID: "alice"}, rules)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "alice@acme.com", out.Rows[0][2])
}

func TestApplyRLS_IgnoresRulesScopedToOtherSources(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.RLSRule{
		{Source: "jira", Expression: `false`},
	}
	out, err := f.ApplyRLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 2)
}

func TestApplyRLS_FailsClosedOnUncompilableExpression(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.RLSRule{
		{Source: "github", Expression: `row.assignee_email ===`},
	}
	_, err = f.ApplyRLS(issuesRowset(), "github", model.Principal{}, rules)
	require.Error(t, err)
}

func TestApplyRLS_FailsClosedWhenExpressionReferencesMissingField(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.RLSRule{
		{Source: "github", Expression: `row.nonexistent_field == "x"`},
	}
	out, err := f.ApplyRLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)
	assert.Empty(t, out.Rows)
}

func TestApplyCLS_HashMasksValueDeterministically(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSHash},
	}
	out, err := f.ApplyCLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)
	require.Len(t, out.Schema.Columns, 3)

	masked := out.Rows[0][2].(string)
	assert.Contains(t, masked, "****@ema.co")
	assert.NotContains(t, masked, "alice@acme.com")

	again, err := f.ApplyCLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)
	assert.Equal(t, masked, again.Rows[0][2], "hashing the same value twice must be deterministic")
}

func TestApplyCLS_HashHonorsCustomPrefixLenAndSuffixLiteral(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSHash, PrefixLen: 4, SuffixLiteral: "@redacted"},
	}
	out, err := f.ApplyCLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)

	masked := out.Rows[0][2].(string)
	assert.Equal(t, 4+len("@redacted"), len(masked))
	assert.Contains(t, masked, "@redacted")
	assert.NotContains(t, masked, "****@ema.co")
}

func TestApplyCLS_RedactReplacesWithSentinel(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSRedact},
	}
	out, err := f.ApplyCLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)
	for _, row := range out.Rows {
		assert.Equal(t, "REDACTED", row[2])
	}
}

func TestApplyCLS_BlockRemovesColumnFromSchemaAndRows(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSBlock},
	}
	out, err := f.ApplyCLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)
	require.Len(t, out.Schema.Columns, 2)
	for _, c := range out.Schema.Columns {
		assert.NotEqual(t, "assignee_email", c.Name)
	}
	for _, row := range out.Rows {
		assert.Len(t, row, 2)
	}
}

func TestApplyCLS_ConditionGatesTheAction(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.CLSRule{
		{Source: "github", Column: "assignee_email", Action: config.CLSRedact, Condition: `principal.user_id != "admin"`},
	}

	out, err := f.ApplyCLS(issuesRowset(), "github", model.Principal{UserID: "admin"}, rules)
	require.NoError(t, err)
	assert.Equal(t, "alice@acme.com", out.Rows[0][2])

	out, err = f.ApplyCLS(issuesRowset(), "github", model.Principal{UserID: "someone-else"}, rules)
	require.NoError(t, err)
	assert.Equal(t, "REDACTED", out.Rows[0][2])
}

func TestApplyCLS_IgnoresRulesScopedToOtherSources(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.CLSRule{
		{Source: "jira", Column: "assignee_email", Action: config.CLSBlock},
	}
	out, err := f.ApplyCLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)
	assert.Len(t, out.Schema.Columns, 3)
}

func TestApplyCLS_UnknownColumnNameIsANoOp(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	rules := []config.CLSRule{
		{Source: "github", Column: "does_not_exist", Action: config.CLSBlock},
	}
	out, err := f.ApplyCLS(issuesRowset(), "github", model.Principal{}, rules)
	require.NoError(t, err)
	assert.Len(t, out.Schema.Columns, 3)
}
