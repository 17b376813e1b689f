package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_AllowN_RefillsOverTime(t *testing.T) {
	b := NewBucket(10, 1.0)
	base := time.Now()

	ok, retryAfterMS := b.AllowN(10, base)
	require.True(t, ok)
	assert.Zero(t, retryAfterMS)

	ok, retryAfterMS = b.AllowN(1, base)
	require.False(t, ok)
	assert.Greater(t, retryAfterMS, int64(0))

	ok, _ = b.AllowN(1, base.Add(2*time.Second))
	assert.True(t, ok)
}

func TestBucket_Status_ReportsLiveTokens(t *testing.T) {
	b := NewBucket(5, 2.0)
	b.AllowN(5, time.Now())

	st := b.Status()
	assert.Equal(t, 5.0, st.Capacity)
	assert.InDelta(t, 0.0, st.Tokens, 0.5)
}

func TestBucket_AllowN_NeverExceedsCapacity(t *testing.T) {
	b := NewBucket(3, 100.0)
	base := time.Now()

	ok, _ := b.AllowN(1, base.Add(time.Hour))
	require.True(t, ok)
	assert.LessOrEqual(t, b.Status().Tokens, 3.0)
}

func TestGovernor_BucketShapeFixedAtFirstUse(t *testing.T) {
	g := New(1, 1.0)

	b1 := g.Bucket("tenant-a", "github", 20, 5.0)
	assert.Equal(t, 20.0, b1.Status().Capacity)

	b2 := g.Bucket("tenant-a", "github", 999, 999.0)
	assert.Same(t, b1, b2)
	assert.Equal(t, 20.0, b2.Status().Capacity)
}

func TestGovernor_Admit_RejectsWhenExhausted(t *testing.T) {
	g := New(1, 0.001)

	err := g.Admit("tenant-a", "jira", 1, 0.001)
	require.NoError(t, err)

	err = g.Admit("tenant-a", "jira", 1, 0.001)
	require.Error(t, err)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "jira", rle.Source)
	assert.Greater(t, rle.RetryAfterMS, int64(0))
}

func TestGovernor_Admit_IsolatedPerTenantAndSource(t *testing.T) {
	g := New(1, 0.001)

	require.NoError(t, g.Admit("tenant-a", "jira", 1, 0.001))
	require.NoError(t, g.Admit("tenant-b", "jira", 1, 0.001))
	require.NoError(t, g.Admit("tenant-a", "github", 1, 0.001))
}
