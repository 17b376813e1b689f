package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
defaults:
  max_parallelism: 8
  cache_ttl_ms: 30000
sources:
  github:
    connector: github
    base_url: https://api.github.com
    auth_token: ${GITHUB_TOKEN}
tenants:
  acme:
    tables:
      gh.issues:
        source: github
        fetch_key: "issues:acme/widgets"
    rls_rules:
      - source: github
        expression: "row.state == 'open'"
`

func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestFileName)
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))
	return path
}

func TestLoad_ParsesManifestAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir)

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, m.Defaults.MaxParallelism)
	assert.EqualValues(t, 30000, m.Defaults.CacheTTLMS)
	assert.EqualValues(t, DefaultQueryDeadlineMS, m.Defaults.QueryDeadlineMS, "unset default should be backfilled")

	src, ok := m.Sources["github"]
	require.True(t, ok)
	assert.Equal(t, "github", src.Connector)
	assert.Equal(t, DefaultRateCapacity, src.RateCapacity, "source rate falls back to the manifest default")

	tenant, ok := m.Tenants["acme"]
	require.True(t, ok)
	require.Len(t, tenant.RLSRules, 1)
	assert.Equal(t, "github", tenant.RLSRules[0].Source)
}

func TestLoadFromDir_FindsManifestInDirectory(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	m, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Contains(t, m.Tenants, "acme")
}

func TestLoadFromDir_ReturnsNilWhenNoManifestFound(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestFindProjectRoot_WalksUpward(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root)
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found := FindProjectRoot(nested)
	assert.Equal(t, root, found)
}

func TestFindProjectRoot_ReturnsEmptyWhenNotFound(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, FindProjectRoot(dir))
}
