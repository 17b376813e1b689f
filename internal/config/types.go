// Package config loads the tenant/source manifest that tells OmniQuery which
// SaaS sources exist, which connector backs each one, and which row/column
// security rules apply per tenant.
package config

// Manifest is the root configuration document: one or more tenants, each
// with its own table registry and security rules.
type Manifest struct {
	Defaults Defaults                `koanf:"defaults"`
	Sources  map[string]SourceConfig `koanf:"sources"`
	Tenants  map[string]TenantConfig `koanf:"tenants"`
}

// Defaults holds process-wide defaults applied when a tenant or query
// doesn't override them.
type Defaults struct {
	QueryDeadlineMS  int64 `koanf:"query_deadline_ms"`
	MaxParallelism   int   `koanf:"max_parallelism"`
	CacheTTLMS       int64 `koanf:"cache_ttl_ms"`
	CacheMaxEntries  int   `koanf:"cache_max_entries"`
	RateCapacity     int   `koanf:"rate_capacity"`
	RateRefillPerSec float64 `koanf:"rate_refill_per_sec"`
}

// SourceConfig describes one connector-backed SaaS source: what kind of
// connector it is and how to reach it.
type SourceConfig struct {
	Connector string            `koanf:"connector"` // "github", "jira", "generic"
	BaseURL   string            `koanf:"base_url"`
	AuthToken string            `koanf:"auth_token"`
	Options   map[string]string `koanf:"options"`

	// Endpoints configures a "generic" connector's fetch keys. Ignored by
	// every other connector kind.
	Endpoints map[string]GenericEndpoint `koanf:"endpoints"`

	// RateCapacity/RateRefillPerSec override Defaults for this source, 0
	// means "use the default".
	RateCapacity     int     `koanf:"rate_capacity"`
	RateRefillPerSec float64 `koanf:"rate_refill_per_sec"`
}

// GenericFieldMapping maps one JSON response field to a typed output column
// for a "generic" connector endpoint.
type GenericFieldMapping struct {
	JSONField  string `koanf:"json_field"`
	Column     string `koanf:"column"`
	ColumnType string `koanf:"column_type"` // "STRING","INT","FLOAT","BOOL","TIMESTAMP"
}

// GenericEndpoint describes one fetch key served by a "generic" connector.
type GenericEndpoint struct {
	Path           string                 `koanf:"path"`
	ResponseKey    string                 `koanf:"response_key"`
	Fields         []GenericFieldMapping  `koanf:"fields"`
	PushableParams map[string]string      `koanf:"pushable_params"`
}

// TenantConfig aggregates a tenant's table registry and its resolved
// row/column security rule sets.
type TenantConfig struct {
	// Tables maps a SQL table alias (what a query writes in FROM) to the
	// source + fetch key that serves it.
	Tables map[string]TableBinding `koanf:"tables"`

	RLSRules []RLSRule `koanf:"rls_rules"`
	CLSRules []CLSRule `koanf:"cls_rules"`
}

// TableBinding names the source and connector-specific fetch key a table
// alias resolves to.
type TableBinding struct {
	Source   string `koanf:"source"`
	FetchKey string `koanf:"fetch_key"`
}

// RLSRule is a row-level security rule: a CEL boolean expression evaluated
// per row, scoped to one source's tables.
type RLSRule struct {
	Source     string `koanf:"source"`
	Expression string `koanf:"expression"`
}

// CLSRule is a column-level security rule: an action applied to one column
// of one source's tables, gated by an optional CEL condition.
type CLSRule struct {
	Source    string    `koanf:"source"`
	Column    string    `koanf:"column"`
	Action    CLSAction `koanf:"action"`
	Condition string    `koanf:"condition"` // CEL expression; empty means "always"

	// PrefixLen and SuffixLiteral parameterize the HASH action per
	// spec.md §4.6's HASH(prefix_len, suffix_literal) contract. Zero values
	// default to the worked example in §8: an 8-hex-char prefix and the
	// suffix "****@ema.co".
	PrefixLen     int    `koanf:"prefix_len"`
	SuffixLiteral string `koanf:"suffix_literal"`
}

// CLSAction is the column-level security action applied when a CLSRule's
// condition matches.
type CLSAction string

// Column-level security actions.
const (
	CLSHash   CLSAction = "HASH"
	CLSRedact CLSAction = "REDACT"
	CLSBlock  CLSAction = "BLOCK"
)
