// Package model holds the data types shared across OmniQuery's pipeline
// stages: the Principal, Schema, Predicate, FetchNode, and Rowset types the
// spec's data model names. Kept as plain structs with sum-type-shaped enums
// (ColumnType, PredicateOp) rather than dicts or string dispatch, per the
// spec's design notes on replacing the Python prototype's dynamic typing.
package model

import "time"

// Principal identifies the caller a query executes on behalf of: the
// tenant plus whatever attributes row/column security rules evaluate
// against (role, team, region, ...).
type Principal struct {
	TenantID   string
	UserID     string
	Attributes map[string]any
}

// Column describes one column of a table's schema.
type Column struct {
	Name string
	Type ColumnType
}

// ColumnType is the small set of scalar types a rowset column can hold.
type ColumnType string

// Column types.
const (
	ColumnString  ColumnType = "STRING"
	ColumnInt     ColumnType = "INT"
	ColumnFloat   ColumnType = "FLOAT"
	ColumnBool    ColumnType = "BOOL"
	ColumnTime    ColumnType = "TIMESTAMP"
)

// Schema is the ordered column list shared by every row of a Rowset.
type Schema struct {
	Columns []Column
}

// IndexOf returns the position of a column name in the schema, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Rowset is a fetched (and, later, secured) table: a shared Schema plus a
// slice of rows, each row a slice of values aligned to Schema.Columns. This
// mirrors the teacher's struct-of-columns style over the Python prototype's
// list-of-dicts — every row is guaranteed to match the schema, there is no
// per-row key set to drift.
type Rowset struct {
	Schema    Schema
	Rows      [][]any
	FromCache bool
	FetchedAt time.Time
}

// PredicateOp is the small, closed set of comparison operators the SQL
// Analyzer can classify as pushable.
type PredicateOp string

// Predicate operators.
const (
	OpEq  PredicateOp = "="
	OpNeq PredicateOp = "!="
	OpLt  PredicateOp = "<"
	OpLte PredicateOp = "<="
	OpGt  PredicateOp = ">"
	OpGte PredicateOp = ">="
	OpIn  PredicateOp = "IN"
)

// Predicate is a single WHERE-clause comparison the analyzer has matched to
// exactly one source alias.
type Predicate struct {
	Column string
	Op     PredicateOp
	Value  any   // scalar value; used when Op != OpIn
	Values []any // used when Op == OpIn
}

// FetchNode is one source binding the planner derived from a query's FROM
// clause: which table to fetch, which predicates can be pushed to it, and
// which columns the residual SQL actually needs.
type FetchNode struct {
	ID                string
	Alias             string
	SourceID          string
	FetchKey          string
	PushedPredicates  []Predicate
	ProjectedColumns  []string // empty means "all columns"
	Wave              int
}

// CacheKey identifies this node's fetch for freshness-cache lookups. It
// derives the filter map from PushedPredicates itself, keyed by column and
// operator (cache.Key expects a plain map so pushdown predicates of
// different shapes hash identically regardless of planner internals).
func (n FetchNode) CacheKey() map[string]any {
	m := make(map[string]any, len(n.PushedPredicates))
	for _, p := range n.PushedPredicates {
		if p.Op == OpIn {
			m[string(p.Column)+" IN"] = p.Values
		} else {
			m[n.predicateKey(p)] = p.Value
		}
	}
	return m
}

func (n FetchNode) predicateKey(p Predicate) string {
	return p.Column + " " + string(p.Op)
}

// RateState exposes a rate bucket's live state for diagnostics and the
// spec's property tests.
type RateState struct {
	Tokens   float64
	Capacity float64
}
