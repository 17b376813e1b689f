// Package planner implements the Fetch Planner: turns the SQL Analyzer's
// resolved table references and pushed predicates into a concrete Plan of
// FetchNodes, one per FROM/JOIN binding. The base design always puts every
// node in a single wave — no node depends on another's result, since
// cross-source joins are always fetched independently and joined by the
// analytical runtime.
package planner

import (
	"fmt"

	"github.com/leapstack-labs/omniquery/internal/analyzer"
	"github.com/leapstack-labs/omniquery/internal/model"
	"github.com/leapstack-labs/omniquery/pkg/sql"
)

// Plan is the ordered set of fetches a query requires.
type Plan struct {
	Nodes []model.FetchNode
}

// Build derives a Plan from an analyzer.Result.
func Build(res *analyzer.Result) Plan {
	colsByAlias := collectColumns(res.Stmt, res.Tables)

	plan := Plan{Nodes: make([]model.FetchNode, 0, len(res.Tables))}
	for i, t := range res.Tables {
		plan.Nodes = append(plan.Nodes, model.FetchNode{
			ID:               fmt.Sprintf("node_%d_%s", i, t.Alias),
			Alias:            t.Alias,
			SourceID:         t.Binding.Source,
			FetchKey:         t.Binding.FetchKey,
			PushedPredicates: res.Pushed[t.Alias],
			ProjectedColumns: colsByAlias[t.Alias],
			Wave:             0,
		})
	}
	return plan
}

// collectColumns finds every alias.column reference anywhere in the
// statement and unions them per alias, in order of first reference, so
// connectors can be asked to project only the columns the query actually
// needs. An alias that the query ever references with SELECT * or alias.*
// gets nil (meaning "all columns") — pruning would risk dropping a column
// the residual SQL needs.
func collectColumns(stmt *sql.SelectStmt, tables []analyzer.TableRef) map[string][]string {
	seen := make(map[string]map[string]bool)
	order := make(map[string][]string)
	starAll := make(map[string]bool)
	anyBareStar := false

	add := func(alias, col string) {
		if seen[alias] == nil {
			seen[alias] = make(map[string]bool)
		}
		if !seen[alias][col] {
			seen[alias][col] = true
			order[alias] = append(order[alias], col)
		}
	}

	core := stmt.Body.Left
	for _, item := range core.Columns {
		if item.Star {
			anyBareStar = true
			continue
		}
		if item.TableStar != "" {
			starAll[item.TableStar] = true
			continue
		}
		walkExpr(item.Expr, add)
	}
	if core.From != nil {
		for _, j := range core.From.Joins {
			if j.Condition != nil {
				walkExpr(j.Condition, add)
			}
		}
	}
	if core.Where != nil {
		walkExpr(core.Where, add)
	}
	for _, e := range core.GroupBy {
		walkExpr(e, add)
	}
	if core.Having != nil {
		walkExpr(core.Having, add)
	}
	for _, o := range core.OrderBy {
		walkExpr(o.Expr, add)
	}

	out := make(map[string][]string, len(tables))
	for _, t := range tables {
		if anyBareStar || starAll[t.Alias] {
			out[t.Alias] = nil
			continue
		}
		cols := order[t.Alias]
		if len(cols) == 0 {
			out[t.Alias] = nil
			continue
		}
		out[t.Alias] = cols
	}
	return out
}

func walkExpr(e sql.Expr, add func(alias, col string)) {
	switch v := e.(type) {
	case *sql.ColumnRef:
		if v.Table != "" {
			add(v.Table, v.Column)
		}
	case *sql.BinaryExpr:
		walkExpr(v.Left, add)
		walkExpr(v.Right, add)
	case *sql.UnaryExpr:
		walkExpr(v.Expr, add)
	case *sql.FuncCall:
		for _, a := range v.Args {
			walkExpr(a, add)
		}
		if v.Filter != nil {
			walkExpr(v.Filter, add)
		}
		if v.Window != nil {
			for _, p := range v.Window.PartitionBy {
				walkExpr(p, add)
			}
			for _, o := range v.Window.OrderBy {
				walkExpr(o.Expr, add)
			}
		}
	case *sql.CaseExpr:
		if v.Operand != nil {
			walkExpr(v.Operand, add)
		}
		for _, w := range v.Whens {
			walkExpr(w.Condition, add)
			walkExpr(w.Result, add)
		}
		if v.Else != nil {
			walkExpr(v.Else, add)
		}
	case *sql.CastExpr:
		walkExpr(v.Expr, add)
	case *sql.InExpr:
		walkExpr(v.Expr, add)
		for _, val := range v.Values {
			walkExpr(val, add)
		}
	case *sql.BetweenExpr:
		walkExpr(v.Expr, add)
		walkExpr(v.Low, add)
		walkExpr(v.High, add)
	case *sql.IsNullExpr:
		walkExpr(v.Expr, add)
	case *sql.LikeExpr:
		walkExpr(v.Expr, add)
		walkExpr(v.Pattern, add)
	case *sql.ParenExpr:
		walkExpr(v.Expr, add)
	}
}
