// Package sql provides a lexer, recursive-descent parser, and AST for the
// single fixed SQL grammar OmniQuery accepts: SELECT statements with CTEs,
// joins, set operations, window functions, and the usual scalar expression
// forms. There is no dialect abstraction and no catalog — OmniQuery parses
// one grammar against one execution engine (DuckDB), so the pluggable
// multi-dialect machinery a general-purpose SQL toolkit would carry has no
// home here.
//
// # Basic usage
//
//	stmt, errs := sql.Parse("SELECT id, name FROM users WHERE active = true")
//	if len(errs) > 0 {
//	    // report errs
//	}
//	// walk stmt.Body.Left.{Columns,From,Where,...}
package sql
