package sql

import "fmt"

// ParseError is a syntax error discovered while parsing, tagged with the
// source position it occurred at.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Message templates for common parse failures.
const (
	ErrScalarSubquery = "scalar subquery not allowed in select list"
)
