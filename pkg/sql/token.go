package sql

import "fmt"

// TokenType identifies the lexical class of a Token.
type TokenType int

// Token types produced by the lexer and consumed by the parser.
const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	TOKEN_IDENT
	TOKEN_NUMBER
	TOKEN_STRING

	// Punctuation
	TOKEN_COMMA
	TOKEN_DOT
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_STAR

	// Operators
	TOKEN_PLUS
	TOKEN_MINUS
	TOKEN_SLASH
	TOKEN_PERCENT
	TOKEN_CONCAT // ||
	TOKEN_EQ
	TOKEN_NEQ
	TOKEN_LT
	TOKEN_LE
	TOKEN_GT
	TOKEN_GE

	// Keywords — statement structure
	TOKEN_WITH
	TOKEN_RECURSIVE
	TOKEN_SELECT
	TOKEN_DISTINCT
	TOKEN_ALL
	TOKEN_AS
	TOKEN_FROM
	TOKEN_WHERE
	TOKEN_GROUP
	TOKEN_BY
	TOKEN_HAVING
	TOKEN_QUALIFY
	TOKEN_ORDER
	TOKEN_ASC
	TOKEN_DESC
	TOKEN_NULLS
	TOKEN_FIRST
	TOKEN_LAST
	TOKEN_LIMIT
	TOKEN_OFFSET
	TOKEN_UNION
	TOKEN_INTERSECT
	TOKEN_EXCEPT

	// Keywords — FROM/JOIN
	TOKEN_LATERAL
	TOKEN_JOIN
	TOKEN_INNER
	TOKEN_LEFT
	TOKEN_RIGHT
	TOKEN_FULL
	TOKEN_CROSS
	TOKEN_OUTER
	TOKEN_ON

	// Keywords — expressions
	TOKEN_AND
	TOKEN_OR
	TOKEN_NOT
	TOKEN_IN
	TOKEN_BETWEEN
	TOKEN_LIKE
	TOKEN_ILIKE
	TOKEN_IS
	TOKEN_NULL
	TOKEN_TRUE
	TOKEN_FALSE
	TOKEN_EXISTS
	TOKEN_CASE
	TOKEN_WHEN
	TOKEN_THEN
	TOKEN_ELSE
	TOKEN_END
	TOKEN_CAST

	// Keywords — window functions
	TOKEN_OVER
	TOKEN_PARTITION
	TOKEN_FILTER
	TOKEN_ROWS
	TOKEN_RANGE
	TOKEN_GROUPS
	TOKEN_PRECEDING
	TOKEN_FOLLOWING
	TOKEN_UNBOUNDED
	TOKEN_CURRENT
	TOKEN_ROW
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:   "ILLEGAL",
	TOKEN_EOF:       "EOF",
	TOKEN_IDENT:     "IDENT",
	TOKEN_NUMBER:    "NUMBER",
	TOKEN_STRING:    "STRING",
	TOKEN_COMMA:     ",",
	TOKEN_DOT:       ".",
	TOKEN_LPAREN:    "(",
	TOKEN_RPAREN:    ")",
	TOKEN_STAR:      "*",
	TOKEN_PLUS:      "+",
	TOKEN_MINUS:     "-",
	TOKEN_SLASH:     "/",
	TOKEN_PERCENT:   "%",
	TOKEN_CONCAT:    "||",
	TOKEN_EQ:        "=",
	TOKEN_NEQ:       "!=",
	TOKEN_LT:        "<",
	TOKEN_LE:        "<=",
	TOKEN_GT:        ">",
	TOKEN_GE:        ">=",
	TOKEN_WITH:      "WITH",
	TOKEN_RECURSIVE: "RECURSIVE",
	TOKEN_SELECT:    "SELECT",
	TOKEN_DISTINCT:  "DISTINCT",
	TOKEN_ALL:       "ALL",
	TOKEN_AS:        "AS",
	TOKEN_FROM:      "FROM",
	TOKEN_WHERE:     "WHERE",
	TOKEN_GROUP:     "GROUP",
	TOKEN_BY:        "BY",
	TOKEN_HAVING:    "HAVING",
	TOKEN_QUALIFY:   "QUALIFY",
	TOKEN_ORDER:     "ORDER",
	TOKEN_ASC:       "ASC",
	TOKEN_DESC:      "DESC",
	TOKEN_NULLS:     "NULLS",
	TOKEN_FIRST:     "FIRST",
	TOKEN_LAST:      "LAST",
	TOKEN_LIMIT:     "LIMIT",
	TOKEN_OFFSET:    "OFFSET",
	TOKEN_UNION:     "UNION",
	TOKEN_INTERSECT: "INTERSECT",
	TOKEN_EXCEPT:    "EXCEPT",
	TOKEN_LATERAL:   "LATERAL",
	TOKEN_JOIN:      "JOIN",
	TOKEN_INNER:     "INNER",
	TOKEN_LEFT:      "LEFT",
	TOKEN_RIGHT:     "RIGHT",
	TOKEN_FULL:      "FULL",
	TOKEN_CROSS:     "CROSS",
	TOKEN_OUTER:     "OUTER",
	TOKEN_ON:        "ON",
	TOKEN_AND:       "AND",
	TOKEN_OR:        "OR",
	TOKEN_NOT:       "NOT",
	TOKEN_IN:        "IN",
	TOKEN_BETWEEN:   "BETWEEN",
	TOKEN_LIKE:      "LIKE",
	TOKEN_ILIKE:     "ILIKE",
	TOKEN_IS:        "IS",
	TOKEN_NULL:      "NULL",
	TOKEN_TRUE:      "TRUE",
	TOKEN_FALSE:     "FALSE",
	TOKEN_EXISTS:    "EXISTS",
	TOKEN_CASE:      "CASE",
	TOKEN_WHEN:      "WHEN",
	TOKEN_THEN:      "THEN",
	TOKEN_ELSE:      "ELSE",
	TOKEN_END:       "END",
	TOKEN_CAST:      "CAST",
	TOKEN_OVER:      "OVER",
	TOKEN_PARTITION: "PARTITION",
	TOKEN_FILTER:    "FILTER",
	TOKEN_ROWS:      "ROWS",
	TOKEN_RANGE:     "RANGE",
	TOKEN_GROUPS:    "GROUPS",
	TOKEN_PRECEDING: "PRECEDING",
	TOKEN_FOLLOWING: "FOLLOWING",
	TOKEN_UNBOUNDED: "UNBOUNDED",
	TOKEN_CURRENT:   "CURRENT",
	TOKEN_ROW:       "ROW",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", int(t))
}

// keywords maps the upper-cased spelling of a keyword to its token type.
// Anything not present here lexes as TOKEN_IDENT.
var keywords = map[string]TokenType{
	"WITH":      TOKEN_WITH,
	"RECURSIVE": TOKEN_RECURSIVE,
	"SELECT":    TOKEN_SELECT,
	"DISTINCT":  TOKEN_DISTINCT,
	"ALL":       TOKEN_ALL,
	"AS":        TOKEN_AS,
	"FROM":      TOKEN_FROM,
	"WHERE":     TOKEN_WHERE,
	"GROUP":     TOKEN_GROUP,
	"BY":        TOKEN_BY,
	"HAVING":    TOKEN_HAVING,
	"QUALIFY":   TOKEN_QUALIFY,
	"ORDER":     TOKEN_ORDER,
	"ASC":       TOKEN_ASC,
	"DESC":      TOKEN_DESC,
	"NULLS":     TOKEN_NULLS,
	"FIRST":     TOKEN_FIRST,
	"LAST":      TOKEN_LAST,
	"LIMIT":     TOKEN_LIMIT,
	"OFFSET":    TOKEN_OFFSET,
	"UNION":     TOKEN_UNION,
	"INTERSECT": TOKEN_INTERSECT,
	"EXCEPT":    TOKEN_EXCEPT,
	"LATERAL":   TOKEN_LATERAL,
	"JOIN":      TOKEN_JOIN,
	"INNER":     TOKEN_INNER,
	"LEFT":      TOKEN_LEFT,
	"RIGHT":     TOKEN_RIGHT,
	"FULL":      TOKEN_FULL,
	"CROSS":     TOKEN_CROSS,
	"OUTER":     TOKEN_OUTER,
	"ON":        TOKEN_ON,
	"AND":       TOKEN_AND,
	"OR":        TOKEN_OR,
	"NOT":       TOKEN_NOT,
	"IN":        TOKEN_IN,
	"BETWEEN":   TOKEN_BETWEEN,
	"LIKE":      TOKEN_LIKE,
	"ILIKE":     TOKEN_ILIKE,
	"IS":        TOKEN_IS,
	"NULL":      TOKEN_NULL,
	"TRUE":      TOKEN_TRUE,
	"FALSE":     TOKEN_FALSE,
	"EXISTS":    TOKEN_EXISTS,
	"CASE":      TOKEN_CASE,
	"WHEN":      TOKEN_WHEN,
	"THEN":      TOKEN_THEN,
	"ELSE":      TOKEN_ELSE,
	"END":       TOKEN_END,
	"CAST":      TOKEN_CAST,
	"OVER":      TOKEN_OVER,
	"PARTITION": TOKEN_PARTITION,
	"FILTER":    TOKEN_FILTER,
	"ROWS":      TOKEN_ROWS,
	"RANGE":     TOKEN_RANGE,
	"GROUPS":    TOKEN_GROUPS,
	"PRECEDING": TOKEN_PRECEDING,
	"FOLLOWING": TOKEN_FOLLOWING,
	"UNBOUNDED": TOKEN_UNBOUNDED,
	"CURRENT":   TOKEN_CURRENT,
	"ROW":       TOKEN_ROW,
}

// clauseKeywords are keywords that can start a new clause and therefore can
// never be mistaken for a bare (AS-less) alias.
var clauseKeywords = map[TokenType]bool{
	TOKEN_WHERE:   true,
	TOKEN_GROUP:   true,
	TOKEN_HAVING:  true,
	TOKEN_QUALIFY: true,
	TOKEN_ORDER:   true,
	TOKEN_LIMIT:   true,
	TOKEN_OFFSET:  true,
	TOKEN_UNION:   true,
	TOKEN_INTERSECT: true,
	TOKEN_EXCEPT:  true,
	TOKEN_ON:      true,
}

// joinKeywords are keywords that introduce a join and therefore can never be
// mistaken for a bare table alias.
var joinKeywords = map[TokenType]bool{
	TOKEN_JOIN:  true,
	TOKEN_INNER: true,
	TOKEN_LEFT:  true,
	TOKEN_RIGHT: true,
	TOKEN_FULL:  true,
	TOKEN_CROSS: true,
}

// Position marks a location in the source text.
type Position struct {
	Line   int
	Column int
	Offset int
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}
