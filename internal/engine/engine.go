package engine

import (
	"context"
	"strings"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
)

// ResultSet is a flat, ordered query result: one label per output column
// and one typed value per cell.
type ResultSet struct {
	Columns []string
	Rows    [][]v1.Value
}

// Executor runs compiled queries against the columnar engine.
// Implementations must bind args positionally ($1, $2, ...).
type Executor interface {
	Query(ctx context.Context, query string, args []interface{}) (*ResultSet, error)
	Ping(ctx context.Context) error
}

// QuoteIdent quotes an identifier for inclusion in query text.
// Embedded double quotes are doubled per SQL quoting rules; this is the
// only way identifiers ever reach the query string.
func QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
