package pivot

import (
	"fmt"
	"strings"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/crosstab-lab/crosstab/internal/engine"
)

// defaultCountAlias names the implicit count(*) measure used when a
// column pivot is requested without any values.
const defaultCountAlias = "Count"

// aggregateFuncs maps aggregation kinds to their single-token SQL
// functions. countDistinct is the one two-token form, handled inline.
var aggregateFuncs = map[v1.Aggregation]string{
	v1.AggSum:   "SUM",
	v1.AggCount: "COUNT",
	v1.AggAvg:   "AVG",
	v1.AggMin:   "MIN",
	v1.AggMax:   "MAX",
}

// compiledQuery is an executable query plus its bound parameters.
type compiledQuery struct {
	SQL  string
	Args []interface{}

	// MeasureAliases are the output column names of the aggregated
	// measures, in declaration order.
	MeasureAliases []string

	// RowLimited reports whether maxRows was enforced with LIMIT at the
	// query layer. Under a column pivot the row cap moves to the
	// materializer, since leaf-grain LIMIT would truncate an
	// unpredictable subset of display rows.
	RowLimited bool
}

// compileQuery composes base relation, AND-joined filter predicate,
// grouping/aggregation fragment, deterministic ordering and row cap
// into one executable query.
//
// The pivot spread itself happens post-execution in the materializer:
// the compiled query always returns leaf-grain groups
// (rowFields x columnFields), which subtotals, expansion state and
// drill-through all require.
func compileQuery(dataset string, cfg v1.PivotConfiguration) (*compiledQuery, error) {
	params := &paramList{}

	where, err := compileFilters(cfg.Filters, params)
	if err != nil {
		return nil, err
	}

	relation := engine.QuoteIdent(dataset)

	// Raw preview: no measures and no column pivot.
	if len(cfg.Values) == 0 && len(cfg.ColumnFields) == 0 {
		return compileProjection(relation, cfg, where, params)
	}

	groupFields := make([]v1.Field, 0, len(cfg.RowFields)+len(cfg.ColumnFields))
	groupFields = append(groupFields, cfg.RowFields...)
	groupFields = append(groupFields, cfg.ColumnFields...)

	aliases, err := measureAliases(cfg.Values)
	if err != nil {
		return nil, err
	}

	selectParts := make([]string, 0, len(groupFields)+len(cfg.Values))
	for _, f := range groupFields {
		selectParts = append(selectParts, engine.QuoteIdent(f.ID))
	}

	if len(cfg.Values) == 0 {
		// Column pivot without measures defaults to a row count.
		aliases = []string{defaultCountAlias}
		selectParts = append(selectParts, fmt.Sprintf("COUNT(*) AS %s", engine.QuoteIdent(defaultCountAlias)))
	} else {
		for i, vf := range cfg.Values {
			selectParts = append(selectParts, fmt.Sprintf("%s AS %s",
				aggregateExpr(vf), engine.QuoteIdent(aliases[i])))
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectParts, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(relation)

	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	if len(groupFields) > 0 {
		keys := make([]string, len(groupFields))
		ordering := make([]string, len(groupFields))
		for i, f := range groupFields {
			keys[i] = engine.QuoteIdent(f.ID)
			// NULLS LAST keeps null group keys as their own trailing
			// group on every supported engine.
			ordering[i] = engine.QuoteIdent(f.ID) + " NULLS LAST"
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(keys, ", "))
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(ordering, ", "))
	}

	rowLimited := false
	if cfg.MaxRows > 0 && len(cfg.ColumnFields) == 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", cfg.MaxRows))
		rowLimited = true
	}

	return &compiledQuery{
		SQL:            sb.String(),
		Args:           params.args,
		MeasureAliases: aliases,
		RowLimited:     rowLimited,
	}, nil
}

// compileProjection emits the unaggregated pass-through used for raw
// previews: row fields if any were named, else every column.
func compileProjection(relation string, cfg v1.PivotConfiguration, where string, params *paramList) (*compiledQuery, error) {
	selectList := "*"
	if len(cfg.RowFields) > 0 {
		cols := make([]string, len(cfg.RowFields))
		for i, f := range cfg.RowFields {
			cols[i] = engine.QuoteIdent(f.ID)
		}
		selectList = strings.Join(cols, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectList)
	sb.WriteString(" FROM ")
	sb.WriteString(relation)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	rowLimited := false
	if cfg.MaxRows > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", cfg.MaxRows))
		rowLimited = true
	}

	return &compiledQuery{
		SQL:        sb.String(),
		Args:       params.args,
		RowLimited: rowLimited,
	}, nil
}

// aggregateExpr renders the aggregation call for one measure.
func aggregateExpr(vf v1.ValueField) string {
	col := engine.QuoteIdent(vf.Field.ID)
	if vf.Aggregation == v1.AggCountDistinct {
		return fmt.Sprintf("COUNT(DISTINCT %s)", col)
	}
	fn, ok := aggregateFuncs[vf.Aggregation]
	if !ok {
		fn = "COUNT"
	}
	return fmt.Sprintf("%s(%s)", fn, col)
}

// measureAliases resolves the output column name of each measure:
// the display override if present, else the field's display name.
// Collisions get a deterministic field-id suffix; an unresolved
// collision is a compiler invariant violation.
func measureAliases(values []v1.ValueField) ([]string, error) {
	aliases := make([]string, len(values))
	seen := make(map[string]bool, len(values))

	for i, vf := range values {
		alias := vf.DisplayName
		if alias == "" {
			alias = vf.Field.DisplayName
		}
		if alias == "" {
			alias = vf.Field.ID
		}

		if seen[alias] {
			alias = fmt.Sprintf("%s (%s)", alias, vf.Field.ID)
		}
		if seen[alias] {
			return nil, fmt.Errorf("%w: duplicate measure alias %q", ErrQueryCompilation, alias)
		}

		seen[alias] = true
		aliases[i] = alias
	}

	return aliases, nil
}
