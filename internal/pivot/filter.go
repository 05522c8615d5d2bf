package pivot

import (
	"fmt"
	"strings"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/crosstab-lab/crosstab/internal/engine"
)

// paramList accumulates positional bind arguments while compiling.
// Literal values never enter the query text; every literal becomes a
// $N placeholder referencing an entry here.
type paramList struct {
	args []interface{}
}

// add binds one value and returns its placeholder.
func (p *paramList) add(v interface{}) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

// compileFilter emits the predicate fragment for one enabled filter.
// An empty fragment (unknown operator) is silently dropped by the
// caller; unknown operators are rejected during validation, so reaching
// one here is a contract breach upstream, not a compile error.
func compileFilter(f v1.FilterSpec, params *paramList) (string, error) {
	col := engine.QuoteIdent(f.Field.ID)

	switch f.Operator {
	case v1.OpEquals:
		return fmt.Sprintf("%s = %s", col, params.add(f.Value.Scalar.Arg())), nil

	case v1.OpNotEquals:
		return fmt.Sprintf("%s != %s", col, params.add(f.Value.Scalar.Arg())), nil

	case v1.OpContains:
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, col, params.add(likePattern(f.Value.Scalar))), nil

	case v1.OpNotContains:
		return fmt.Sprintf(`%s NOT LIKE %s ESCAPE '\'`, col, params.add(likePattern(f.Value.Scalar))), nil

	case v1.OpGreaterThan:
		return fmt.Sprintf("%s > %s", col, params.add(f.Value.Scalar.Arg())), nil

	case v1.OpLessThan:
		return fmt.Sprintf("%s < %s", col, params.add(f.Value.Scalar.Arg())), nil

	case v1.OpGreaterThanOrEqual:
		return fmt.Sprintf("%s >= %s", col, params.add(f.Value.Scalar.Arg())), nil

	case v1.OpLessThanOrEqual:
		return fmt.Sprintf("%s <= %s", col, params.add(f.Value.Scalar.Arg())), nil

	case v1.OpIn, v1.OpNotIn:
		if !f.Value.IsList() || len(f.Value.List) == 0 {
			return "", fmt.Errorf("%w: operator %q requires a non-empty list for field %q",
				ErrInvalidFilterValue, f.Operator, f.Field.ID)
		}
		placeholders := make([]string, len(f.Value.List))
		for i, v := range f.Value.List {
			placeholders[i] = params.add(v.Arg())
		}
		keyword := "IN"
		if f.Operator == v1.OpNotIn {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, keyword, strings.Join(placeholders, ", ")), nil

	case v1.OpBetween:
		if !f.Value.IsRange() {
			return "", fmt.Errorf("%w: operator %q requires a {min,max} range for field %q",
				ErrInvalidFilterValue, f.Operator, f.Field.ID)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s",
			col,
			params.add(f.Value.Range.Min.Arg()),
			params.add(f.Value.Range.Max.Arg()),
		), nil

	case v1.OpIsEmpty:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", col, col), nil

	case v1.OpIsNotEmpty:
		return fmt.Sprintf("(%s IS NOT NULL AND %s != '')", col, col), nil

	default:
		return "", nil
	}
}

// compileFilters joins all enabled filters into one AND-ed predicate.
// Returns an empty string when nothing compiles.
func compileFilters(filters []v1.FilterSpec, params *paramList) (string, error) {
	var clauses []string
	for _, f := range filters {
		if !f.Enabled {
			continue
		}
		clause, err := compileFilter(f, params)
		if err != nil {
			return "", err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return strings.Join(clauses, " AND "), nil
}

// likePattern builds a substring-match pattern, escaping the LIKE
// metacharacters so user input matches literally.
func likePattern(v v1.Value) string {
	s := v.Str
	if v.Kind != v1.KindString {
		s = formatValue(v, "")
	}
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(s) + "%"
}
