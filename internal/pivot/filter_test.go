package pivot

import (
	"testing"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCompileFilters_Operators(t *testing.T) {
	region := stringField("region", "Region")
	revenue := numberField("revenue", "Revenue")

	tests := []struct {
		name         string
		filter       v1.FilterSpec
		expectedSQL  string
		expectedArgs []interface{}
	}{
		{
			name: "equals",
			filter: v1.FilterSpec{
				Field:    region,
				Operator: v1.OpEquals,
				Value:    v1.FilterValue{Scalar: v1.String("US")},
				Enabled:  true,
			},
			expectedSQL:  `"region" = $1`,
			expectedArgs: []interface{}{"US"},
		},
		{
			name: "not equals",
			filter: v1.FilterSpec{
				Field:    region,
				Operator: v1.OpNotEquals,
				Value:    v1.FilterValue{Scalar: v1.String("US")},
				Enabled:  true,
			},
			expectedSQL:  `"region" != $1`,
			expectedArgs: []interface{}{"US"},
		},
		{
			name: "greater than",
			filter: v1.FilterSpec{
				Field:    revenue,
				Operator: v1.OpGreaterThan,
				Value:    v1.FilterValue{Scalar: v1.NumberFromInt(100)},
				Enabled:  true,
			},
			expectedSQL:  `"revenue" > $1`,
			expectedArgs: []interface{}{decimal.NewFromInt(100)},
		},
		{
			name: "between binds both inclusive bounds",
			filter: v1.FilterSpec{
				Field:    revenue,
				Operator: v1.OpBetween,
				Value: v1.FilterValue{Range: &v1.ValueRange{
					Min: v1.NumberFromInt(10),
					Max: v1.NumberFromInt(20),
				}},
				Enabled: true,
			},
			expectedSQL:  `"revenue" BETWEEN $1 AND $2`,
			expectedArgs: []interface{}{decimal.NewFromInt(10), decimal.NewFromInt(20)},
		},
		{
			name: "in list",
			filter: v1.FilterSpec{
				Field:    region,
				Operator: v1.OpIn,
				Value:    v1.FilterValue{List: []v1.Value{v1.String("US"), v1.String("EU")}},
				Enabled:  true,
			},
			expectedSQL:  `"region" IN ($1, $2)`,
			expectedArgs: []interface{}{"US", "EU"},
		},
		{
			name: "not in list",
			filter: v1.FilterSpec{
				Field:    region,
				Operator: v1.OpNotIn,
				Value:    v1.FilterValue{List: []v1.Value{v1.String("US")}},
				Enabled:  true,
			},
			expectedSQL:  `"region" NOT IN ($1)`,
			expectedArgs: []interface{}{"US"},
		},
		{
			name: "is empty matches null and empty string",
			filter: v1.FilterSpec{
				Field:    region,
				Operator: v1.OpIsEmpty,
				Enabled:  true,
			},
			expectedSQL: `("region" IS NULL OR "region" = '')`,
		},
		{
			name: "is not empty",
			filter: v1.FilterSpec{
				Field:    region,
				Operator: v1.OpIsNotEmpty,
				Enabled:  true,
			},
			expectedSQL: `("region" IS NOT NULL AND "region" != '')`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := &paramList{}
			clause, err := compileFilters([]v1.FilterSpec{tc.filter}, params)
			require.NoError(t, err)
			require.Equal(t, tc.expectedSQL, clause)
			require.Equal(t, tc.expectedArgs, params.args)
		})
	}
}

func TestCompileFilters_ContainsEscapesLikeMetacharacters(t *testing.T) {
	params := &paramList{}
	clause, err := compileFilters([]v1.FilterSpec{{
		Field:    stringField("sku", "SKU"),
		Operator: v1.OpContains,
		Value:    v1.FilterValue{Scalar: v1.String(`50%_a\`)},
		Enabled:  true,
	}}, params)
	require.NoError(t, err)
	require.Equal(t, `"sku" LIKE $1 ESCAPE '\'`, clause)
	require.Equal(t, []interface{}{`%50\%\_a\\%`}, params.args)
}

func TestCompileFilters_DisabledFiltersAreExcluded(t *testing.T) {
	params := &paramList{}
	clause, err := compileFilters([]v1.FilterSpec{
		{
			Field:    stringField("region", "Region"),
			Operator: v1.OpEquals,
			Value:    v1.FilterValue{Scalar: v1.String("US")},
			Enabled:  false,
		},
		{
			Field:    stringField("channel", "Channel"),
			Operator: v1.OpEquals,
			Value:    v1.FilterValue{Scalar: v1.String("web")},
			Enabled:  true,
		},
	}, params)
	require.NoError(t, err)
	require.Equal(t, `"channel" = $1`, clause)
	require.Equal(t, []interface{}{"web"}, params.args)
}

func TestCompileFilters_MultipleFiltersAreANDJoined(t *testing.T) {
	params := &paramList{}
	clause, err := compileFilters([]v1.FilterSpec{
		{
			Field:    stringField("region", "Region"),
			Operator: v1.OpEquals,
			Value:    v1.FilterValue{Scalar: v1.String("US")},
			Enabled:  true,
		},
		{
			Field:    numberField("revenue", "Revenue"),
			Operator: v1.OpGreaterThanOrEqual,
			Value:    v1.FilterValue{Scalar: v1.NumberFromInt(100)},
			Enabled:  true,
		},
	}, params)
	require.NoError(t, err)
	require.Equal(t, `"region" = $1 AND "revenue" >= $2`, clause)
	require.Len(t, params.args, 2)
}

func TestCompileFilters_InRequiresNonEmptyList(t *testing.T) {
	for _, op := range []v1.FilterOperator{v1.OpIn, v1.OpNotIn} {
		params := &paramList{}
		_, err := compileFilters([]v1.FilterSpec{{
			Field:    stringField("region", "Region"),
			Operator: op,
			Value:    v1.FilterValue{List: []v1.Value{}},
			Enabled:  true,
		}}, params)
		require.ErrorIs(t, err, ErrInvalidFilterValue)
	}
}

func TestCompileFilters_BetweenRequiresRange(t *testing.T) {
	params := &paramList{}
	_, err := compileFilters([]v1.FilterSpec{{
		Field:    numberField("revenue", "Revenue"),
		Operator: v1.OpBetween,
		Value:    v1.FilterValue{Scalar: v1.NumberFromInt(5)},
		Enabled:  true,
	}}, params)
	require.ErrorIs(t, err, ErrInvalidFilterValue)
}

func TestCompileFilters_LiteralsNeverEnterQueryText(t *testing.T) {
	params := &paramList{}
	clause, err := compileFilters([]v1.FilterSpec{{
		Field:    stringField("region", "Region"),
		Operator: v1.OpEquals,
		Value:    v1.FilterValue{Scalar: v1.String("US'; DROP TABLE sales; --")},
		Enabled:  true,
	}}, params)
	require.NoError(t, err)
	require.NotContains(t, clause, "DROP TABLE")
	require.NotContains(t, clause, "US")
	require.Equal(t, []interface{}{"US'; DROP TABLE sales; --"}, params.args)
}
