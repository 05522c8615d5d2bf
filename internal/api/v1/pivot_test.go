package v1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFilterValue_ShapeSelectsVariant(t *testing.T) {
	var scalar FilterValue
	require.NoError(t, json.Unmarshal([]byte(`"US"`), &scalar))
	require.False(t, scalar.IsList())
	require.False(t, scalar.IsRange())
	require.Equal(t, String("US"), scalar.Scalar)

	var list FilterValue
	require.NoError(t, json.Unmarshal([]byte(`["US", "EU"]`), &list))
	require.True(t, list.IsList())
	require.Equal(t, []Value{String("US"), String("EU")}, list.List)

	var rng FilterValue
	require.NoError(t, json.Unmarshal([]byte(`{"min": 10, "max": 20}`), &rng))
	require.True(t, rng.IsRange())
	require.True(t, rng.Range.Min.Num.Equal(decimal.NewFromInt(10)))
	require.True(t, rng.Range.Max.Num.Equal(decimal.NewFromInt(20)))
}

func TestValue_UnmarshalInfersKind(t *testing.T) {
	tests := []struct {
		raw      string
		expected ValueKind
	}{
		{`null`, KindNull},
		{`true`, KindBoolean},
		{`"hello"`, KindString},
		{`42.5`, KindNumber},
	}
	for _, tc := range tests {
		var v Value
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &v))
		if tc.expected == KindNull {
			require.True(t, v.IsNull())
			continue
		}
		require.Equal(t, tc.expected, v.Kind)
	}
}

func TestValue_NumberMarshalsWithoutFloatDrift(t *testing.T) {
	v := Number(decimal.RequireFromString("0.1"))
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, `0.1`, string(b))

	var back Value
	require.NoError(t, json.Unmarshal(b, &back))
	require.True(t, back.Num.Equal(v.Num))
}

func TestValue_DateMarshalsAsRFC3339(t *testing.T) {
	v := Date(time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC))
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, `"2026-01-15T09:30:00Z"`, string(b))
}

func TestPivotRequest_RoundTrip(t *testing.T) {
	raw := `{
		"dataset": "sales",
		"configuration": {
			"rows": [{"id": "region", "displayName": "Region", "dataType": "string"}],
			"columns": [],
			"values": [{
				"field": {"id": "revenue", "displayName": "Revenue", "dataType": "number"},
				"aggregation": "sum"
			}],
			"filters": [{
				"field": {"id": "region", "displayName": "Region", "dataType": "string"},
				"operator": "in",
				"value": ["US", "EU"],
				"enabled": true
			}],
			"showSubtotals": true,
			"showGrandTotals": true
		},
		"expandedPaths": [["US"]]
	}`

	var req PivotRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	require.Equal(t, "sales", req.Dataset)
	require.Equal(t, "region", req.Configuration.RowFields[0].ID)
	require.Equal(t, AggSum, req.Configuration.Values[0].Aggregation)
	require.Equal(t, OpIn, req.Configuration.Filters[0].Operator)
	require.True(t, req.Configuration.Filters[0].Value.IsList())
	require.Equal(t, [][]string{{"US"}}, req.ExpandedPaths)

	b, err := json.Marshal(req)
	require.NoError(t, err)

	var again PivotRequest
	require.NoError(t, json.Unmarshal(b, &again))
	require.Equal(t, req, again)
}

func TestDataTypeForEngineType(t *testing.T) {
	tests := []struct {
		engineType string
		expected   DataType
	}{
		{"BIGINT", DataTypeNumber},
		{"DECIMAL(18,2)", DataTypeNumber},
		{"DOUBLE", DataTypeNumber},
		{"DATE", DataTypeDate},
		{"TIMESTAMP WITH TIME ZONE", DataTypeDate},
		{"BOOLEAN", DataTypeBoolean},
		{"VARCHAR", DataTypeString},
		{"", DataTypeString},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, DataTypeForEngineType(tc.engineType))
	}
}
