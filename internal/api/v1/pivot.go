package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field describes one column of a dataset as exposed by the catalog.
// Identity is ID, unique and case-sensitive within a dataset.
type Field struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	DataType    DataType `json:"dataType"`
	Format      string   `json:"format,omitempty"`
}

// Aggregation names the reduce function applied to a measure.
type Aggregation string

const (
	AggSum           Aggregation = "sum"
	AggCount         Aggregation = "count"
	AggAvg           Aggregation = "avg"
	AggMin           Aggregation = "min"
	AggMax           Aggregation = "max"
	AggCountDistinct Aggregation = "countDistinct"
)

// ValueField is one requested measure: a field plus its aggregation.
// Order within PivotConfiguration.Values is significant.
type ValueField struct {
	Field       Field       `json:"field"`
	Aggregation Aggregation `json:"aggregation" binding:"required,oneof=sum count avg min max countDistinct"`
	DisplayName string      `json:"displayName,omitempty"`
}

// FilterOperator is the comparison applied by one filter.
type FilterOperator string

const (
	OpEquals             FilterOperator = "equals"
	OpNotEquals          FilterOperator = "notEquals"
	OpContains           FilterOperator = "contains"
	OpNotContains        FilterOperator = "notContains"
	OpGreaterThan        FilterOperator = "greaterThan"
	OpLessThan           FilterOperator = "lessThan"
	OpGreaterThanOrEqual FilterOperator = "greaterThanOrEqual"
	OpLessThanOrEqual    FilterOperator = "lessThanOrEqual"
	OpIn                 FilterOperator = "in"
	OpNotIn              FilterOperator = "notIn"
	OpBetween            FilterOperator = "between"
	OpIsEmpty            FilterOperator = "isEmpty"
	OpIsNotEmpty         FilterOperator = "isNotEmpty"
)

// ValueRange is the {min,max} shape required by the between operator.
// Both bounds are inclusive.
type ValueRange struct {
	Min Value `json:"min"`
	Max Value `json:"max"`
}

// FilterValue is the operator operand: a scalar, a list (in/notIn) or a
// range (between). The JSON shape selects the variant.
type FilterValue struct {
	Scalar Value
	List   []Value
	Range  *ValueRange
}

func (f FilterValue) IsList() bool  { return f.List != nil }
func (f FilterValue) IsRange() bool { return f.Range != nil }

func (f FilterValue) MarshalJSON() ([]byte, error) {
	switch {
	case f.Range != nil:
		return json.Marshal(f.Range)
	case f.List != nil:
		return json.Marshal(f.List)
	default:
		return json.Marshal(f.Scalar)
	}
}

func (f *FilterValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty filter value")
	}

	switch trimmed[0] {
	case '[':
		list := []Value{}
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*f = FilterValue{List: list}
		return nil
	case '{':
		var r ValueRange
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return err
		}
		*f = FilterValue{Range: &r}
		return nil
	default:
		var v Value
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return err
		}
		*f = FilterValue{Scalar: v}
		return nil
	}
}

// FilterSpec is one predicate over a catalog field.
// Disabled filters are excluded from compilation entirely.
type FilterSpec struct {
	Field    Field          `json:"field"`
	Operator FilterOperator `json:"operator" binding:"required,oneof=equals notEquals contains notContains greaterThan lessThan greaterThanOrEqual lessThanOrEqual in notIn between isEmpty isNotEmpty"`
	Value    FilterValue    `json:"value"`
	Enabled  bool           `json:"enabled"`
}

// PivotConfiguration declares the shape of one pivot computation.
// List order is semantically significant throughout.
type PivotConfiguration struct {
	RowFields       []Field      `json:"rows"`
	ColumnFields    []Field      `json:"columns"`
	Values          []ValueField `json:"values"`
	Filters         []FilterSpec `json:"filters,omitempty"`
	ShowSubtotals   bool         `json:"showSubtotals"`
	ShowGrandTotals bool         `json:"showGrandTotals"`
	MaxRows         int          `json:"maxRows,omitempty"`
	MaxColumns      int          `json:"maxColumns,omitempty"`
}

// PivotRequest is the caller-supplied computation request.
// ExpandedPaths holds the row-hierarchy nodes whose children are rendered
// individually; each path is ordered from outermost to innermost dimension.
type PivotRequest struct {
	Dataset       string             `json:"dataset" binding:"required"`
	Configuration PivotConfiguration `json:"configuration"`
	ExpandedPaths [][]string         `json:"expandedPaths,omitempty"`
}

// DrillAction toggles one hierarchy node open or closed.
type DrillAction string

const (
	DrillExpand   DrillAction = "expand"
	DrillCollapse DrillAction = "collapse"
)

// DrillRequest mutates the expansion state of a previously computed pivot.
type DrillRequest struct {
	Fingerprint string      `json:"fingerprint" binding:"required"`
	Path        []string    `json:"path" binding:"required"`
	Action      DrillAction `json:"action" binding:"required,oneof=expand collapse"`
}

// CellType distinguishes plain data cells from aggregate rows/columns.
type CellType string

const (
	CellData       CellType = "data"
	CellSubtotal   CellType = "subtotal"
	CellGrandTotal CellType = "grandTotal"
)

// Cell is one entry of the rendered matrix.
// OriginalRows lists the indices of the flat result rows contributing to
// this cell, supporting drill-through to source records.
type Cell struct {
	Value          Value    `json:"value"`
	FormattedValue string   `json:"formattedValue"`
	Type           CellType `json:"type"`
	Level          int      `json:"level"`
	IsExpandable   bool     `json:"isExpandable"`
	IsExpanded     bool     `json:"isExpanded"`
	Path           []string `json:"path,omitempty"`
	OriginalRows   []int    `json:"originalRows,omitempty"`
}

// HeaderNode is one rendered header cell. Span is the number of leaf
// rows/columns the node covers; Level is 0-based depth from the outermost
// dimension.
type HeaderNode struct {
	Label        string   `json:"label"`
	Level        int      `json:"level"`
	Span         int      `json:"span"`
	Path         []string `json:"path"`
	Field        *Field   `json:"field,omitempty"`
	IsExpandable bool     `json:"isExpandable"`
	IsExpanded   bool     `json:"isExpanded"`
}

// PivotStructure is the materialized hierarchical table.
// TotalRows/TotalColumns report the full result before any maxRows or
// maxColumns truncation; RowCount/ColumnCount reflect what is returned.
type PivotStructure struct {
	Matrix        [][]Cell       `json:"matrix"`
	RowHeaders    [][]HeaderNode `json:"rowHeaders"`
	ColumnHeaders [][]HeaderNode `json:"columnHeaders"`
	RowCount      int            `json:"rowCount"`
	ColumnCount   int            `json:"columnCount"`
	TotalRows     int            `json:"totalRows"`
	TotalColumns  int            `json:"totalColumns"`
}

// Metadata describes one pivot computation.
type Metadata struct {
	TotalDataRows     int    `json:"totalDataRows"`
	ComputationTimeMs int64  `json:"computationTimeMs"`
	Fingerprint       string `json:"fingerprint"`
	RequestID         string `json:"requestId"`
	Timestamp         int64  `json:"timestamp"`
}

// PivotResponse is the API-level result of compute and drill calls.
type PivotResponse struct {
	Structure     *PivotStructure `json:"structure"`
	Metadata      Metadata        `json:"metadata"`
	ExpandedPaths [][]string      `json:"expandedPaths"`
	HasMore       bool            `json:"hasMore"`
}

// DatasetInfo identifies one queryable dataset of the attached engine.
type DatasetInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
