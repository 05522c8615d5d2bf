package pivot

import (
	"fmt"
	"strconv"
	"time"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/crosstab-lab/crosstab/internal/engine"
	"github.com/shopspring/decimal"
)

// nullGroupLabel renders null group keys; the compiler orders them last
// so they form their own trailing group.
const nullGroupLabel = "(null)"

// grandTotalLabel labels the grand-total row and column.
const grandTotalLabel = "Total"

// materializeParams carries one materialization's inputs. The flat
// result rows arrive at leaf grain: one row per distinct
// rowFields x columnFields combination, pre-sorted by the compiler.
type materializeParams struct {
	Result         *engine.ResultSet
	Config         v1.PivotConfiguration
	Expanded       pathSet
	MeasureAliases []string

	// MaxRows caps rendered top-level row groups when the compiler could
	// not enforce the cap with LIMIT (i.e. under a column pivot).
	MaxRows int

	// MaxColumns caps leaf data columns, first-seen order.
	MaxColumns int
}

type materialized struct {
	Structure *v1.PivotStructure
	HasMore   bool
}

// groupNode is one node of a row or column grouping tree. rows holds
// the ascending flat-result row indices covered by the subtree.
type groupNode struct {
	label    string
	path     []string
	level    int
	rows     []int
	children []*groupNode
	index    map[string]*groupNode
}

func (n *groupNode) child(label string) *groupNode {
	if c, ok := n.index[label]; ok {
		return c
	}
	path := make([]string, len(n.path)+1)
	copy(path, n.path)
	path[len(n.path)] = label
	c := &groupNode{
		label: label,
		path:  path,
		level: n.level + 1,
		index: make(map[string]*groupNode),
	}
	n.children = append(n.children, c)
	n.index[label] = c
	return c
}

// renderedRow is one row of the output matrix before cells are filled.
type renderedRow struct {
	node       *groupNode
	typ        v1.CellType
	expandable bool
	expanded   bool
}

// outCol is one output matrix column: a column-tree leaf crossed with a
// measure, or a grand-total column.
type outCol struct {
	leaf    *groupNode
	measure int
	total   bool
}

// materialize builds the hierarchical structure from the flat result.
// Given identical input rows and expanded paths the output is identical
// byte for byte: grouping follows first-seen input order and no map
// iteration reaches the output.
func materialize(p materializeParams) *materialized {
	if len(p.Config.Values) == 0 && len(p.Config.ColumnFields) == 0 {
		return materializeFlat(p)
	}

	nRow := len(p.Config.RowFields)
	nCol := len(p.Config.ColumnFields)
	nMeasures := len(p.MeasureAliases)

	rowTree := buildGroupTree(p.Result, 0, p.Config.RowFields)
	colTree := buildGroupTree(p.Result, nRow, p.Config.ColumnFields)

	// Column axis: every leaf combo spawns one column per measure.
	leaves := collectLeaves(colTree, nCol)
	dataCols := make([]outCol, 0, len(leaves)*nMeasures)
	for _, leaf := range leaves {
		for m := 0; m < nMeasures; m++ {
			dataCols = append(dataCols, outCol{leaf: leaf, measure: m})
		}
	}
	totalDataCols := len(dataCols)

	colsTruncated := false
	if p.MaxColumns > 0 && len(dataCols) > p.MaxColumns {
		dataCols = dataCols[:p.MaxColumns]
		colsTruncated = true
	}

	outCols := dataCols
	if p.Config.ShowGrandTotals && nCol > 0 && len(p.Result.Rows) > 0 {
		for m := 0; m < nMeasures; m++ {
			outCols = append(outCols, outCol{leaf: colTree, measure: m, total: true})
		}
	}

	// Row axis: expansion state decides which groups render as a single
	// collapsed row and which as child rows plus an optional subtotal.
	rowsTruncated := false
	totalRenderable := renderableRows(rowTree, nRow, p.Expanded, p.Config.ShowSubtotals)
	if p.MaxRows > 0 && len(rowTree.children) > p.MaxRows {
		rowTree.children = rowTree.children[:p.MaxRows]
		rowsTruncated = true
	}

	rowHeaders := make([][]v1.HeaderNode, nRow)
	for i := range rowHeaders {
		rowHeaders[i] = []v1.HeaderNode{}
	}
	var rendered []renderedRow

	if nRow == 0 {
		if len(p.Result.Rows) > 0 {
			rendered = append(rendered, renderedRow{node: rowTree, typ: v1.CellData})
		}
	} else {
		rendered = renderRows(rowTree, nRow, p.Expanded, p.Config, rowHeaders)
	}

	grandTotalRows := 0
	if p.Config.ShowGrandTotals && nRow > 0 && len(p.Result.Rows) > 0 {
		rendered = append(rendered, renderedRow{node: rowTree, typ: v1.CellGrandTotal})
		rowHeaders[0] = append(rowHeaders[0], v1.HeaderNode{
			Label: grandTotalLabel,
			Level: 0,
			Span:  1,
			Path:  []string{},
		})
		grandTotalRows = 1
	}

	matrix := make([][]v1.Cell, len(rendered))
	for i, rr := range rendered {
		cells := make([]v1.Cell, len(outCols))
		for j, oc := range outCols {
			cells[j] = buildCell(p, rr, oc, nRow, nCol)
		}
		matrix[i] = cells
	}

	structure := &v1.PivotStructure{
		Matrix:        matrix,
		RowHeaders:    rowHeaders,
		ColumnHeaders: buildColumnHeaders(p, dataCols, outCols, nCol, nMeasures),
		RowCount:      len(matrix),
		ColumnCount:   len(outCols),
		TotalRows:     totalRenderable + grandTotalRows,
		TotalColumns:  totalDataCols + (len(outCols) - len(dataCols)),
	}

	return &materialized{
		Structure: structure,
		HasMore:   colsTruncated || rowsTruncated,
	}
}

// materializeFlat handles the unaggregated pass-through: a single-level
// projection with no hierarchy, mirroring the raw preview shape.
func materializeFlat(p materializeParams) *materialized {
	cols := p.Result.Columns
	truncated := false
	if p.MaxColumns > 0 && len(cols) > p.MaxColumns {
		cols = cols[:p.MaxColumns]
		truncated = true
	}

	headers := make([]v1.HeaderNode, len(cols))
	for i, name := range cols {
		headers[i] = v1.HeaderNode{
			Label: name,
			Level: 0,
			Span:  1,
			Path:  []string{name},
		}
	}

	matrix := make([][]v1.Cell, len(p.Result.Rows))
	for i, row := range p.Result.Rows {
		cells := make([]v1.Cell, len(cols))
		for j := range cols {
			cells[j] = v1.Cell{
				Value:          row[j],
				FormattedValue: formatValue(row[j], ""),
				Type:           v1.CellData,
				OriginalRows:   []int{i},
			}
		}
		matrix[i] = cells
	}

	return &materialized{
		Structure: &v1.PivotStructure{
			Matrix:        matrix,
			RowHeaders:    [][]v1.HeaderNode{},
			ColumnHeaders: [][]v1.HeaderNode{headers},
			RowCount:      len(matrix),
			ColumnCount:   len(cols),
			TotalRows:     len(matrix),
			TotalColumns:  len(p.Result.Columns),
		},
		HasMore: truncated,
	}
}

// buildGroupTree groups flat rows on successive key-column prefixes in
// first-seen order. keyOffset locates the first key column in the
// result; fields supplies labels and formats per level.
func buildGroupTree(rs *engine.ResultSet, keyOffset int, fields []v1.Field) *groupNode {
	root := &groupNode{level: -1, index: make(map[string]*groupNode)}
	for i := range rs.Rows {
		root.rows = append(root.rows, i)
		node := root
		for j, f := range fields {
			label := groupLabel(rs.Rows[i][keyOffset+j], f)
			node = node.child(label)
			node.rows = append(node.rows, i)
		}
	}
	return root
}

func collectLeaves(root *groupNode, depth int) []*groupNode {
	if depth == 0 {
		return []*groupNode{root}
	}
	var leaves []*groupNode
	var walk func(n *groupNode)
	walk = func(n *groupNode) {
		if n.level == depth-1 {
			leaves = append(leaves, n)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)
	return leaves
}

// renderRows walks the row tree emitting one renderedRow per visible
// node and filling the level-major header grid. A parent header's span
// always equals the sum of its rendered children's spans.
func renderRows(root *groupNode, nRow int, expanded pathSet, cfg v1.PivotConfiguration, headers [][]v1.HeaderNode) []renderedRow {
	var rendered []renderedRow

	var walk func(parent *groupNode) int
	walk = func(parent *groupNode) int {
		total := 0
		for _, c := range parent.children {
			field := cfg.RowFields[c.level]

			if c.level == nRow-1 {
				rendered = append(rendered, renderedRow{node: c, typ: v1.CellData})
				headers[c.level] = append(headers[c.level], v1.HeaderNode{
					Label: c.label,
					Level: c.level,
					Span:  1,
					Path:  c.path,
					Field: &field,
				})
				total++
				continue
			}

			if expanded.contains(c.path) {
				span := walk(c)
				if cfg.ShowSubtotals {
					rendered = append(rendered, renderedRow{node: c, typ: v1.CellSubtotal, expandable: true, expanded: true})
					headers[c.level+1] = append(headers[c.level+1], v1.HeaderNode{
						Label: c.label + " " + grandTotalLabel,
						Level: c.level + 1,
						Span:  1,
						Path:  c.path,
					})
					span++
				}
				headers[c.level] = append(headers[c.level], v1.HeaderNode{
					Label:        c.label,
					Level:        c.level,
					Span:         span,
					Path:         c.path,
					Field:        &field,
					IsExpandable: true,
					IsExpanded:   true,
				})
				total += span
				continue
			}

			// A collapsed group row carries its subtree's aggregates, so
			// when subtotals are on it is one of them.
			typ := v1.CellData
			if cfg.ShowSubtotals {
				typ = v1.CellSubtotal
			}
			rendered = append(rendered, renderedRow{node: c, typ: typ, expandable: true})
			headers[c.level] = append(headers[c.level], v1.HeaderNode{
				Label:        c.label,
				Level:        c.level,
				Span:         1,
				Path:         c.path,
				Field:        &field,
				IsExpandable: true,
			})
			total++
		}
		return total
	}

	walk(root)
	return rendered
}

// renderableRows counts the rows rendering would produce without any
// row cap, so TotalRows reports the untruncated size.
func renderableRows(root *groupNode, nRow int, expanded pathSet, showSubtotals bool) int {
	if nRow == 0 {
		if len(root.rows) > 0 {
			return 1
		}
		return 0
	}

	var count func(parent *groupNode) int
	count = func(parent *groupNode) int {
		total := 0
		for _, c := range parent.children {
			if c.level == nRow-1 || !expanded.contains(c.path) {
				total++
				continue
			}
			total += count(c)
			if showSubtotals {
				total++
			}
		}
		return total
	}
	return count(root)
}

// buildColumnHeaders constructs the level-major column header grid from
// the surviving leaf columns, grouping consecutive runs per prefix so
// spans stay consistent after truncation.
func buildColumnHeaders(p materializeParams, dataCols, outCols []outCol, nCol, nMeasures int) [][]v1.HeaderNode {
	measureLevel := nMeasures > 1 || nCol == 0

	levels := nCol
	if measureLevel {
		levels++
	}
	headers := make([][]v1.HeaderNode, levels)
	for i := range headers {
		headers[i] = []v1.HeaderNode{}
	}

	for level := 0; level < nCol; level++ {
		field := p.Config.ColumnFields[level]
		for start := 0; start < len(dataCols); {
			prefix := dataCols[start].leaf.path[:level+1]
			end := start
			for end < len(dataCols) && pathKey(dataCols[end].leaf.path[:level+1]) == pathKey(prefix) {
				end++
			}
			headers[level] = append(headers[level], v1.HeaderNode{
				Label:        prefix[level],
				Level:        level,
				Span:         end - start,
				Path:         append([]string{}, prefix...),
				Field:        &field,
				IsExpandable: level < nCol-1,
				IsExpanded:   level < nCol-1,
			})
			start = end
		}
	}

	if measureLevel {
		level := levels - 1
		for _, oc := range dataCols {
			alias := p.MeasureAliases[oc.measure]
			path := append(append([]string{}, oc.leaf.path...), alias)
			headers[level] = append(headers[level], v1.HeaderNode{
				Label: alias,
				Level: level,
				Span:  1,
				Path:  path,
				Field: measureField(p.Config, oc.measure),
			})
		}
	}

	// Grand-total columns sit after the data columns: one level-0 header
	// spanning the per-measure totals.
	if len(outCols) > len(dataCols) {
		headers[0] = append(headers[0], v1.HeaderNode{
			Label: grandTotalLabel,
			Level: 0,
			Span:  len(outCols) - len(dataCols),
			Path:  []string{},
		})
		if measureLevel {
			level := levels - 1
			for _, oc := range outCols[len(dataCols):] {
				alias := p.MeasureAliases[oc.measure]
				headers[level] = append(headers[level], v1.HeaderNode{
					Label: alias,
					Level: level,
					Span:  1,
					Path:  []string{alias},
				})
			}
		}
	}

	return headers
}

// buildCell computes one matrix cell: the fold of the measure over the
// flat rows shared by the rendered row's group and the column's combo.
func buildCell(p materializeParams, rr renderedRow, oc outCol, nRow, nCol int) v1.Cell {
	indices := intersectSorted(rr.node.rows, oc.leaf.rows)

	typ := rr.typ
	if oc.total && typ != v1.CellGrandTotal {
		typ = v1.CellGrandTotal
	}

	level := rr.node.level
	if level < 0 {
		level = 0
	}

	cell := v1.Cell{
		Value:          v1.Null(),
		Type:           typ,
		Level:          level,
		IsExpandable:   rr.expandable,
		IsExpanded:     rr.expanded,
		Path:           rr.node.path,
		OriginalRows:   indices,
		FormattedValue: "",
	}
	if len(indices) == 0 {
		return cell
	}

	measCol := nRow + nCol + oc.measure
	var vals []v1.Value
	for _, idx := range indices {
		if v := p.Result.Rows[idx][measCol]; !v.IsNull() {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return cell
	}

	format := measureFormat(p.Config, oc.measure)

	// Non-numeric measures (min/max over strings or dates) pass through
	// only when a single leaf contributes; they have no fold semantics.
	var decs []decimal.Decimal
	for _, v := range vals {
		if d, ok := v.AsDecimal(); ok {
			decs = append(decs, d)
		}
	}
	if len(decs) == 0 {
		if len(vals) == 1 {
			cell.Value = vals[0]
			cell.FormattedValue = formatValue(vals[0], format)
		}
		return cell
	}

	combiner := Combiners[measureAggregation(p.Config, oc.measure)]
	state := combiner.Initial(decs[0])
	for _, d := range decs[1:] {
		state = combiner.Apply(state, d)
	}
	final := combiner.Finalize(state, int64(len(decs)))

	cell.Value = v1.Number(final)
	cell.FormattedValue = formatValue(cell.Value, format)
	return cell
}

func measureAggregation(cfg v1.PivotConfiguration, m int) v1.Aggregation {
	if m < len(cfg.Values) {
		return cfg.Values[m].Aggregation
	}
	return v1.AggCount
}

func measureField(cfg v1.PivotConfiguration, m int) *v1.Field {
	if m < len(cfg.Values) {
		f := cfg.Values[m].Field
		return &f
	}
	return nil
}

func measureFormat(cfg v1.PivotConfiguration, m int) string {
	if m < len(cfg.Values) {
		return cfg.Values[m].Field.Format
	}
	return ""
}

// intersectSorted merges two ascending index slices.
func intersectSorted(a, b []int) []int {
	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// groupLabel renders one group key value; null keys get their own group.
func groupLabel(v v1.Value, f v1.Field) string {
	if v.IsNull() {
		return nullGroupLabel
	}
	return formatValue(v, f.Format)
}

// formatValue renders a value for display. format applies fmt verbs to
// numbers and time layouts to dates; nulls render empty.
func formatValue(v v1.Value, format string) string {
	switch v.Kind {
	case v1.KindString:
		return v.Str
	case v1.KindNumber:
		if format != "" {
			f, _ := v.Num.Float64()
			return fmt.Sprintf(format, f)
		}
		return v.Num.String()
	case v1.KindDate:
		if format != "" {
			return v.Time.Format(format)
		}
		return v.Time.Format(time.RFC3339)
	case v1.KindBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}
