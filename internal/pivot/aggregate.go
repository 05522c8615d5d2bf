package pivot

import (
	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/shopspring/decimal"
)

// Combiner defines how leaf cell values fold into subtotal and
// grand-total cells. To support a new aggregation: implement this
// interface and register it in Combiners.
type Combiner interface {
	// Initial returns the fold state after the very first leaf value.
	Initial(incoming decimal.Decimal) decimal.Decimal

	// Apply folds one more leaf value into the running state.
	Apply(current, incoming decimal.Decimal) decimal.Decimal

	// Finalize turns the fold state into the rendered aggregate.
	// n is the number of non-null leaves folded.
	Finalize(current decimal.Decimal, n int64) decimal.Decimal
}

// Combiners is the registry of fold semantics per aggregation kind.
//
// count and countDistinct leaves are themselves counts, so they combine
// additively; for countDistinct this makes subtotals an upper bound
// (distinct sets of sibling groups may overlap). avg folds the sum and
// divides at finalize, i.e. the mean of the leaf aggregates.
var Combiners = map[v1.Aggregation]Combiner{
	v1.AggSum:           addCombiner{},
	v1.AggCount:         addCombiner{},
	v1.AggCountDistinct: addCombiner{},
	v1.AggAvg:           avgCombiner{},
	v1.AggMin:           minCombiner{},
	v1.AggMax:           maxCombiner{},
}

// ValidAggregation reports whether agg is a registered aggregation kind.
func ValidAggregation(agg v1.Aggregation) bool {
	_, ok := Combiners[agg]
	return ok
}

type addCombiner struct{}

func (addCombiner) Initial(v decimal.Decimal) decimal.Decimal             { return v }
func (addCombiner) Apply(cur, inc decimal.Decimal) decimal.Decimal        { return cur.Add(inc) }
func (addCombiner) Finalize(cur decimal.Decimal, _ int64) decimal.Decimal { return cur }

type avgCombiner struct{}

func (avgCombiner) Initial(v decimal.Decimal) decimal.Decimal      { return v }
func (avgCombiner) Apply(cur, inc decimal.Decimal) decimal.Decimal { return cur.Add(inc) }
func (avgCombiner) Finalize(cur decimal.Decimal, n int64) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return cur.Div(decimal.NewFromInt(n))
}

type minCombiner struct{}

func (minCombiner) Initial(v decimal.Decimal) decimal.Decimal { return v }
func (minCombiner) Apply(cur, inc decimal.Decimal) decimal.Decimal {
	if inc.LessThan(cur) {
		return inc
	}
	return cur
}
func (minCombiner) Finalize(cur decimal.Decimal, _ int64) decimal.Decimal { return cur }

type maxCombiner struct{}

func (maxCombiner) Initial(v decimal.Decimal) decimal.Decimal { return v }
func (maxCombiner) Apply(cur, inc decimal.Decimal) decimal.Decimal {
	if inc.GreaterThan(cur) {
		return inc
	}
	return cur
}
func (maxCombiner) Finalize(cur decimal.Decimal, _ int64) decimal.Decimal { return cur }
