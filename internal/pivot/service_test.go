package pivot

import (
	"context"
	"sync"
	"testing"
	"time"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/crosstab-lab/crosstab/internal/catalog"
	"github.com/crosstab-lab/crosstab/internal/engine"
	"github.com/stretchr/testify/require"
)

func salesCatalog() *fakeCatalog {
	return &fakeCatalog{
		fields: []v1.Field{
			stringField("region", "Region"),
			stringField("product", "Product"),
			stringField("quarter", "Quarter"),
			numberField("revenue", "Revenue"),
		},
		datasets: []v1.DatasetInfo{{ID: "sales", Name: "Sales"}},
	}
}

func salesResult() *engine.ResultSet {
	return resultSet(
		[]string{"region", "Revenue"},
		[]v1.Value{v1.String("EU"), v1.NumberFromInt(50)},
		[]v1.Value{v1.String("US"), v1.NumberFromInt(100)},
	)
}

func salesRequest() v1.PivotRequest {
	return v1.PivotRequest{
		Dataset: "sales",
		Configuration: v1.PivotConfiguration{
			RowFields: []v1.Field{stringField("region", "Region")},
			Values: []v1.ValueField{{
				Field:       numberField("revenue", "Revenue"),
				Aggregation: v1.AggSum,
			}},
		},
	}
}

func newTestService(exec *fakeExecutor) *Service {
	return NewService(salesCatalog(), exec, NewResultCache(time.Hour, 10), Limits{})
}

func TestService_ComputePivot_HappyPath(t *testing.T) {
	exec := &fakeExecutor{result: salesResult()}
	svc := newTestService(exec)

	resp, err := svc.ComputePivot(context.Background(), salesRequest())
	require.NoError(t, err)

	require.NotNil(t, resp.Structure)
	require.Equal(t, 2, resp.Structure.RowCount)
	require.Len(t, resp.Metadata.Fingerprint, 64)
	require.NotEmpty(t, resp.Metadata.RequestID)
	require.Equal(t, 2, resp.Metadata.TotalDataRows)
	require.Equal(t, 1, exec.queryCount())
	require.Equal(t, 1, svc.cache.Len())
}

func TestService_ComputePivot_RepeatRequestServedFromCache(t *testing.T) {
	exec := &fakeExecutor{result: salesResult()}
	svc := newTestService(exec)

	first, err := svc.ComputePivot(context.Background(), salesRequest())
	require.NoError(t, err)
	second, err := svc.ComputePivot(context.Background(), salesRequest())
	require.NoError(t, err)

	require.Equal(t, 1, exec.queryCount())
	require.Equal(t, first.Metadata.Fingerprint, second.Metadata.Fingerprint)
	require.NotEqual(t, first.Metadata.RequestID, second.Metadata.RequestID)
}

func TestService_ComputePivot_CoalescesConcurrentIdenticalRequests(t *testing.T) {
	exec := &fakeExecutor{result: salesResult(), block: make(chan struct{})}
	svc := newTestService(exec)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ComputePivot(context.Background(), salesRequest())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(exec.block)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 1, exec.queryCount())
}

func TestService_ComputePivot_CanceledCallerDoesNotAffectPeers(t *testing.T) {
	exec := &fakeExecutor{result: salesResult(), block: make(chan struct{})}
	svc := newTestService(exec)

	ctx1, cancel1 := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var err1, err2 error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err1 = svc.ComputePivot(ctx1, salesRequest())
	}()
	go func() {
		defer wg.Done()
		_, err2 = svc.ComputePivot(context.Background(), salesRequest())
	}()

	// Let both callers reach the in-flight computation, then cancel one.
	time.Sleep(20 * time.Millisecond)
	cancel1()
	time.Sleep(20 * time.Millisecond)
	close(exec.block)
	wg.Wait()

	require.ErrorIs(t, err1, context.Canceled)
	require.NoError(t, err2, "a peer with a healthy context must not inherit the cancellation")
	require.Equal(t, 1, exec.queryCount())
}

func TestService_ComputePivot_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(req *v1.PivotRequest)
		expectedErr error
	}{
		{
			name: "unknown row field",
			mutate: func(req *v1.PivotRequest) {
				req.Configuration.RowFields = []v1.Field{stringField("missing", "Missing")}
			},
			expectedErr: catalog.ErrUnknownField,
		},
		{
			name: "unknown filter field",
			mutate: func(req *v1.PivotRequest) {
				req.Configuration.Filters = []v1.FilterSpec{{
					Field:    stringField("missing", "Missing"),
					Operator: v1.OpEquals,
					Value:    v1.FilterValue{Scalar: v1.String("x")},
					Enabled:  true,
				}}
			},
			expectedErr: catalog.ErrUnknownField,
		},
		{
			name: "unsupported aggregation",
			mutate: func(req *v1.PivotRequest) {
				req.Configuration.Values[0].Aggregation = "median"
			},
			expectedErr: ErrQueryCompilation,
		},
		{
			name: "in filter with empty list",
			mutate: func(req *v1.PivotRequest) {
				req.Configuration.Filters = []v1.FilterSpec{{
					Field:    stringField("region", "Region"),
					Operator: v1.OpIn,
					Value:    v1.FilterValue{List: []v1.Value{}},
					Enabled:  true,
				}}
			},
			expectedErr: ErrInvalidFilterValue,
		},
		{
			name: "between filter without range",
			mutate: func(req *v1.PivotRequest) {
				req.Configuration.Filters = []v1.FilterSpec{{
					Field:    numberField("revenue", "Revenue"),
					Operator: v1.OpBetween,
					Value:    v1.FilterValue{Scalar: v1.NumberFromInt(1)},
					Enabled:  true,
				}}
			},
			expectedErr: ErrInvalidFilterValue,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{result: salesResult()}
			svc := newTestService(exec)

			req := salesRequest()
			tc.mutate(&req)

			_, err := svc.ComputePivot(context.Background(), req)
			require.ErrorIs(t, err, tc.expectedErr)
			require.Zero(t, exec.queryCount(), "validation failures must not reach the engine")
			require.Zero(t, svc.cache.Len(), "nothing is cached on failure")
		})
	}
}

func TestService_ComputePivot_GroupFieldCollidingWithMeasureAliasFails(t *testing.T) {
	cat := salesCatalog()
	cat.fields = append(cat.fields, stringField("Revenue", "Revenue"))
	svc := NewService(cat, &fakeExecutor{result: salesResult()}, NewResultCache(time.Hour, 10), Limits{})

	req := salesRequest()
	req.Configuration.RowFields = append(req.Configuration.RowFields, stringField("Revenue", "Revenue"))

	_, err := svc.ComputePivot(context.Background(), req)
	require.ErrorIs(t, err, ErrQueryCompilation)
}

func TestService_ComputePivot_RowCeiling(t *testing.T) {
	exec := &fakeExecutor{result: salesResult()}
	svc := NewService(salesCatalog(), exec, NewResultCache(time.Hour, 10), Limits{MaxRowsPerQuery: 1})

	_, err := svc.ComputePivot(context.Background(), salesRequest())
	require.ErrorIs(t, err, ErrResultTooLarge)
	require.Zero(t, svc.cache.Len())
}

func TestService_ComputePivot_ColumnCeiling(t *testing.T) {
	exec := &fakeExecutor{result: resultSet(
		[]string{"region", "quarter", "Revenue"},
		[]v1.Value{v1.String("US"), v1.String("Q1"), v1.NumberFromInt(1)},
		[]v1.Value{v1.String("US"), v1.String("Q2"), v1.NumberFromInt(2)},
	)}
	svc := NewService(salesCatalog(), exec, NewResultCache(time.Hour, 10), Limits{MaxColumnsPerQuery: 1})

	req := salesRequest()
	req.Configuration.ColumnFields = []v1.Field{stringField("quarter", "Quarter")}

	_, err := svc.ComputePivot(context.Background(), req)
	require.ErrorIs(t, err, ErrResultTooLarge)
}

func TestService_Drill_UnknownFingerprint(t *testing.T) {
	svc := newTestService(&fakeExecutor{result: salesResult()})

	_, err := svc.Drill(context.Background(), v1.DrillRequest{
		Fingerprint: "does-not-exist",
		Path:        []string{"US"},
		Action:      v1.DrillExpand,
	})
	require.ErrorIs(t, err, ErrCacheKeyNotFound)
}

func TestService_Drill_ExpandCollapseRoundTrip(t *testing.T) {
	exec := &fakeExecutor{result: resultSet(
		[]string{"region", "product", "Revenue"},
		[]v1.Value{v1.String("US"), v1.String("A"), v1.NumberFromInt(100)},
		[]v1.Value{v1.String("US"), v1.String("B"), v1.NumberFromInt(200)},
	)}
	svc := newTestService(exec)

	req := salesRequest()
	req.Configuration.RowFields = []v1.Field{stringField("region", "Region"), stringField("product", "Product")}

	base, err := svc.ComputePivot(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, base.ExpandedPaths)

	expanded, err := svc.Drill(context.Background(), v1.DrillRequest{
		Fingerprint: base.Metadata.Fingerprint,
		Path:        []string{"US"},
		Action:      v1.DrillExpand,
	})
	require.NoError(t, err)
	require.NotEqual(t, base.Metadata.Fingerprint, expanded.Metadata.Fingerprint)
	require.Equal(t, [][]string{{"US"}}, expanded.ExpandedPaths)

	collapsed, err := svc.Drill(context.Background(), v1.DrillRequest{
		Fingerprint: expanded.Metadata.Fingerprint,
		Path:        []string{"US"},
		Action:      v1.DrillCollapse,
	})
	require.NoError(t, err)
	require.Equal(t, base.Metadata.Fingerprint, collapsed.Metadata.Fingerprint)
	require.Empty(t, collapsed.ExpandedPaths)
}

func TestService_ListFieldValues_ClampsLimit(t *testing.T) {
	cat := salesCatalog()
	cat.values = []v1.Value{v1.String("EU"), v1.String("US")}
	svc := NewService(cat, &fakeExecutor{}, NewResultCache(time.Hour, 10), Limits{FieldValuesLimit: 25})

	values, err := svc.ListFieldValues(context.Background(), "sales", "region", 9999)
	require.NoError(t, err)
	require.Len(t, values, 2)
}
