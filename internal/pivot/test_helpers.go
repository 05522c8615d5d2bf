package pivot

import (
	"context"
	"sync"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/crosstab-lab/crosstab/internal/engine"
)

// fakeExecutor is an in-memory engine.Executor for tests. It records
// every query and serves a canned result.
type fakeExecutor struct {
	mu      sync.Mutex
	queries []string
	args    [][]interface{}
	result  *engine.ResultSet
	err     error

	// block, when set, is closed by the test to release in-flight queries.
	block chan struct{}
}

func (f *fakeExecutor) Query(_ context.Context, query string, args []interface{}) (*engine.ResultSet, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &engine.ResultSet{}, nil
}

func (f *fakeExecutor) Ping(context.Context) error { return nil }

func (f *fakeExecutor) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// fakeCatalog is an in-memory CatalogReader serving a fixed field set.
type fakeCatalog struct {
	fields   []v1.Field
	datasets []v1.DatasetInfo
	values   []v1.Value
	err      error
}

func (f *fakeCatalog) Datasets(context.Context) ([]v1.DatasetInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.datasets, nil
}

func (f *fakeCatalog) Fields(context.Context, string) ([]v1.Field, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}

func (f *fakeCatalog) FieldValues(context.Context, string, string, int) ([]v1.Value, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

func stringField(id, display string) v1.Field {
	return v1.Field{ID: id, DisplayName: display, DataType: v1.DataTypeString}
}

func numberField(id, display string) v1.Field {
	return v1.Field{ID: id, DisplayName: display, DataType: v1.DataTypeNumber}
}
