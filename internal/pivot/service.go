package pivot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/crosstab-lab/crosstab/internal/catalog"
	"github.com/crosstab-lab/crosstab/internal/engine"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// CatalogReader is the slice of the catalog the pivot pipeline needs.
type CatalogReader interface {
	Datasets(ctx context.Context) ([]v1.DatasetInfo, error)
	Fields(ctx context.Context, dataset string) ([]v1.Field, error)
	FieldValues(ctx context.Context, dataset, fieldID string, limit int) ([]v1.Value, error)
}

// Limits are the service-wide result ceilings, independent of any
// per-request maxRows/maxColumns.
type Limits struct {
	MaxRowsPerQuery    int
	MaxColumnsPerQuery int
	FieldValuesLimit   int
}

const (
	defaultMaxRowsPerQuery    = 100000
	defaultMaxColumnsPerQuery = 1000
	defaultFieldValuesLimit   = 100
)

func (l Limits) normalized() Limits {
	if l.MaxRowsPerQuery <= 0 {
		l.MaxRowsPerQuery = defaultMaxRowsPerQuery
	}
	if l.MaxColumnsPerQuery <= 0 {
		l.MaxColumnsPerQuery = defaultMaxColumnsPerQuery
	}
	if l.FieldValuesLimit <= 0 {
		l.FieldValuesLimit = defaultFieldValuesLimit
	}
	return l
}

// Service implements the pivot pipeline:
// validate -> compile -> execute -> materialize -> cache.
type Service struct {
	catalog CatalogReader
	exec    engine.Executor
	cache   *ResultCache
	limits  Limits

	// Coalesces concurrent identical computations: one engine round
	// trip per in-flight fingerprint, concurrent callers await it.
	group singleflight.Group

	nowFn func() time.Time
}

// NewService creates a pivot service over the given collaborators.
func NewService(cat CatalogReader, exec engine.Executor, cache *ResultCache, limits Limits) *Service {
	return &Service{
		catalog: cat,
		exec:    exec,
		cache:   cache,
		limits:  limits.normalized(),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ComputePivot runs the full pipeline for one request and returns the
// materialized structure. Validation failures surface before the engine
// or the cache is touched; nothing is cached on failure.
func (s *Service) ComputePivot(ctx context.Context, req v1.PivotRequest) (*v1.PivotResponse, error) {
	start := s.nowFn()

	fields, err := s.catalog.Fields(ctx, req.Dataset)
	if err != nil {
		return nil, err
	}
	if err := validateConfiguration(req.Configuration, fields); err != nil {
		return nil, err
	}

	req.ExpandedPaths = sortedUniquePaths(req.ExpandedPaths)

	fingerprint, err := Fingerprint(req)
	if err != nil {
		return nil, err
	}

	// The shared computation must not run on any single caller's context:
	// one canceled or timed-out request would poison every concurrent
	// caller awaiting the same fingerprint.
	detached := context.WithoutCancel(ctx)
	result, err, shared := s.group.Do(fingerprint, func() (interface{}, error) {
		if entry, ok := s.cache.Get(fingerprint); ok {
			slog.Debug("[Pivot] Cache hit", "fingerprint", fingerprint)
			return entry, nil
		}
		return s.computeAndCache(detached, req, fingerprint)
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry := result.(*CacheEntry)
	if shared {
		slog.Debug("[Pivot] Coalesced concurrent computation", "fingerprint", fingerprint)
	}

	return &v1.PivotResponse{
		Structure:     entry.Structure,
		ExpandedPaths: req.ExpandedPaths,
		HasMore:       entry.HasMore,
		Metadata: v1.Metadata{
			TotalDataRows:     entry.TotalDataRows,
			ComputationTimeMs: s.nowFn().Sub(start).Milliseconds(),
			Fingerprint:       fingerprint,
			RequestID:         uuid.NewString(),
			Timestamp:         s.nowFn().Unix(),
		},
	}, nil
}

// Drill applies one expand/collapse mutation to a cached request and
// re-runs the pipeline. The response carries a fresh fingerprint
// derived from the updated expansion state.
func (s *Service) Drill(ctx context.Context, req v1.DrillRequest) (*v1.PivotResponse, error) {
	entry, ok := s.cache.Get(req.Fingerprint)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheKeyNotFound, req.Fingerprint)
	}

	next := entry.Request
	next.ExpandedPaths = mutatePaths(entry.Request.ExpandedPaths, req.Path, req.Action)

	slog.Info("[Pivot] Drill",
		"action", req.Action,
		"path", req.Path,
		"fingerprint", req.Fingerprint,
	)

	return s.ComputePivot(ctx, next)
}

// ListDatasets exposes the engine's queryable datasets.
func (s *Service) ListDatasets(ctx context.Context) ([]v1.DatasetInfo, error) {
	return s.catalog.Datasets(ctx)
}

// ListFields exposes the field catalog of one dataset.
func (s *Service) ListFields(ctx context.Context, dataset string) ([]v1.Field, error) {
	return s.catalog.Fields(ctx, dataset)
}

// ListFieldValues exposes the distinct values of one field, capped at
// the configured limit.
func (s *Service) ListFieldValues(ctx context.Context, dataset, fieldID string, limit int) ([]v1.Value, error) {
	if limit <= 0 || limit > s.limits.FieldValuesLimit {
		limit = s.limits.FieldValuesLimit
	}
	return s.catalog.FieldValues(ctx, dataset, fieldID, limit)
}

func (s *Service) computeAndCache(ctx context.Context, req v1.PivotRequest, fingerprint string) (*CacheEntry, error) {
	compiled, err := compileQuery(req.Dataset, req.Configuration)
	if err != nil {
		return nil, err
	}

	slog.Debug("[Pivot] Executing compiled query",
		"dataset", req.Dataset,
		"query", compiled.SQL,
		"bound_params", len(compiled.Args),
	)

	rs, err := s.exec.Query(ctx, compiled.SQL, compiled.Args)
	if err != nil {
		return nil, err
	}

	if len(rs.Rows) > s.limits.MaxRowsPerQuery {
		return nil, fmt.Errorf("%w: %d result rows exceed the ceiling of %d",
			ErrResultTooLarge, len(rs.Rows), s.limits.MaxRowsPerQuery)
	}

	maxRows := req.Configuration.MaxRows
	if compiled.RowLimited {
		maxRows = 0
	}

	m := materialize(materializeParams{
		Result:         rs,
		Config:         req.Configuration,
		Expanded:       newPathSet(req.ExpandedPaths),
		MeasureAliases: compiled.MeasureAliases,
		MaxRows:        maxRows,
		MaxColumns:     req.Configuration.MaxColumns,
	})

	if m.Structure.ColumnCount > s.limits.MaxColumnsPerQuery {
		return nil, fmt.Errorf("%w: %d result columns exceed the ceiling of %d",
			ErrResultTooLarge, m.Structure.ColumnCount, s.limits.MaxColumnsPerQuery)
	}

	entry := &CacheEntry{
		Fingerprint:   fingerprint,
		Structure:     m.Structure,
		Request:       req,
		HasMore:       m.HasMore,
		TotalDataRows: len(rs.Rows),
	}
	s.cache.Put(entry)

	slog.Info("[Pivot] Computed pivot",
		"dataset", req.Dataset,
		"fingerprint", fingerprint,
		"data_rows", len(rs.Rows),
		"matrix_rows", m.Structure.RowCount,
		"matrix_columns", m.Structure.ColumnCount,
	)

	return entry, nil
}

// validateConfiguration checks every referenced field against the
// catalog and every enabled filter's operand shape, before any
// compilation happens.
func validateConfiguration(cfg v1.PivotConfiguration, fields []v1.Field) error {
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.ID] = struct{}{}
	}

	checkField := func(f v1.Field, where string) error {
		if _, ok := known[f.ID]; !ok {
			return fmt.Errorf("%w: %q referenced in %s", catalog.ErrUnknownField, f.ID, where)
		}
		return nil
	}

	for _, f := range cfg.RowFields {
		if err := checkField(f, "rows"); err != nil {
			return err
		}
	}
	for _, f := range cfg.ColumnFields {
		if err := checkField(f, "columns"); err != nil {
			return err
		}
	}
	for _, vf := range cfg.Values {
		if err := checkField(vf.Field, "values"); err != nil {
			return err
		}
		if !ValidAggregation(vf.Aggregation) {
			return fmt.Errorf("%w: unsupported aggregation %q", ErrQueryCompilation, vf.Aggregation)
		}
	}
	for _, f := range cfg.Filters {
		if err := checkField(f.Field, "filters"); err != nil {
			return err
		}
		if !f.Enabled {
			continue
		}
		switch f.Operator {
		case v1.OpIn, v1.OpNotIn:
			if !f.Value.IsList() || len(f.Value.List) == 0 {
				return fmt.Errorf("%w: operator %q requires a non-empty list for field %q",
					ErrInvalidFilterValue, f.Operator, f.Field.ID)
			}
		case v1.OpBetween:
			if !f.Value.IsRange() {
				return fmt.Errorf("%w: operator %q requires a {min,max} range for field %q",
					ErrInvalidFilterValue, f.Operator, f.Field.ID)
			}
		}
	}

	// Group field ids must not collide with the reserved measure aliases.
	aliases, err := measureAliases(cfg.Values)
	if err != nil {
		return err
	}
	reserved := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		reserved[a] = struct{}{}
	}
	if len(cfg.Values) == 0 && len(cfg.ColumnFields) > 0 {
		reserved[defaultCountAlias] = struct{}{}
	}
	for _, f := range append(append([]v1.Field{}, cfg.RowFields...), cfg.ColumnFields...) {
		if _, clash := reserved[f.ID]; clash {
			return fmt.Errorf("%w: field id %q collides with a reserved aggregation alias",
				ErrQueryCompilation, f.ID)
		}
	}

	return nil
}
