package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/crosstab-lab/crosstab/internal/engine"
)

var (
	// ErrUnknownDataset is returned when the dataset has no columns in the engine catalog.
	ErrUnknownDataset = errors.New("unknown dataset")
	// ErrUnknownField is returned when a referenced field id is absent from the dataset.
	ErrUnknownField = errors.New("unknown field")
)

const (
	queryDatasets = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_name`

	queryColumns = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1
		  AND table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY ordinal_position`
)

// Service resolves datasets and their typed field catalogs from the
// engine's information schema. Fields are immutable once read.
type Service struct {
	exec engine.Executor
}

// NewService creates a catalog service over the given engine.
func NewService(exec engine.Executor) *Service {
	return &Service{exec: exec}
}

// Datasets lists the queryable datasets of the attached engine.
func (s *Service) Datasets(ctx context.Context) ([]v1.DatasetInfo, error) {
	rs, err := s.exec.Query(ctx, queryDatasets, nil)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	datasets := make([]v1.DatasetInfo, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) == 0 || row[0].Kind != v1.KindString {
			continue
		}
		name := row[0].Str
		datasets = append(datasets, v1.DatasetInfo{
			ID:   name,
			Name: displayName(name),
		})
	}
	return datasets, nil
}

// Fields returns the fixed, ordered field catalog of one dataset.
// Engine column types collapse into the four abstract data types.
func (s *Service) Fields(ctx context.Context, dataset string) ([]v1.Field, error) {
	rs, err := s.exec.Query(ctx, queryColumns, []interface{}{dataset})
	if err != nil {
		return nil, fmt.Errorf("describe dataset %q: %w", dataset, err)
	}
	if len(rs.Rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, dataset)
	}

	fields := make([]v1.Field, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) < 2 || row[0].Kind != v1.KindString {
			continue
		}
		fields = append(fields, v1.Field{
			ID:          row[0].Str,
			DisplayName: displayName(row[0].Str),
			DataType:    v1.DataTypeForEngineType(row[1].Str),
		})
	}
	return fields, nil
}

// FieldValues returns the distinct non-null values of one field, sorted
// ascending and capped at limit. Used to populate filter pickers.
func (s *Service) FieldValues(ctx context.Context, dataset, fieldID string, limit int) ([]v1.Value, error) {
	fields, err := s.Fields(ctx, dataset)
	if err != nil {
		return nil, err
	}

	found := false
	for _, f := range fields {
		if f.ID == fieldID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, dataset, fieldID)
	}

	col := engine.QuoteIdent(fieldID)
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s ASC LIMIT $1`,
		col, engine.QuoteIdent(dataset), col, col)

	rs, err := s.exec.Query(ctx, query, []interface{}{limit})
	if err != nil {
		return nil, fmt.Errorf("list values for %s.%s: %w", dataset, fieldID, err)
	}

	values := make([]v1.Value, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) > 0 {
			values = append(values, row[0])
		}
	}
	return values, nil
}

// displayName derives a human label from a column name: snake_case and
// kebab-case become Title Case words.
func displayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
