package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/civicdata/inspection-etl/internal/domain"
)

// RowTransformer implements Transformer using domain normalization
// functions with optional spatial zip resolution.
type RowTransformer struct {
	resolver domain.ZipResolver
	logger   *slog.Logger
}

// NewTransformer creates a RowTransformer. Pass a nil resolver to disable
// spatial zip resolution.
func NewTransformer(resolver domain.ZipResolver, logger *slog.Logger) *RowTransformer {
	return &RowTransformer{
		resolver: resolver,
		logger:   logger,
	}
}

func (t *RowTransformer) Transform(ctx context.Context, raw domain.RawRowEvent) (domain.InspectionRecord, error) {
	var row domain.RawRow
	if err := json.Unmarshal(raw.Value, &row); err != nil {
		return domain.InspectionRecord{}, fmt.Errorf("decoding raw row: %w", err)
	}

	rec := domain.NormalizeRow(row)
	rec = domain.ResolveZip(ctx, rec, t.resolver, t.logger)

	return rec, nil
}
