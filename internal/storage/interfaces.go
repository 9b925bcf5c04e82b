package storage

import (
	"context"

	"github.com/civicdata/inspection-etl/internal/domain"
)

// VisitWriter persists the establishment-visit history artifact.
type VisitWriter interface {
	WriteVisits(ctx context.Context, visits []domain.InspectionVisit) error
}

// AggregateWriter persists the zip/period aggregate artifact.
type AggregateWriter interface {
	WriteAggregates(ctx context.Context, aggs []domain.ZipPeriodAggregate) error
}
