package domain

import (
	"context"
	"log/slog"
)

// ZipResolver maps a WGS-84 coordinate to the 5-digit ZIP code whose
// polygon contains it. Implementations return an empty string (no error)
// when no polygon contains the point.
type ZipResolver interface {
	LookupZip(ctx context.Context, lat, lon float64) (string, error)
}

// ResolveZip fills a record's zipcode by spatial lookup when the explicit
// and postal-code fields already consumed during normalization yielded
// nothing. Failures degrade to whatever zip value is already present;
// nothing here aborts a run.
func ResolveZip(ctx context.Context, rec InspectionRecord, resolver ZipResolver, logger *slog.Logger) InspectionRecord {
	if rec.Zipcode != nil {
		return rec
	}
	if resolver == nil || rec.Latitude == nil || rec.Longitude == nil {
		return rec
	}

	zip, err := resolver.LookupZip(ctx, *rec.Latitude, *rec.Longitude)
	if err != nil {
		logger.Warn("spatial zip lookup failed",
			"establishment_id", rec.EstablishmentID,
			"lat", *rec.Latitude,
			"lon", *rec.Longitude,
			"error", err,
		)
		return rec
	}
	rec.Zipcode = NormalizeZip(zip)
	return rec
}
