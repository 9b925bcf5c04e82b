package domain

import (
	"context"
	"time"
)

// RawRow is one raw inspection row as delivered by the city open-data
// export: a flat mapping from column name to string value. Missing columns
// are absent keys; empty strings are treated as missing during
// normalization.
type RawRow map[string]string

// RawRowEvent represents an unprocessed message from the source topic.
type RawRowEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Grade vocabulary after normalization. Unknown non-empty grades pass
// through unchanged, so these constants cover the expected values, not an
// exhaustive set.
const (
	GradeA             = "A"
	GradeB             = "B"
	GradeC             = "C"
	GradeNotYetGraded  = "NOT YET GRADED"
	GradeNotApplicable = "NOT APPLICABLE"
)

// InspectionRecord is one normalized raw row, pre-deduplication. When a
// dataset carries one row per violation, several records share the same
// (EstablishmentID, InspectionDate) pair; uniqueness only holds after
// visit collapsing.
type InspectionRecord struct {
	// EstablishmentID is the canonical identifier (the CAMIS field in the
	// DOHMH export). Empty string when unrecoverable, never synthesized
	// from other fields.
	EstablishmentID string `json:"establishment_id"`

	InspectionDate *time.Time `json:"inspection_date,omitempty"`
	Score          *float64   `json:"score,omitempty"`

	// Grade is uppercased and trimmed; "" means missing.
	Grade string `json:"grade,omitempty"`

	ViolationDescription string `json:"violation_description"`

	// IsCritical is a keyword heuristic over ViolationDescription, not an
	// authoritative classification. False positives and negatives occur.
	IsCritical bool `json:"is_critical"`

	ViolationCode *string `json:"violation_code,omitempty"`
	Action        *string `json:"action,omitempty"`

	// Zipcode is a 5-character zero-padded string, filled from the
	// explicit zipcode or postal-code fields during normalization and by
	// spatial lookup afterwards. Nil when no source could supply one.
	Zipcode *string `json:"zipcode,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Raw retains the original value of each transformed field under a
	// raw_-prefixed key for traceability. Downstream stages never read it.
	Raw map[string]string `json:"raw,omitempty"`

	ProcessedAt time.Time `json:"processed_at"`
}

// InspectionVisit is one inspection event for one establishment on one
// date, after collapsing per-violation rows. Regenerated in full on every
// pipeline run.
type InspectionVisit struct {
	EstablishmentID string     `json:"establishment_id"`
	InspectionDate  *time.Time `json:"inspection_date,omitempty"`

	// InspectionNumber is the 1-based ordinal of this visit among the
	// establishment's visits, date ascending.
	InspectionNumber   int        `json:"inspection_number"`
	PrevInspectionDate *time.Time `json:"prev_inspection_date,omitempty"`
	DaysSincePrev      *int       `json:"days_since_prev,omitempty"`

	ViolationCount     int `json:"violation_count"`
	CriticalViolations int `json:"critical_violations"`

	Score   *float64 `json:"score,omitempty"`
	Grade   string   `json:"grade,omitempty"`
	Action  *string  `json:"action,omitempty"`
	Zipcode *string  `json:"zipcode,omitempty"`

	// HygieneIndex is in [0,100], higher meaning worse hygiene. Set by
	// ComputeHygieneIndex relative to a cohort; nil until then.
	HygieneIndex *float64 `json:"hygiene_index,omitempty"`
}

// ZipPeriodAggregate is one (zipcode, period) cell of the neighborhood
// panel. Only observed combinations exist; absence means no data.
type ZipPeriodAggregate struct {
	Zipcode string    `json:"zipcode"`
	Period  time.Time `json:"period"`

	MeanHygieneIndex   *float64 `json:"mean_hygiene_index,omitempty"`
	MedianHygieneIndex *float64 `json:"median_hygiene_index,omitempty"`

	Inspections          int `json:"inspections"`
	UniqueEstablishments int `json:"unique_establishments"`

	// MeanScore averages only visits with a non-null score; nil when none
	// have one.
	MeanScore              *float64 `json:"mean_score,omitempty"`
	MeanCriticalViolations float64  `json:"mean_critical_violations"`

	// ClosureShare is the fraction of visits whose action text contains a
	// closure indicator. Null actions count as not closed.
	ClosureShare float64 `json:"closure_share"`
}
