package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// criticalKeywords flags a row as carrying a critical violation when any
// entry is a case-insensitive substring of the violation description. This
// mirrors the wording used by inspectors in the DOHMH free-text field; it
// is a heuristic, not an authoritative classification.
var criticalKeywords = []string{
	"rodent", "roaches", "sewage", "no hot water",
	"no hot", "improper holding", "critical", "major",
	"risk", "imminent", "closure",
}

// gradeRenames maps legacy grade spellings to the normalized vocabulary.
var gradeRenames = map[string]string{
	"N/A": GradeNotApplicable,
}

// dateLayouts are tried in order when parsing inspection dates. The DOHMH
// export has shifted between ISO timestamps and US-style dates over the
// years.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Raw field names in the DOHMH export. Column names are trimmed before
// lookup because the CSV header occasionally carries stray whitespace.
const (
	fieldEstablishmentID      = "camis"
	fieldInspectionDate       = "inspection_date"
	fieldScore                = "score"
	fieldGrade                = "grade"
	fieldViolationCode        = "violation_code"
	fieldViolationDescription = "violation_description"
	fieldAction               = "action"
	fieldZipcode              = "zipcode"
	fieldPostalCode           = "postal_code"
	fieldLatitude             = "latitude"
	fieldLongitude            = "longitude"
)

// NormalizeRows normalizes every raw row, preserving order and count. Rows
// are never dropped here, only reclassified.
func NormalizeRows(rows []RawRow) []InspectionRecord {
	records := make([]InspectionRecord, len(rows))
	for i, row := range rows {
		records[i] = NormalizeRow(row)
	}
	return records
}

// NormalizeRow standardizes one raw row into an InspectionRecord. All
// parsing fails soft: unparseable dates and scores become nil, never
// errors. Originals of transformed fields are kept under raw_-prefixed
// keys.
func NormalizeRow(row RawRow) InspectionRecord {
	fields := trimFieldNames(row)

	rec := InspectionRecord{
		EstablishmentID: strings.TrimSpace(fields[fieldEstablishmentID]),
		Raw:             retainRaw(fields),
		ProcessedAt:     clock.Now(),
	}

	rec.InspectionDate = parseDate(fields[fieldInspectionDate])
	rec.Score = parseFloat(fields[fieldScore])
	rec.Grade = normalizeGrade(fields[fieldGrade])
	rec.ViolationDescription = fields[fieldViolationDescription]
	rec.IsCritical = containsCriticalKeyword(rec.ViolationDescription)
	rec.ViolationCode = optionalString(fields[fieldViolationCode])
	rec.Action = optionalString(fields[fieldAction])
	rec.Latitude = parseFloat(fields[fieldLatitude])
	rec.Longitude = parseFloat(fields[fieldLongitude])

	// Non-spatial zip precedence: explicit zipcode first, postal code
	// second. Spatial lookup happens later at the resolver boundary.
	if zip := NormalizeZip(fields[fieldZipcode]); zip != nil {
		rec.Zipcode = zip
	} else if zip := NormalizeZip(fields[fieldPostalCode]); zip != nil {
		rec.Zipcode = zip
	}

	return rec
}

// trimFieldNames copies the row with whitespace-trimmed keys. Keys that
// collide after trimming resolve deterministically: a non-empty value
// wins, then an already-trimmed key, then the lexicographically smaller
// raw key. Map iteration order never decides the outcome.
func trimFieldNames(row RawRow) RawRow {
	out := make(RawRow, len(row))
	winners := make(map[string]string, len(row))
	for k, v := range row {
		trimmed := strings.TrimSpace(k)
		if prev, ok := winners[trimmed]; ok && !outranks(trimmed, k, v, prev, out[trimmed]) {
			continue
		}
		winners[trimmed] = k
		out[trimmed] = v
	}
	return out
}

// outranks reports whether raw key k with value v should displace the
// current winner for a trimmed field name.
func outranks(trimmed, k, v, prevKey, prevVal string) bool {
	if (v != "") != (prevVal != "") {
		return v != ""
	}
	if k == trimmed || prevKey == trimmed {
		return k == trimmed
	}
	return k < prevKey
}

// retainRaw keeps the pre-normalization value of each transformed field
// under a raw_ prefix. Purely additive; nothing downstream consults it.
func retainRaw(fields RawRow) map[string]string {
	raw := make(map[string]string)
	for _, f := range []string{fieldViolationDescription, fieldGrade, fieldScore, fieldInspectionDate} {
		if v, ok := fields[f]; ok {
			raw["raw_"+f] = v
		}
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	// ParseFloat accepts the literals NaN and Inf. Neither is a usable
	// score, and a NaN would poison downstream medians, so treat both as
	// missing like any other unparseable value.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// normalizeGrade uppercases, trims, and applies the rename table. Unknown
// non-empty grades pass through unchanged rather than being coerced to
// missing.
func normalizeGrade(s string) string {
	g := strings.ToUpper(strings.TrimSpace(s))
	if g == "" {
		return ""
	}
	if renamed, ok := gradeRenames[g]; ok {
		return renamed
	}
	return g
}

func containsCriticalKeyword(description string) bool {
	d := strings.ToLower(description)
	for _, kw := range criticalKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

// NormalizeZip converts a free-text zip or postal value into a 5-character
// zero-padded string, or nil when empty.
func NormalizeZip(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) > 5 {
		s = s[:5]
	}
	for len(s) < 5 {
		s = "0" + s
	}
	return &s
}

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
