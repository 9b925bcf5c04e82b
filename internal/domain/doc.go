// Package domain models municipal restaurant-inspection records and the
// transformations that turn them into establishment histories and
// neighborhood panels.
//
// # Data Source
//
// Records originate from the DOHMH Restaurant Inspection Results dataset on
// the NYC Open Data portal (resource id 43nn-pn8j). The export has one row
// per cited violation, so a single inspection visit usually spans several
// rows sharing the same CAMIS identifier and inspection date. Older
// extracts and some sister datasets instead carry one row per visit with no
// violation_code column; the history builder handles both shapes.
//
// # Field Conventions
//
// Establishment identifier:
//
//	The CAMIS field is the canonical establishment key, stable across an
//	establishment's inspections. When it is missing the record keeps an
//	empty identifier; no surrogate is ever synthesized from address or
//	phone fields.
//
// Dates and scores:
//
//	Free text, parsed fail-soft. The export has shifted between ISO
//	timestamps ("2023-01-10T00:00:00.000") and US-style dates
//	("01/10/2023"). Anything unparseable becomes a null, which later
//	stages treat as missing data rather than an error.
//
// Grades:
//
//	A / B / C plus the administrative values "Not Yet Graded" and
//	"Not Applicable" (legacy spelling "N/A"). Normalization uppercases,
//	trims, and applies the rename table; unknown non-empty values pass
//	through so new administrative codes are not silently erased.
//
// Critical violations:
//
//	A fixed keyword list matched case-insensitively as substrings of the
//	violation description ("rodent", "sewage", "imminent", ...). Substring
//	matching is intentional: "Evidence of rodent activity" must match.
//	The flag is heuristic and is documented as such wherever it surfaces.
//
// ZIP codes:
//
//	Five characters, zero-padded. Precedence: explicit zipcode field,
//	then postal_code, then spatial lookup through a ZipResolver, then
//	null. Spatial failures degrade to whatever non-spatial value exists.
//
// # Hygiene Index
//
// A 0-100 severity index (higher = worse) computed per cohort from three
// signals: inspection score, critical-violation count, and total violation
// count, each min-max scaled over the cohort and combined with weights
// 0.4 / 0.5 / 0.1. The raw weighted sum is re-scaled to [0,100] over the
// same cohort, so values are only comparable within one computed batch.
// See [ComputeHygieneIndex].
package domain
