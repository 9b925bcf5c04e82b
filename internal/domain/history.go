package domain

import (
	"sort"
	"time"
)

// BuildHistory collapses normalized records into one InspectionVisit per
// (establishment, inspection date) pair and derives ordinal numbering and
// inter-visit lags from the collapsed sequence.
//
// Records with a nil date collapse into a single undated visit per
// establishment, ordered after every dated visit. That coarsening is a
// deliberate determinism policy: the alternative of keeping each undated
// row as its own visit would make ordinals depend on arbitrary grouping.
func BuildHistory(records []InspectionRecord) []InspectionVisit {
	sorted := make([]InspectionRecord, len(records))
	copy(sorted, records)

	// Stable sort so ties keep input order; that makes both the grouping
	// and the first-row-wins field selection deterministic.
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EstablishmentID != sorted[j].EstablishmentID {
			return sorted[i].EstablishmentID < sorted[j].EstablishmentID
		}
		return dateLess(sorted[i].InspectionDate, sorted[j].InspectionDate)
	})

	var visits []InspectionVisit
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sameVisit(sorted[start], sorted[end]) {
			end++
		}
		visits = append(visits, collapseGroup(sorted[start:end]))
		start = end
	}

	numberVisits(visits)
	return visits
}

// dateLess orders dates ascending with nil sorting last.
func dateLess(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

func sameVisit(a, b InspectionRecord) bool {
	if a.EstablishmentID != b.EstablishmentID {
		return false
	}
	if a.InspectionDate == nil || b.InspectionDate == nil {
		return a.InspectionDate == nil && b.InspectionDate == nil
	}
	return a.InspectionDate.Equal(*b.InspectionDate)
}

// collapseGroup turns the raw rows of one visit into a single
// InspectionVisit. Score, grade, action, and zipcode come from the first
// row in original order (first-row-wins tie-break).
func collapseGroup(group []InspectionRecord) InspectionVisit {
	first := group[0]
	visit := InspectionVisit{
		EstablishmentID: first.EstablishmentID,
		InspectionDate:  first.InspectionDate,
		Score:           first.Score,
		Grade:           first.Grade,
		Action:          first.Action,
		Zipcode:         first.Zipcode,
	}

	hasCode := false
	described := 0
	for _, rec := range group {
		if rec.ViolationCode != nil {
			hasCode = true
		}
		if rec.ViolationDescription != "" {
			described++
		}
		if rec.IsCritical {
			visit.CriticalViolations++
		}
	}

	// Datasets with one row per violation carry a violation code on each
	// row; there the group size is the violation count. Without codes the
	// best signal is how many rows actually describe a violation.
	if hasCode {
		visit.ViolationCount = len(group)
	} else {
		visit.ViolationCount = described
	}

	return visit
}

// numberVisits assigns 1-based ordinals and lag fields per establishment.
// Visits arrive sorted by (establishment, date), so a single pass with a
// previous-visit cursor suffices.
func numberVisits(visits []InspectionVisit) {
	for i := range visits {
		if i == 0 || visits[i].EstablishmentID != visits[i-1].EstablishmentID {
			visits[i].InspectionNumber = 1
			continue
		}
		visits[i].InspectionNumber = visits[i-1].InspectionNumber + 1
		visits[i].PrevInspectionDate = visits[i-1].InspectionDate

		if visits[i].InspectionDate != nil && visits[i].PrevInspectionDate != nil {
			days := int(visits[i].InspectionDate.Sub(*visits[i].PrevInspectionDate).Hours() / 24)
			visits[i].DaysSincePrev = &days
		}
	}
}
