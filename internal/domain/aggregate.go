package domain

import (
	"sort"
	"strings"
	"time"
)

// Granularity selects the fixed time-bucket size for zip-level
// aggregation. Buckets are keyed by their start instant in UTC.
type Granularity string

const (
	Monthly   Granularity = "month"
	Quarterly Granularity = "quarter"
)

// closureIndicator marks a visit as a closure when it appears
// case-insensitively in the action text.
const closureIndicator = "closed"

// AggregateByZip rolls visits up to (zipcode, period) cells. Visits with a
// nil zipcode or nil inspection date are excluded entirely; no cell is ever
// emitted for an unobserved combination, so absence means "no data", not
// "zero inspections". Output is sorted by zipcode then period.
func AggregateByZip(visits []InspectionVisit, g Granularity) []ZipPeriodAggregate {
	type key struct {
		zip    string
		period time.Time
	}
	groups := make(map[key][]InspectionVisit)
	for _, v := range visits {
		if v.Zipcode == nil || v.InspectionDate == nil {
			continue
		}
		k := key{zip: *v.Zipcode, period: bucketPeriod(*v.InspectionDate, g)}
		groups[k] = append(groups[k], v)
	}

	aggs := make([]ZipPeriodAggregate, 0, len(groups))
	for k, group := range groups {
		aggs = append(aggs, summarize(k.zip, k.period, group))
	}

	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].Zipcode != aggs[j].Zipcode {
			return aggs[i].Zipcode < aggs[j].Zipcode
		}
		return aggs[i].Period.Before(aggs[j].Period)
	})
	return aggs
}

// bucketPeriod truncates a date to the start of its calendar bucket in UTC.
func bucketPeriod(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	month := t.Month()
	if g == Quarterly {
		month = time.Month((int(month)-1)/3*3 + 1)
	}
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}

func summarize(zip string, period time.Time, group []InspectionVisit) ZipPeriodAggregate {
	agg := ZipPeriodAggregate{
		Zipcode:     zip,
		Period:      period,
		Inspections: len(group),
	}

	establishments := make(map[string]struct{})
	var hygiene, scores []float64
	var criticalTotal float64
	closures := 0

	for _, v := range group {
		establishments[v.EstablishmentID] = struct{}{}
		if v.HygieneIndex != nil {
			hygiene = append(hygiene, *v.HygieneIndex)
		}
		if v.Score != nil {
			scores = append(scores, *v.Score)
		}
		criticalTotal += float64(v.CriticalViolations)
		if v.Action != nil && strings.Contains(strings.ToLower(*v.Action), closureIndicator) {
			closures++
		}
	}

	agg.UniqueEstablishments = len(establishments)
	agg.MeanCriticalViolations = criticalTotal / float64(len(group))
	agg.ClosureShare = float64(closures) / float64(len(group))

	if len(hygiene) > 0 {
		m := mean(hygiene)
		agg.MeanHygieneIndex = &m
		md := median(hygiene)
		agg.MedianHygieneIndex = &md
	}
	if len(scores) > 0 {
		m := mean(scores)
		agg.MeanScore = &m
	}
	return agg
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
