package domain

import "sort"

// Weights are the relative contributions of the three hygiene-index
// components. They are configurable; DefaultWeights matches the published
// methodology.
type Weights struct {
	Score          float64
	Critical       float64
	ViolationCount float64
}

// DefaultWeights weights critical violations heaviest, the numeric score
// next, and the total violation count lightly.
var DefaultWeights = Weights{Score: 0.4, Critical: 0.5, ViolationCount: 0.1}

// epsilon pads every min-max denominator so constant components scale to
// exactly 0 instead of dividing by zero.
const epsilon = 1e-9

// ComputeHygieneIndex derives a 0-100 severity index (higher = worse) for
// every visit in the cohort, via weighted min-max scaling of the inspection
// score, the critical-violation count, and the total violation count.
//
// The index is relative to the cohort passed in: min and max are taken over
// exactly these visits, so re-running with a different cohort boundary
// changes every value. A cohort where all three components are constant
// yields index 0 for every visit. The input is not mutated.
func ComputeHygieneIndex(visits []InspectionVisit, w Weights) []InspectionVisit {
	out := make([]InspectionVisit, len(visits))
	copy(out, visits)
	if len(out) == 0 {
		return out
	}

	scoreScaled := scaleScores(out)

	critical := make([]float64, len(out))
	violations := make([]float64, len(out))
	for i, v := range out {
		critical[i] = float64(v.CriticalViolations)
		violations[i] = float64(v.ViolationCount)
	}
	criticalScaled := minMaxScale(critical)
	violationScaled := minMaxScale(violations)

	raw := make([]float64, len(out))
	for i := range out {
		raw[i] = w.Score*scoreScaled[i] + w.Critical*criticalScaled[i] + w.ViolationCount*violationScaled[i]
	}

	index := minMaxScale(raw)
	for i := range out {
		v := 100 * index[i]
		out[i].HygieneIndex = &v
	}
	return out
}

// scaleScores min-max scales the score component, filling missing scores
// with the cohort median. When no visit has a score the component
// contributes 0 everywhere rather than propagating NaN.
func scaleScores(visits []InspectionVisit) []float64 {
	var present []float64
	for _, v := range visits {
		if v.Score != nil {
			present = append(present, *v.Score)
		}
	}
	scaled := make([]float64, len(visits))
	if len(present) == 0 {
		return scaled
	}

	med := median(present)
	filled := make([]float64, len(visits))
	for i, v := range visits {
		if v.Score != nil {
			filled[i] = *v.Score
		} else {
			filled[i] = med
		}
	}
	return minMaxScale(filled)
}

// minMaxScale maps values onto [0,1] via (v-min)/(max-min+epsilon). A
// constant input maps to all zeros.
func minMaxScale(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - min) / (max - min + epsilon)
	}
	return out
}

// median returns the midpoint of the sorted values, averaging the two
// central elements for even counts.
func median(values []float64) float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
