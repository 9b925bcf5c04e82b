package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHygieneIndex(t *testing.T) {
	t.Run("worse inputs score higher", func(t *testing.T) {
		visits := []InspectionVisit{
			{EstablishmentID: "E1", InspectionDate: datePtr(2023, 1, 10), Score: floatPtr(50), CriticalViolations: 2, ViolationCount: 4},
			{EstablishmentID: "E1", InspectionDate: datePtr(2023, 3, 15), Score: floatPtr(10), CriticalViolations: 0, ViolationCount: 1},
		}

		out := ComputeHygieneIndex(visits, DefaultWeights)
		require.Len(t, out, 2)
		require.NotNil(t, out[0].HygieneIndex)
		require.NotNil(t, out[1].HygieneIndex)
		assert.Greater(t, *out[0].HygieneIndex, *out[1].HygieneIndex)
	})

	t.Run("index stays in range", func(t *testing.T) {
		visits := []InspectionVisit{
			{Score: floatPtr(0), CriticalViolations: 0, ViolationCount: 0},
			{Score: floatPtr(30), CriticalViolations: 1, ViolationCount: 3},
			{Score: floatPtr(90), CriticalViolations: 5, ViolationCount: 12},
			{Score: nil, CriticalViolations: 2, ViolationCount: 2},
		}

		for _, v := range ComputeHygieneIndex(visits, DefaultWeights) {
			require.NotNil(t, v.HygieneIndex)
			assert.GreaterOrEqual(t, *v.HygieneIndex, 0.0)
			assert.LessOrEqual(t, *v.HygieneIndex, 100.0)
		}
	})

	t.Run("constant cohort yields zero everywhere", func(t *testing.T) {
		visits := []InspectionVisit{
			{Score: floatPtr(20), CriticalViolations: 1, ViolationCount: 2},
			{Score: floatPtr(20), CriticalViolations: 1, ViolationCount: 2},
			{Score: floatPtr(20), CriticalViolations: 1, ViolationCount: 2},
		}

		for _, v := range ComputeHygieneIndex(visits, DefaultWeights) {
			require.NotNil(t, v.HygieneIndex)
			assert.Equal(t, 0.0, *v.HygieneIndex)
		}
	})

	t.Run("cohort of one yields zero", func(t *testing.T) {
		out := ComputeHygieneIndex([]InspectionVisit{
			{Score: floatPtr(99), CriticalViolations: 7, ViolationCount: 9},
		}, DefaultWeights)

		require.Len(t, out, 1)
		require.NotNil(t, out[0].HygieneIndex)
		assert.Equal(t, 0.0, *out[0].HygieneIndex)
	})

	t.Run("constant critical component contributes nothing", func(t *testing.T) {
		// Three visits, all zero criticals: only score and violation count
		// can separate them, regardless of the critical weight.
		heavyCritical := Weights{Score: 0, Critical: 1, ViolationCount: 0}
		visits := []InspectionVisit{
			{Score: floatPtr(10), CriticalViolations: 0, ViolationCount: 1},
			{Score: floatPtr(50), CriticalViolations: 0, ViolationCount: 5},
			{Score: floatPtr(90), CriticalViolations: 0, ViolationCount: 9},
		}

		for _, v := range ComputeHygieneIndex(visits, heavyCritical) {
			require.NotNil(t, v.HygieneIndex)
			assert.Equal(t, 0.0, *v.HygieneIndex)
		}
	})

	t.Run("missing scores fill with cohort median", func(t *testing.T) {
		visits := []InspectionVisit{
			{Score: floatPtr(10), CriticalViolations: 0, ViolationCount: 0},
			{Score: floatPtr(30), CriticalViolations: 0, ViolationCount: 0},
			{Score: nil, CriticalViolations: 0, ViolationCount: 0},
			{Score: floatPtr(50), CriticalViolations: 0, ViolationCount: 0},
		}

		out := ComputeHygieneIndex(visits, Weights{Score: 1})
		require.Len(t, out, 4)
		// Median of {10,30,50} is 30, so the filled visit ranks with the
		// 30-score one.
		assert.InDelta(t, *out[1].HygieneIndex, *out[2].HygieneIndex, 1e-6)
	})

	t.Run("non-numeric score literals fill like missing", func(t *testing.T) {
		records := NormalizeRows([]RawRow{
			{"camis": "1", "inspection_date": "2023-01-10", "score": "10"},
			{"camis": "1", "inspection_date": "2023-02-10", "score": "NaN"},
			{"camis": "1", "inspection_date": "2023-03-10", "score": "30"},
		})

		out := ComputeHygieneIndex(BuildHistory(records), DefaultWeights)
		require.Len(t, out, 3)
		for _, v := range out {
			require.NotNil(t, v.HygieneIndex)
			assert.False(t, *v.HygieneIndex != *v.HygieneIndex, "index must not be NaN")
			assert.GreaterOrEqual(t, *v.HygieneIndex, 0.0)
			assert.LessOrEqual(t, *v.HygieneIndex, 100.0)
		}
	})

	t.Run("all scores missing does not divide by zero", func(t *testing.T) {
		visits := []InspectionVisit{
			{Score: nil, CriticalViolations: 0, ViolationCount: 1},
			{Score: nil, CriticalViolations: 3, ViolationCount: 5},
		}

		out := ComputeHygieneIndex(visits, DefaultWeights)
		for _, v := range out {
			require.NotNil(t, v.HygieneIndex)
			assert.False(t, *v.HygieneIndex != *v.HygieneIndex, "index must not be NaN")
		}
		assert.Greater(t, *out[1].HygieneIndex, *out[0].HygieneIndex)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		visits := []InspectionVisit{{Score: floatPtr(10)}}
		ComputeHygieneIndex(visits, DefaultWeights)
		assert.Nil(t, visits[0].HygieneIndex)
	})

	t.Run("empty cohort", func(t *testing.T) {
		assert.Empty(t, ComputeHygieneIndex(nil, DefaultWeights))
	})
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"odd count", []float64{3, 1, 2}, 2},
		{"even count averages middle pair", []float64{4, 1, 3, 2}, 2.5},
		{"single value", []float64{7}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, median(tt.values))
		})
	}
}
