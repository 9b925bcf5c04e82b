package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateByZip(t *testing.T) {
	t.Run("groups by zip and month", func(t *testing.T) {
		visits := []InspectionVisit{
			{EstablishmentID: "E1", InspectionDate: datePtr(2023, 1, 5), Zipcode: strPtr("10023"), HygieneIndex: floatPtr(40), Score: floatPtr(10), CriticalViolations: 1},
			{EstablishmentID: "E2", InspectionDate: datePtr(2023, 1, 20), Zipcode: strPtr("10023"), HygieneIndex: floatPtr(60), Score: floatPtr(30), CriticalViolations: 3},
			{EstablishmentID: "E1", InspectionDate: datePtr(2023, 2, 5), Zipcode: strPtr("10023"), HygieneIndex: floatPtr(20), Score: floatPtr(5)},
			{EstablishmentID: "E3", InspectionDate: datePtr(2023, 1, 7), Zipcode: strPtr("11201"), HygieneIndex: floatPtr(80), Action: strPtr("Establishment Closed by DOHMH")},
		}

		aggs := AggregateByZip(visits, Monthly)
		require.Len(t, aggs, 3)

		jan := aggs[0]
		assert.Equal(t, "10023", jan.Zipcode)
		assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), jan.Period)
		assert.Equal(t, 2, jan.Inspections)
		assert.Equal(t, 2, jan.UniqueEstablishments)
		require.NotNil(t, jan.MeanHygieneIndex)
		assert.Equal(t, 50.0, *jan.MeanHygieneIndex)
		require.NotNil(t, jan.MedianHygieneIndex)
		assert.Equal(t, 50.0, *jan.MedianHygieneIndex)
		require.NotNil(t, jan.MeanScore)
		assert.Equal(t, 20.0, *jan.MeanScore)
		assert.Equal(t, 2.0, jan.MeanCriticalViolations)
		assert.Equal(t, 0.0, jan.ClosureShare)

		feb := aggs[1]
		assert.Equal(t, "10023", feb.Zipcode)
		assert.Equal(t, time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), feb.Period)
		assert.Equal(t, 1, feb.Inspections)

		brooklyn := aggs[2]
		assert.Equal(t, "11201", brooklyn.Zipcode)
		assert.Equal(t, 1.0, brooklyn.ClosureShare)
	})

	t.Run("excludes nil zip and nil date", func(t *testing.T) {
		visits := []InspectionVisit{
			{EstablishmentID: "E1", InspectionDate: datePtr(2023, 1, 5), Zipcode: nil},
			{EstablishmentID: "E2", InspectionDate: nil, Zipcode: strPtr("10023")},
		}
		assert.Empty(t, AggregateByZip(visits, Monthly))
	})

	t.Run("emitted count matches matching visits", func(t *testing.T) {
		visits := []InspectionVisit{
			{EstablishmentID: "E1", InspectionDate: datePtr(2023, 1, 5), Zipcode: strPtr("10023")},
			{EstablishmentID: "E2", InspectionDate: datePtr(2023, 1, 6), Zipcode: strPtr("10023")},
			{EstablishmentID: "E3", InspectionDate: datePtr(2023, 1, 7), Zipcode: nil},
		}

		aggs := AggregateByZip(visits, Monthly)
		require.Len(t, aggs, 1)
		assert.Equal(t, 2, aggs[0].Inspections)
	})

	t.Run("closure detection is case-insensitive substring", func(t *testing.T) {
		visits := []InspectionVisit{
			{EstablishmentID: "E1", InspectionDate: datePtr(2023, 1, 5), Zipcode: strPtr("10023"), Action: strPtr("ESTABLISHMENT RE-CLOSED BY DOHMH")},
			{EstablishmentID: "E2", InspectionDate: datePtr(2023, 1, 6), Zipcode: strPtr("10023"), Action: strPtr("Violations cited")},
			{EstablishmentID: "E3", InspectionDate: datePtr(2023, 1, 7), Zipcode: strPtr("10023"), Action: nil},
		}

		aggs := AggregateByZip(visits, Monthly)
		require.Len(t, aggs, 1)
		assert.InDelta(t, 1.0/3.0, aggs[0].ClosureShare, 1e-9)
	})

	t.Run("mean score nil when no visit has a score", func(t *testing.T) {
		visits := []InspectionVisit{
			{EstablishmentID: "E1", InspectionDate: datePtr(2023, 1, 5), Zipcode: strPtr("10023")},
		}
		aggs := AggregateByZip(visits, Monthly)
		require.Len(t, aggs, 1)
		assert.Nil(t, aggs[0].MeanScore)
	})

	t.Run("empty input emits nothing", func(t *testing.T) {
		assert.Empty(t, AggregateByZip(nil, Monthly))
	})
}

func TestBucketPeriod(t *testing.T) {
	tests := []struct {
		name        string
		in          time.Time
		granularity Granularity
		expected    time.Time
	}{
		{"mid-month to month start", time.Date(2023, 3, 17, 14, 0, 0, 0, time.UTC), Monthly, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"month start unchanged", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), Monthly, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"may to q2", time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC), Quarterly, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"december to q4", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), Quarterly, time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bucketPeriod(tt.in, tt.granularity))
		})
	}
}
