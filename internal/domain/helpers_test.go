package domain

import "time"

// Test helpers shared across the domain test files.

func datePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }
