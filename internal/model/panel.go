// Package model fits panel regressions of the hygiene index on
// establishment-history covariates.
//
// Backends implement the PanelModel interface and are selected by probing
// at startup rather than by catching failures at call time: the registry is
// walked in preference order and the first backend whose probe succeeds
// wins. The fixed-effects backend is preferred; the pooled backend is the
// dependency-free fallback.
package model

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/civicdata/inspection-etl/internal/domain"
)

// Exogenous regressor names, in column order.
var exogNames = []string{"inspection_number", "critical_violations"}

// Observation is one complete panel row: entity key, dependent value, and
// regressors.
type Observation struct {
	Entity string
	Y      float64
	X      []float64
}

// Dataset is the design matrix handed to a backend. Rows with missing
// values are dropped during construction, never imputed.
type Dataset struct {
	ExogNames []string
	Obs       []Observation
}

// BuildDataset assembles the regression dataset from scored visits:
// hygiene index on inspection number and critical-violation count, with
// the establishment as the panel entity. Visits without a hygiene index or
// an establishment id are dropped.
func BuildDataset(visits []domain.InspectionVisit) Dataset {
	ds := Dataset{ExogNames: exogNames}
	for _, v := range visits {
		if v.HygieneIndex == nil || v.EstablishmentID == "" {
			continue
		}
		ds.Obs = append(ds.Obs, Observation{
			Entity: v.EstablishmentID,
			Y:      *v.HygieneIndex,
			X:      []float64{float64(v.InspectionNumber), float64(v.CriticalViolations)},
		})
	}
	return ds
}

// Entities returns the number of distinct panel entities.
func (d Dataset) Entities() int {
	seen := make(map[string]struct{})
	for _, o := range d.Obs {
		seen[o.Entity] = struct{}{}
	}
	return len(seen)
}

// Coefficient is one estimated regression term.
type Coefficient struct {
	Name     string
	Estimate float64
	StdErr   float64
}

// Result holds a fitted model. Standard errors are conventional OLS errors;
// clustering is out of scope.
type Result struct {
	Backend      string
	Coefficients []Coefficient
	Observations int
	Entities     int
}

// Summary renders the result as the model artifact text.
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Panel model summary\n")
	fmt.Fprintf(&b, "===================\n")
	fmt.Fprintf(&b, "Backend:      %s\n", r.Backend)
	fmt.Fprintf(&b, "Observations: %d\n", r.Observations)
	fmt.Fprintf(&b, "Entities:     %d\n\n", r.Entities)
	fmt.Fprintf(&b, "%-24s %12s %12s\n", "term", "estimate", "std err")
	for _, c := range r.Coefficients {
		fmt.Fprintf(&b, "%-24s %12.6f %12.6f\n", c.Name, c.Estimate, c.StdErr)
	}
	return b.String()
}

// PanelModel is one regression backend.
type PanelModel interface {
	// Name identifies the backend for config selection and summaries.
	Name() string
	// Available probes whether the backend can run in this build.
	Available() error
	// Fit estimates the model. Data problems (too few observations,
	// collinear regressors) are errors; the caller treats modeling
	// failure as a reported, non-fatal stage skip.
	Fit(ds Dataset) (Result, error)
}

// Backends returns the registry in preference order.
func Backends() []PanelModel {
	return []PanelModel{&FixedEffectsOLS{}, &PooledOLS{}}
}

// Select picks a backend: the named one when preferred is set, otherwise
// the first registry entry whose probe passes.
func Select(preferred string, logger *slog.Logger) (PanelModel, error) {
	for _, backend := range Backends() {
		if preferred != "" && backend.Name() != preferred {
			continue
		}
		if err := backend.Available(); err != nil {
			logger.Warn("panel backend unavailable", "backend", backend.Name(), "error", err)
			continue
		}
		return backend, nil
	}
	if preferred != "" {
		return nil, fmt.Errorf("panel backend %q not available", preferred)
	}
	return nil, fmt.Errorf("no panel backend available")
}
