package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FixedEffectsOLS estimates the within (entity-demeaned) estimator: every
// establishment gets its own intercept, absorbed by subtracting entity
// means from the dependent and each regressor before least squares.
type FixedEffectsOLS struct{}

func (m *FixedEffectsOLS) Name() string { return "fixed_effects_ols" }

// Available probes the linear-algebra backend with a trivial solve.
func (m *FixedEffectsOLS) Available() error {
	a := mat.NewDense(2, 2, []float64{2, 0, 0, 2})
	b := mat.NewVecDense(2, []float64{2, 4})
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return fmt.Errorf("probe solve: %w", err)
	}
	return nil
}

func (m *FixedEffectsOLS) Fit(ds Dataset) (Result, error) {
	n := len(ds.Obs)
	k := len(ds.ExogNames)
	entities := ds.Entities()
	df := n - entities - k
	if df <= 0 {
		return Result{}, fmt.Errorf("fixed effects: %d observations, %d entities, %d regressors: not enough degrees of freedom", n, entities, k)
	}

	yd, xd := demean(ds)

	X := mat.NewDense(n, k, nil)
	y := mat.NewVecDense(n, yd)
	for i := 0; i < n; i++ {
		X.SetRow(i, xd[i])
	}

	var beta mat.VecDense
	if err := beta.SolveVec(X, y); err != nil {
		return Result{}, fmt.Errorf("fixed effects: solve: %w", err)
	}

	stderrs, err := olsStdErrs(X, y, &beta, df)
	if err != nil {
		return Result{}, fmt.Errorf("fixed effects: %w", err)
	}

	res := Result{
		Backend:      m.Name(),
		Observations: n,
		Entities:     entities,
	}
	for j, name := range ds.ExogNames {
		res.Coefficients = append(res.Coefficients, Coefficient{
			Name:     name,
			Estimate: beta.AtVec(j),
			StdErr:   stderrs[j],
		})
	}
	return res, nil
}

// demean subtracts per-entity means from y and every x column.
func demean(ds Dataset) ([]float64, [][]float64) {
	k := len(ds.ExogNames)

	type accum struct {
		n float64
		y float64
		x []float64
	}
	means := make(map[string]*accum)
	for _, o := range ds.Obs {
		a := means[o.Entity]
		if a == nil {
			a = &accum{x: make([]float64, k)}
			means[o.Entity] = a
		}
		a.n++
		a.y += o.Y
		for j, v := range o.X {
			a.x[j] += v
		}
	}

	yd := make([]float64, len(ds.Obs))
	xd := make([][]float64, len(ds.Obs))
	for i, o := range ds.Obs {
		a := means[o.Entity]
		yd[i] = o.Y - a.y/a.n
		row := make([]float64, k)
		for j, v := range o.X {
			row[j] = v - a.x[j]/a.n
		}
		xd[i] = row
	}
	return yd, xd
}

// olsStdErrs computes conventional standard errors from the residual sum
// of squares and the inverse Gram matrix.
func olsStdErrs(X *mat.Dense, y, beta *mat.VecDense, df int) ([]float64, error) {
	n, k := X.Dims()

	var fitted mat.VecDense
	fitted.MulVec(X, beta)
	rss := 0.0
	for i := 0; i < n; i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		rss += r * r
	}
	sigma2 := rss / float64(df)

	var gram mat.Dense
	gram.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&gram); err != nil {
		return nil, fmt.Errorf("invert gram matrix: %w", err)
	}

	stderrs := make([]float64, k)
	for j := 0; j < k; j++ {
		stderrs[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}
	return stderrs, nil
}
