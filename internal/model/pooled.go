package model

import (
	"fmt"
	"math"
)

// PooledOLS is the fallback backend: ordinary least squares with an
// intercept, ignoring the panel structure. Implemented on normal equations
// with a hand-rolled Gauss-Jordan inverse so it carries no dependencies.
type PooledOLS struct{}

func (m *PooledOLS) Name() string { return "pooled_ols" }

func (m *PooledOLS) Available() error { return nil }

func (m *PooledOLS) Fit(ds Dataset) (Result, error) {
	n := len(ds.Obs)
	k := len(ds.ExogNames)
	p := k + 1 // intercept first
	df := n - p
	if df <= 0 {
		return Result{}, fmt.Errorf("pooled ols: %d observations for %d parameters", n, p)
	}

	// Build X'X and X'y directly; p stays tiny here.
	xtx := make([][]float64, p)
	for i := range xtx {
		xtx[i] = make([]float64, p)
	}
	xty := make([]float64, p)
	row := make([]float64, p)
	for _, o := range ds.Obs {
		row[0] = 1
		copy(row[1:], o.X)
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				xtx[i][j] += row[i] * row[j]
			}
			xty[i] += row[i] * o.Y
		}
	}

	inv, err := invert(xtx)
	if err != nil {
		return Result{}, fmt.Errorf("pooled ols: %w", err)
	}

	beta := make([]float64, p)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			beta[i] += inv[i][j] * xty[j]
		}
	}

	rss := 0.0
	for _, o := range ds.Obs {
		fitted := beta[0]
		for j, v := range o.X {
			fitted += beta[j+1] * v
		}
		r := o.Y - fitted
		rss += r * r
	}
	sigma2 := rss / float64(df)

	res := Result{
		Backend:      m.Name(),
		Observations: n,
		Entities:     ds.Entities(),
	}
	res.Coefficients = append(res.Coefficients, Coefficient{
		Name:     "const",
		Estimate: beta[0],
		StdErr:   math.Sqrt(sigma2 * inv[0][0]),
	})
	for j, name := range ds.ExogNames {
		res.Coefficients = append(res.Coefficients, Coefficient{
			Name:     name,
			Estimate: beta[j+1],
			StdErr:   math.Sqrt(sigma2 * inv[j+1][j+1]),
		})
	}
	return res, nil
}

// invert computes a matrix inverse by Gauss-Jordan elimination with
// partial pivoting. Only ever called on small (k+1)-square matrices.
func invert(m [][]float64) ([][]float64, error) {
	n := len(m)
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular design matrix")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		scale := aug[col][col]
		for j := range aug[col] {
			aug[col][j] /= scale
		}
		for r := 0; r < n; r++ {
			if r == col || aug[r][col] == 0 {
				continue
			}
			factor := aug[r][col]
			for j := range aug[r] {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = aug[i][n:]
	}
	return inv, nil
}
