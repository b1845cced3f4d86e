package solver

import (
	"math"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

// conditionTolerance is the smallest squared Cholesky pivot accepted once the
// normal matrix is scaled to unit diagonal. A smaller pivot means the
// parameter's column is within about 1e-4 of the span of the others, i.e. a
// condition number above roughly 1e8.
const conditionTolerance = 1e-8

// solveNormal solves the normal equations n·x = g for a small symmetric
// positive semi-definite n. The matrix is scaled to unit diagonal before a
// Cholesky factorisation, so the pivot test measures how close the columns
// are to linear dependence independent of parameter units. n and g are not
// modified.
func solveNormal(n [][]float64, g []float64) ([]float64, error) {
	k := len(g)
	d := make([]float64, k)
	for i := 0; i < k; i++ {
		if !(n[i][i] > 0) {
			return nil, domain.ErrSingularMatrix
		}
		d[i] = 1 / math.Sqrt(n[i][i])
	}

	l := make([][]float64, k)
	for i := range l {
		l[i] = make([]float64, k)
	}
	for j := 0; j < k; j++ {
		pivot := 1.0
		for p := 0; p < j; p++ {
			pivot -= l[j][p] * l[j][p]
		}
		if pivot < conditionTolerance {
			return nil, domain.ErrSingularMatrix
		}
		l[j][j] = math.Sqrt(pivot)
		for i := j + 1; i < k; i++ {
			s := n[i][j] * d[i] * d[j]
			for p := 0; p < j; p++ {
				s -= l[i][p] * l[j][p]
			}
			l[i][j] = s / l[j][j]
		}
	}

	// L·y = D·g, then Lᵀ·z = y, then x = D·z.
	y := make([]float64, k)
	for i := 0; i < k; i++ {
		s := g[i] * d[i]
		for p := 0; p < i; p++ {
			s -= l[i][p] * y[p]
		}
		y[i] = s / l[i][i]
	}
	x := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		s := y[i]
		for p := i + 1; p < k; p++ {
			s -= l[p][i] * x[p]
		}
		x[i] = s / l[i][i]
	}
	for i := range x {
		x[i] *= d[i]
	}
	return x, nil
}
