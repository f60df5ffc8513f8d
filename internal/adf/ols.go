package adf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// olsResult holds what the unit-root test needs from a least squares fit.
type olsResult struct {
	beta    []float64
	tvalues []float64
	ssr     float64
	nobs    int
	k       int
}

// aic matches the Gaussian log-likelihood based criterion used for lag
// selection: nobs*(log(2π)+log(ssr/nobs)+1) + 2k.
func (r olsResult) aic() float64 {
	n := float64(r.nobs)
	return n*(math.Log(2*math.Pi)+math.Log(r.ssr/n)+1) + 2*float64(r.k)
}

// ols fits y = X·beta by the normal equations.
func ols(y []float64, x *mat.Dense) (olsResult, error) {
	n, k := x.Dims()
	if n != len(y) {
		return olsResult{}, fmt.Errorf("%w: design has %d rows, response has %d", ErrInsufficientData, n, len(y))
	}
	if n <= k {
		return olsResult{}, fmt.Errorf("%w: %d observations for %d regressors", ErrInsufficientData, n, k)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return olsResult{}, fmt.Errorf("%w: singular design matrix", ErrInsufficientData)
	}

	yv := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yv)

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return olsResult{}, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	ssr := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		ssr += r * r
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return olsResult{}, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}

	sigma2 := ssr / float64(n-k)
	res := olsResult{
		beta:    make([]float64, k),
		tvalues: make([]float64, k),
		ssr:     ssr,
		nobs:    n,
		k:       k,
	}
	for j := 0; j < k; j++ {
		res.beta[j] = beta.AtVec(j)
		res.tvalues[j] = res.beta[j] / math.Sqrt(sigma2*inv.At(j, j))
	}
	return res, nil
}
