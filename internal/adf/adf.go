// Package adf implements the Augmented Dickey-Fuller unit-root test with a
// constant term and AIC lag selection.
package adf

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientData is returned when the series is empty, constant or too
// short for lag selection.
var ErrInsufficientData = errors.New("insufficient data for ADF test")

// Significance is the p-value below which a series is considered stationary.
const Significance = 0.05

// Verdict is the outcome of a stationarity test.
type Verdict struct {
	Statistic      float64            `json:"adf_statistic"`
	PValue         float64            `json:"p_value"`
	CriticalValues map[string]float64 `json:"critical_values"`
	Stationary     bool               `json:"is_stationary"`
	UsedLag        int                `json:"used_lag"`
	NObs           int                `json:"nobs"`
}

// MaxLag is the default upper bound for lag selection, 12*(nobs/100)^(1/4),
// capped so that at least the constant and level regressors remain estimable.
func MaxLag(nobs int) int {
	lag := int(math.Ceil(12 * math.Pow(float64(nobs)/100, 0.25)))
	if limit := nobs/2 - 1 - 1; limit < lag {
		lag = limit
	}
	return lag
}

// Test runs the ADF regression
//
//	Δx[t] = c + γ·x[t] + Σ δ_i·Δx[t-i] + e[t]
//
// choosing the number of lagged differences by minimum AIC, and reports the
// t-statistic of γ.
func Test(x []float64) (Verdict, error) {
	nobs := len(x)
	if nobs == 0 {
		return Verdict{}, fmt.Errorf("%w: empty series", ErrInsufficientData)
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Verdict{}, fmt.Errorf("%w: non-finite value at index %d", ErrInsufficientData, i)
		}
	}
	if floats.Max(x) == floats.Min(x) {
		return Verdict{}, fmt.Errorf("%w: series is constant", ErrInsufficientData)
	}

	maxlag := MaxLag(nobs)
	if maxlag < 0 {
		return Verdict{}, fmt.Errorf("%w: %d observations", ErrInsufficientData, nobs)
	}

	xdiff := make([]float64, nobs-1)
	for i := range xdiff {
		xdiff[i] = x[i+1] - x[i]
	}

	// Every candidate lag is fitted on the sample the largest lag allows so
	// that the information criteria are comparable.
	bestLag, bestAIC := -1, math.Inf(1)
	for lag := 0; lag <= maxlag; lag++ {
		y, design := designMatrix(x, xdiff, maxlag, lag)
		res, err := ols(y, design)
		if err != nil {
			continue
		}
		if aic := res.aic(); aic < bestAIC || bestLag < 0 {
			bestLag, bestAIC = lag, aic
		}
	}
	if bestLag < 0 {
		return Verdict{}, fmt.Errorf("%w: no lag order could be estimated", ErrInsufficientData)
	}

	y, design := designMatrix(x, xdiff, bestLag, bestLag)
	res, err := ols(y, design)
	if err != nil {
		return Verdict{}, err
	}

	stat := res.tvalues[1]
	if math.IsNaN(stat) || math.IsInf(stat, 0) {
		return Verdict{}, fmt.Errorf("%w: degenerate regression", ErrInsufficientData)
	}
	p := PValue(stat)
	return Verdict{
		Statistic:      stat,
		PValue:         p,
		CriticalValues: CriticalValues(res.nobs),
		Stationary:     p < Significance,
		UsedLag:        bestLag,
		NObs:           res.nobs,
	}, nil
}

// designMatrix builds the response Δx[t] and the regressors
// [1, x[t], Δx[t-1], ..., Δx[t-lag]] for t = trim .. len(xdiff)-1.
func designMatrix(x, xdiff []float64, trim, lag int) ([]float64, *mat.Dense) {
	rows := len(xdiff) - trim
	if rows < 0 {
		rows = 0
	}
	cols := 2 + lag
	y := make([]float64, rows)
	data := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		t := trim + r
		y[r] = xdiff[t]
		data = append(data, 1, x[t])
		for i := 1; i <= lag; i++ {
			data = append(data, xdiff[t-i])
		}
	}
	if rows == 0 {
		return y, mat.NewDense(1, cols, make([]float64, cols))
	}
	return y, mat.NewDense(rows, cols, data)
}
