package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// degenerateTolerance is the relative standard deviation under which a spread
// is treated as constant.
const degenerateTolerance = 1e-12

// Align inner-joins two series on their timestamps. The returned series share
// the same ordered index, which holds exactly the instants present in both.
func Align(a, b Series) (Series, Series, error) {
	if err := a.Validate(); err != nil {
		return nil, nil, fmt.Errorf("left series: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, nil, fmt.Errorf("right series: %w", err)
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	left := make(Series, 0, n)
	right := make(Series, 0, n)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Time.Equal(b[j].Time):
			left = append(left, a[i])
			right = append(right, Point{Time: a[i].Time, Value: b[j].Value})
			i++
			j++
		case a[i].Time.Before(b[j].Time):
			i++
		default:
			j++
		}
	}
	return left, right, nil
}

// SpreadAndZScore aligns a and b, computes spread = a - b and normalises it
// with the sample mean and standard deviation of the whole spread.
func SpreadAndZScore(a, b Series) (Series, Series, error) {
	left, right, err := Align(a, b)
	if err != nil {
		return nil, nil, err
	}

	spread := make(Series, len(left))
	for i := range left {
		spread[i] = Point{Time: left[i].Time, Value: left[i].Value - right[i].Value}
	}

	z, err := ZScores(spread.Values())
	if err != nil {
		return nil, nil, err
	}
	zscore := make(Series, len(spread))
	for i := range spread {
		zscore[i] = Point{Time: spread[i].Time, Value: z[i]}
	}
	return spread, zscore, nil
}

// PositionalSpreadAndZScore runs SpreadAndZScore on two tick windows aligned
// by position.
func PositionalSpreadAndZScore(a, b []float64) ([]float64, []float64, error) {
	spread, zscore, err := SpreadAndZScore(FromValues(a), FromValues(b))
	if err != nil {
		return nil, nil, err
	}
	return spread.Values(), zscore.Values(), nil
}

// ZScores normalises values with their sample mean and standard deviation
// (n-1 denominator).
func ZScores(values []float64) ([]float64, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: %d points", ErrDegenerateSeries, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", ErrDegenerateSeries, i)
		}
	}

	mean, std := stat.MeanStdDev(values, nil)
	scale := math.Max(math.Abs(floats.Max(values)), math.Abs(floats.Min(values)))
	if std == 0 || math.IsNaN(std) || std <= degenerateTolerance*scale {
		return nil, fmt.Errorf("%w: standard deviation %g", ErrDegenerateSeries, std)
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out, nil
}
