package analytics

import (
	"fmt"
	"math"
	"time"
)

// NaiveTime drops the zone from t while keeping its wall clock reading, so
// 09:30-05:00 becomes 09:30 in a zone-free representation (UTC).
func NaiveTime(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// LogReturns converts prices into one-step log returns ln(p[i]/p[i-1]).
//
// Missing prices (NaN) produce no return for either neighbouring step, which
// also covers gaps at the start of a history. A zero, negative or infinite
// price fails with ErrMathDomain.
func LogReturns(prices Series) (Series, error) {
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	for i, p := range prices {
		if math.IsNaN(p.Value) {
			continue
		}
		if p.Value <= 0 || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("%w: price %v at index %d", ErrMathDomain, p.Value, i)
		}
	}

	if len(prices) < 2 {
		return Series{}, nil
	}

	out := make(Series, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1].Value, prices[i].Value
		if math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		out = append(out, Point{
			Time:  NaiveTime(prices[i].Time),
			Value: math.Log(cur / prev),
		})
	}
	return out, nil
}

// TableLogReturns accepts a single-column table in place of a series.
func TableLogReturns(t Table) (Series, error) {
	s, err := t.SingleColumn()
	if err != nil {
		return nil, err
	}
	return LogReturns(s)
}
