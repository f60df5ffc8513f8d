package analytics

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMathDomain is returned when a price makes the log return undefined.
	ErrMathDomain = errors.New("math domain error")
	// ErrDegenerateSeries is returned when a z-score cannot be computed
	// because the spread has fewer than two points or no variance.
	ErrDegenerateSeries = errors.New("degenerate series")
	// ErrUnorderedSeries is returned when timestamps are not strictly increasing.
	ErrUnorderedSeries = errors.New("series timestamps not strictly increasing")
	// ErrShape is returned when a table cannot be reduced to a single series.
	ErrShape = errors.New("table must have exactly one column")
)

// Point is one observation of a series.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is an ordered sequence of observations. Prices, returns, spreads and
// z-scores all share this representation.
type Series []Point

// Values returns the observation values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Times returns the observation timestamps in order.
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Time
	}
	return out
}

// Last returns the latest observation and false when the series is empty.
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// Validate checks that timestamps are strictly increasing.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Time.After(s[i-1].Time) {
			return fmt.Errorf("%w: index %d at %s", ErrUnorderedSeries, i, s[i].Time.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// FromValues builds a positionally indexed series. Tick i is stamped i
// nanoseconds after the Unix epoch so positional alignment reuses the
// timestamp join.
func FromValues(values []float64) Series {
	out := make(Series, len(values))
	for i, v := range values {
		out[i] = Point{Time: time.Unix(0, int64(i)).UTC(), Value: v}
	}
	return out
}

// Table is a column-oriented price table as returned by some history sources.
type Table struct {
	Index   []time.Time
	Columns []string
	Data    [][]float64 // Data[column][row]
}

// SingleColumn reduces a one-column table to a series.
func (t Table) SingleColumn() (Series, error) {
	if len(t.Data) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrShape, len(t.Data))
	}
	col := t.Data[0]
	if len(col) != len(t.Index) {
		return nil, fmt.Errorf("%w: column has %d rows, index has %d", ErrShape, len(col), len(t.Index))
	}
	out := make(Series, len(col))
	for i, v := range col {
		out[i] = Point{Time: t.Index[i], Value: v}
	}
	return out, nil
}
