package analysis

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"pairwatch/internal/adf"
	"pairwatch/internal/analytics"
	"pairwatch/internal/source"
)

type mapSource map[string]analytics.Series

func (m mapSource) Name() string { return "memory" }

func (m mapSource) Fetch(ctx context.Context, symbol string, start, end time.Time) (analytics.Series, error) {
	s, ok := m[symbol]
	if !ok {
		return nil, source.ErrNoData
	}
	return s, nil
}

func daily(values []float64) analytics.Series {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(analytics.Series, len(values))
	for i, v := range values {
		out[i] = analytics.Point{Time: base.AddDate(0, 0, i), Value: v}
	}
	return out
}

func randomWalkPrices(rng *rand.Rand, n int, start float64) []float64 {
	out := make([]float64, n)
	p := start
	for i := range out {
		p *= math.Exp(rng.NormFloat64() * 0.01)
		out[i] = p
	}
	return out
}

func TestRunProducesVerdict(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := mapSource{
		"V":  daily(randomWalkPrices(rng, 300, 250)),
		"MA": daily(randomWalkPrices(rng, 300, 420)),
	}

	res, err := NewRunner(src, analytics.DefaultThresholds).Run(context.Background(), "V", "MA", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Spread) != 299 || len(res.ZScores) != 299 {
		t.Fatalf("expected 299 aligned returns, got %d/%d", len(res.Spread), len(res.ZScores))
	}
	if res.Verdict == nil || res.ADFErr != nil {
		t.Fatalf("expected a verdict, got err %v", res.ADFErr)
	}
	// differences of independent return series are white noise
	if !res.Verdict.Stationary {
		t.Fatalf("return spread should be stationary, p=%v", res.Verdict.PValue)
	}
}

func TestRunWorkedExample(t *testing.T) {
	src := mapSource{
		"A": daily([]float64{100, 102, 101, 105, 103}),
		"B": daily([]float64{50, 51, 50, 52, 52}),
	}
	res, err := NewRunner(src, analytics.DefaultThresholds).Run(context.Background(), "A", "B", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.ZScores) != 4 {
		t.Fatalf("expected 4 z-scores, got %d", len(res.ZScores))
	}
	if got := analytics.DetectSignal(res.ZScores.Values(), analytics.DefaultThresholds); got != analytics.SignalNeutral {
		t.Fatalf("expected neutral, got %s", got)
	}
	if res.Verdict == nil || res.Verdict.UsedLag != 0 || res.Verdict.NObs != 3 {
		t.Fatalf("four spread points allow only lag 0 on three rows, got %+v (%v)", res.Verdict, res.ADFErr)
	}
}

func TestRunShortSeriesSkipsADF(t *testing.T) {
	src := mapSource{
		"A": daily([]float64{100, 102, 101}),
		"B": daily([]float64{50, 50.5, 51}),
	}
	res, err := NewRunner(src, analytics.DefaultThresholds).Run(context.Background(), "A", "B", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(res.ADFErr, adf.ErrInsufficientData) || res.Verdict != nil {
		t.Fatalf("expected skipped stationarity test, got %v", res.ADFErr)
	}
	if len(res.Spread) != 2 {
		t.Fatalf("spread should still be reported, got %d points", len(res.Spread))
	}
}

func TestRunPropagatesErrors(t *testing.T) {
	same := daily([]float64{10, 11, 12, 11})
	src := mapSource{
		"A":   same,
		"B":   same,
		"BAD": daily([]float64{10, -1, 12}),
	}
	r := NewRunner(src, analytics.DefaultThresholds)
	ctx := context.Background()

	if _, err := r.Run(ctx, "A", "B", time.Time{}, time.Time{}); !errors.Is(err, analytics.ErrDegenerateSeries) {
		t.Fatalf("identical legs should be degenerate, got %v", err)
	}
	if _, err := r.Run(ctx, "A", "BAD", time.Time{}, time.Time{}); !errors.Is(err, analytics.ErrMathDomain) {
		t.Fatalf("expected math domain error, got %v", err)
	}
	_, err := r.Run(ctx, "A", "MISSING", time.Time{}, time.Time{})
	if !errors.Is(err, source.ErrNoData) || !strings.Contains(err.Error(), "MISSING") {
		t.Fatalf("expected wrapped no data error, got %v", err)
	}
}
