package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"pairwatch/config"
	"pairwatch/internal/analytics"
)

// ErrNoData is returned when a source has no prices inside the requested range.
var ErrNoData = errors.New("no price data")

// Source fetches closing prices for one instrument over [start, end).
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string, start, end time.Time) (analytics.Series, error)
}

// Build returns the history source named by the analysis configuration.
func Build(ctx context.Context, cfg *config.Config) (Source, error) {
	switch strings.ToLower(cfg.Analysis.Source) {
	case "binance":
		return NewBinance(cfg.History, cfg.Analysis.Interval), nil
	case "bybit":
		return NewBybit(cfg.History, cfg.Analysis.Interval)
	case "s3":
		return NewS3(ctx, cfg.History)
	default:
		return nil, fmt.Errorf("unknown history source %q", cfg.Analysis.Source)
	}
}

// finalize sorts points, keeps the last value for duplicate timestamps and
// clips them to [start, end). Zero bounds are open.
func finalize(points []analytics.Point, start, end time.Time) (analytics.Series, error) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })

	out := make(analytics.Series, 0, len(points))
	for _, p := range points {
		if !start.IsZero() && p.Time.Before(start) {
			continue
		}
		if !end.IsZero() && !p.Time.Before(end) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}
