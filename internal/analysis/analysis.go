// Package analysis runs the batch pipeline: prices, log returns, spread,
// z-scores and the stationarity test.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairwatch/internal/adf"
	"pairwatch/internal/analytics"
	"pairwatch/internal/report"
	"pairwatch/internal/source"
	"pairwatch/logger"
)

// Runner evaluates a pair against one history source.
type Runner struct {
	src        source.Source
	thresholds analytics.Thresholds
	log        *logger.Log
}

func NewRunner(src source.Source, th analytics.Thresholds) *Runner {
	return &Runner{src: src, thresholds: th, log: logger.GetLogger()}
}

// Run fetches both legs over [start, end) and evaluates the pair. A series
// too short or flat for the ADF test is recorded in the result rather than
// returned as an error.
func (r *Runner) Run(ctx context.Context, legA, legB string, start, end time.Time) (report.Result, error) {
	log := r.log.WithComponent("analysis").WithFields(logger.Fields{
		"pair":   legA + "/" + legB,
		"source": r.src.Name(),
	})
	begin := time.Now()

	res := report.Result{
		Pair:       legA + "/" + legB,
		LegA:       legA,
		LegB:       legB,
		Source:     r.src.Name(),
		Start:      start,
		End:        end,
		Thresholds: r.thresholds,
	}

	pricesA, err := r.src.Fetch(ctx, legA, start, end)
	if err != nil {
		return res, fmt.Errorf("fetch %s: %w", legA, err)
	}
	pricesB, err := r.src.Fetch(ctx, legB, start, end)
	if err != nil {
		return res, fmt.Errorf("fetch %s: %w", legB, err)
	}
	logger.LogDataFlowEntry(log, r.src.Name(), "analysis", len(pricesA)+len(pricesB), "prices")

	returnsA, err := analytics.LogReturns(pricesA)
	if err != nil {
		return res, fmt.Errorf("returns %s: %w", legA, err)
	}
	returnsB, err := analytics.LogReturns(pricesB)
	if err != nil {
		return res, fmt.Errorf("returns %s: %w", legB, err)
	}

	spread, zscores, err := analytics.SpreadAndZScore(returnsA, returnsB)
	if err != nil {
		return res, fmt.Errorf("spread %s: %w", res.Pair, err)
	}
	res.Spread, res.ZScores = spread, zscores

	verdict, err := adf.Test(spread.Values())
	switch {
	case errors.Is(err, adf.ErrInsufficientData):
		log.WithError(err).Warn("stationarity test skipped")
		res.ADFErr = err
	case err != nil:
		return res, fmt.Errorf("adf %s: %w", res.Pair, err)
	default:
		res.Verdict = &verdict
		log.WithFields(logger.Fields{
			"adf_statistic": verdict.Statistic,
			"p_value":       verdict.PValue,
			"stationary":    verdict.Stationary,
			"used_lag":      verdict.UsedLag,
		}).Info("stationarity test complete")
	}

	logger.LogPerformanceEntry(log, "analysis", "run", time.Since(begin), logger.Fields{"observations": len(spread)})
	return res, nil
}
