// Package report renders batch analysis results as text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"pairwatch/internal/adf"
	"pairwatch/internal/analytics"
)

// Result is the outcome of one batch run.
type Result struct {
	Pair       string
	LegA       string
	LegB       string
	Source     string
	Start      time.Time
	End        time.Time
	Spread     analytics.Series
	ZScores    analytics.Series
	Thresholds analytics.Thresholds
	Verdict    *adf.Verdict
	ADFErr     error
}

// Bands counts z-scores beyond the ±1 and ±2 levels.
type Bands struct {
	AboveOne      int `json:"above_1"`
	BelowMinusOne int `json:"below_minus_1"`
	AboveTwo      int `json:"above_2"`
	BelowMinusTwo int `json:"below_minus_2"`
}

// Summary is the presentational digest of a Result.
type Summary struct {
	Pair         string           `json:"pair"`
	Source       string           `json:"source"`
	Start        string           `json:"start,omitempty"`
	End          string           `json:"end,omitempty"`
	Observations int              `json:"observations"`
	SpreadMean   float64          `json:"spread_mean"`
	SpreadStd    float64          `json:"spread_std"`
	Bands        Bands            `json:"bands"`
	LatestTime   *time.Time       `json:"latest_time,omitempty"`
	LatestSpread float64          `json:"latest_spread"`
	LatestZScore float64          `json:"latest_zscore"`
	Signal       analytics.Signal `json:"signal"`
	ADF          *adf.Verdict     `json:"adf,omitempty"`
	ADFError     string           `json:"adf_error,omitempty"`
}

// Summarize computes the spread mean, band counts and latest values. Zero
// thresholds fall back to the ±2 band.
func Summarize(r Result) Summary {
	th := r.Thresholds
	if th == (analytics.Thresholds{}) {
		th = analytics.DefaultThresholds
	}
	s := Summary{
		Pair:         r.Pair,
		Source:       r.Source,
		Observations: len(r.Spread),
		ADF:          r.Verdict,
		Signal:       analytics.DetectSignal(r.ZScores.Values(), th),
	}
	if !r.Start.IsZero() {
		s.Start = r.Start.Format("2006-01-02")
	}
	if !r.End.IsZero() {
		s.End = r.End.Format("2006-01-02")
	}
	if r.ADFErr != nil {
		s.ADFError = r.ADFErr.Error()
	}
	if len(r.Spread) > 0 {
		s.SpreadMean, s.SpreadStd = stat.MeanStdDev(r.Spread.Values(), nil)
		if math.IsNaN(s.SpreadStd) {
			s.SpreadStd = 0
		}
		last, _ := r.Spread.Last()
		s.LatestSpread = last.Value
		t := last.Time
		s.LatestTime = &t
	}
	if last, ok := r.ZScores.Last(); ok {
		s.LatestZScore = last.Value
	}
	for _, p := range r.ZScores {
		switch {
		case p.Value > 2:
			s.Bands.AboveTwo++
			s.Bands.AboveOne++
		case p.Value > 1:
			s.Bands.AboveOne++
		case p.Value < -2:
			s.Bands.BelowMinusTwo++
			s.Bands.BelowMinusOne++
		case p.Value < -1:
			s.Bands.BelowMinusOne++
		}
	}
	return s
}

// Write renders r in the given format, "text" or "json".
func Write(w io.Writer, format string, r Result) error {
	switch strings.ToLower(format) {
	case "", "text":
		return Text(w, r)
	case "json":
		return JSON(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// JSON writes the summary as an indented JSON document.
func JSON(w io.Writer, r Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Summarize(r))
}

// Text writes a human readable report ending in the stationarity verdict.
func Text(w io.Writer, r Result) error {
	s := Summarize(r)
	var b strings.Builder

	fmt.Fprintf(&b, "Pair: %s", s.Pair)
	if s.Source != "" {
		fmt.Fprintf(&b, " (%s", s.Source)
		if s.Start != "" || s.End != "" {
			fmt.Fprintf(&b, ", %s to %s", s.Start, s.End)
		}
		b.WriteString(")")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Observations: %d\n", s.Observations)
	fmt.Fprintf(&b, "Spread mean: %v\n", s.SpreadMean)
	fmt.Fprintf(&b, "Z = ±1: %d above, %d below\n", s.Bands.AboveOne, s.Bands.BelowMinusOne)
	fmt.Fprintf(&b, "Z = ±2: %d above, %d below\n", s.Bands.AboveTwo, s.Bands.BelowMinusTwo)
	if s.LatestTime != nil {
		fmt.Fprintf(&b, "Latest spread: %.6f | Latest Z-score: %.2f | Signal: %s\n", s.LatestSpread, s.LatestZScore, s.Signal.Upper())
	}

	switch {
	case s.ADF != nil:
		fmt.Fprintf(&b, "\nADF Statistic: %v\n", s.ADF.Statistic)
		fmt.Fprintf(&b, "p-value: %v\n", s.ADF.PValue)
		fmt.Fprintf(&b, "Critical values: %s\n", formatCritical(s.ADF.CriticalValues))
		fmt.Fprintf(&b, "Used lag: %d | Observations: %d\n", s.ADF.UsedLag, s.ADF.NObs)
		if s.ADF.Stationary {
			b.WriteString("The spread is stationary and suitable for pairs trading.\n")
		} else {
			b.WriteString("The spread is not stationary.\n")
		}
	case s.ADFError != "":
		fmt.Fprintf(&b, "\nADF test skipped: %s\n", s.ADFError)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatCritical(cv map[string]float64) string {
	keys := make([]string, 0, len(cv))
	for k := range cv {
		keys = append(keys, k)
	}
	// "1%" < "10%" < "5%" lexically; order by level instead
	sort.Slice(keys, func(i, j int) bool { return levelOf(keys[i]) < levelOf(keys[j]) })
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %.4f", k, cv[k]))
	}
	return strings.Join(parts, ", ")
}

func levelOf(k string) float64 {
	var v float64
	fmt.Sscanf(strings.TrimSuffix(k, "%"), "%g", &v)
	return v
}
