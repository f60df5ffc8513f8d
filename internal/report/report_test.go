package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"pairwatch/internal/adf"
	"pairwatch/internal/analytics"
)

func series(values ...float64) analytics.Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(analytics.Series, len(values))
	for i, v := range values {
		out[i] = analytics.Point{Time: base.AddDate(0, 0, i), Value: v}
	}
	return out
}

func sampleResult() Result {
	return Result{
		Pair:    "V/MA",
		Source:  "binance",
		Start:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
		Spread:  series(0.01, -0.02, 0.03, 0.0, -0.02),
		ZScores: series(0.5, -1.5, 2.5, 0.1, -2.1),
		Verdict: &adf.Verdict{
			Statistic:      -4.5,
			PValue:         0.0002,
			CriticalValues: map[string]float64{"1%": -3.5, "5%": -2.9, "10%": -2.6},
			Stationary:     true,
			UsedLag:        1,
			NObs:           4,
		},
	}
}

func TestSummarizeBandsAndLatest(t *testing.T) {
	s := Summarize(sampleResult())
	want := Bands{AboveOne: 1, BelowMinusOne: 2, AboveTwo: 1, BelowMinusTwo: 1}
	if s.Bands != want {
		t.Fatalf("bands = %+v want %+v", s.Bands, want)
	}
	if s.LatestZScore != -2.1 || s.LatestSpread != -0.02 {
		t.Fatalf("unexpected latest values %+v", s)
	}
	if s.Signal != analytics.SignalLong {
		t.Fatalf("latest z of -2.1 should be long, got %s", s.Signal)
	}
	if s.Observations != 5 || s.SpreadMean > 1e-12 || s.SpreadMean < -1e-12 {
		t.Fatalf("unexpected mean/observations %+v", s)
	}
}

func TestTextReportStationary(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "text", sampleResult()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Pair: V/MA (binance, 2024-01-01 to 2024-01-06)",
		"Z = ±2: 1 above, 1 below",
		"Signal: LONG",
		"ADF Statistic: -4.5\n",
		"p-value: 0.0002\n",
		"Critical values: 1%: -3.5000, 5%: -2.9000, 10%: -2.6000",
		"The spread is stationary and suitable for pairs trading.",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestTextReportNotStationaryAndSkipped(t *testing.T) {
	r := sampleResult()
	r.Verdict.Stationary = false
	var buf bytes.Buffer
	if err := Text(&buf, r); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "The spread is not stationary.\n") {
		t.Fatalf("unexpected verdict line:\n%s", buf.String())
	}

	r.Verdict = nil
	r.ADFErr = fmt.Errorf("%w: series is constant", adf.ErrInsufficientData)
	buf.Reset()
	if err := Text(&buf, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "ADF test skipped: insufficient data for ADF test: series is constant") {
		t.Fatalf("missing skip line:\n%s", buf.String())
	}
}

func TestJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "json", sampleResult()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var decoded Summary
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ADF == nil || !decoded.ADF.Stationary || decoded.ADF.CriticalValues["5%"] != -2.9 {
		t.Fatalf("unexpected adf section %+v", decoded.ADF)
	}
	if err := Write(&buf, "xml", sampleResult()); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
