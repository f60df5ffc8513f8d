package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"pairwatch/logger"
)

func TestPrometheusHandlerExposesPairMetrics(t *testing.T) {
	handler := EnablePrometheus()

	prom.observe(Metric{Name: MetricZScore, Value: 2.5, Fields: logger.Fields{"pair": "V/MA"}})
	prom.observe(Metric{Name: MetricAlerts, Value: 1, Fields: logger.Fields{"pair": "V/MA", "signal": "short"}})
	prom.observe(Metric{Name: "unregistered_metric", Value: 7, Fields: logger.Fields{"pair": "V/MA"}})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	if !strings.Contains(out, `pairwatch_zscore{pair="V/MA"} 2.5`) {
		t.Fatalf("zscore gauge missing:\n%s", out)
	}
	if !strings.Contains(out, `pairwatch_alerts_total{pair="V/MA",signal="short"} 1`) {
		t.Fatalf("alert counter missing:\n%s", out)
	}
	if strings.Contains(out, "unregistered_metric") {
		t.Fatalf("unknown metric names should be ignored:\n%s", out)
	}
}

func TestEnablePrometheusIsIdempotent(t *testing.T) {
	EnablePrometheus()
	first := prom
	EnablePrometheus()
	if prom != first {
		t.Fatal("expected a single registry")
	}
}
