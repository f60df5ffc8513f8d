package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pairwatch/logger"
)

func capturePublishes(t *testing.T, base time.Time) *[][]cwtypes.MetricDatum {
	t.Helper()
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}, namespace: "PairWatchTest"})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	timeNow = func() time.Time { return base }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })
	return &batches
}

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	baseTime := time.Now()
	batches := capturePublishes(t, baseTime)

	metric := Metric{Component: "pair_monitor", Name: MetricZScore, Timestamp: baseTime, Fields: logger.Fields{"unit": "none", "pair": "V/MA"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(25 * time.Millisecond) }
	metric.Timestamp = baseTime.Add(25 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(*batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(*batches))
	}

	datum := (*batches)[0][0]
	if datum.MetricName == nil || *datum.MetricName != MetricZScore {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 1 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
	if datum.Unit != cwtypes.StandardUnitNone {
		t.Fatalf("unexpected unit: %v", datum.Unit)
	}
	if len(datum.Dimensions) != 2 {
		t.Fatalf("expected component and pair dimensions, got %d", len(datum.Dimensions))
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	baseTime := time.Now()
	batches := capturePublishes(t, baseTime)

	metric := Metric{Component: "pair_monitor", Name: MetricAlerts, Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(75 * time.Millisecond) }
	metric.Timestamp = baseTime.Add(75 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	if v := (*batches)[1][0].Value; v == nil || *v != 2 {
		t.Fatalf("unexpected metric value: %v", v)
	}
}

func TestPublishMetricDatumSeparateSeries(t *testing.T) {
	baseTime := time.Now()
	batches := capturePublishes(t, baseTime)

	publishMetricDatum(Metric{Component: "pair_monitor", Name: MetricZScore, Fields: logger.Fields{"pair": "V/MA"}}, 1)
	publishMetricDatum(Metric{Component: "pair_monitor", Name: MetricZScore, Fields: logger.Fields{"pair": "KO/PEP"}}, 1)

	if len(*batches) != 2 {
		t.Fatalf("different pairs must not throttle each other, got %d publishes", len(*batches))
	}
}

func TestPublishMetricDatumWithoutClient(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{})
	t.Cleanup(func() { cwState.Store(prevState) })

	called := false
	publishMetricsFunc = func(context.Context, *cloudWatchState, []cwtypes.MetricDatum) { called = true }
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	publishMetricDatum(Metric{Name: "x"}, 1)
	if called {
		t.Fatal("publish should be skipped without a client")
	}
}
