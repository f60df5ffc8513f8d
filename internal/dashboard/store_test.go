package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"pairwatch/internal/metrics"
)

func TestMetricStoreLimit(t *testing.T) {
	store := newMetricStore(2)
	for i := 0; i < 5; i++ {
		store.handle(metrics.Metric{Timestamp: time.Unix(int64(i), 0), Name: metrics.MetricZScore, Value: float64(i)})
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 metrics in snapshot, got %d", len(snapshot))
	}
	if snapshot[0].Value != 3 || snapshot[1].Value != 4 {
		t.Fatalf("unexpected metrics retained: %#v", snapshot)
	}
}

func TestEventStoreCapturesWarnings(t *testing.T) {
	store := newEventStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "alert delivery failed"
	entry.Data = logrus.Fields{"component": "pair_monitor", "pair": "V/MA", "error": errors.New("smtp down")}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("Fire returned error: %v", err)
	}

	snapshot := store.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 event, got %d", len(snapshot))
	}
	ev := snapshot[0]
	if ev.Component != "pair_monitor" || ev.Fields["pair"] != "V/MA" || ev.Fields["error"] != "smtp down" {
		t.Fatalf("unexpected event: %#v", ev)
	}
	if _, ok := ev.Fields["component"]; ok {
		t.Fatalf("component should not be repeated in fields")
	}

	for _, lvl := range store.Levels() {
		if lvl == logrus.InfoLevel || lvl == logrus.DebugLevel {
			t.Fatalf("event store should not capture %s", lvl)
		}
	}
}

func TestEventStoreRespectsLimitAndClose(t *testing.T) {
	store := newEventStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "tick channel full, dropping trade"
		entry.Level = logrus.WarnLevel
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 || snapshot[1].Fields["index"] != 3 {
		t.Fatalf("expected newest 2 entries after pruning, got %#v", snapshot)
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}
	if len(store.snapshot()) != 2 {
		t.Fatalf("store accepted entries after close")
	}
}
