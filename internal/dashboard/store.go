package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"pairwatch/internal/metrics"
)

// metricStore retains the most recent metrics emitted by the monitor. It is
// safe for concurrent use.
type metricStore struct {
	mu    sync.RWMutex
	items []metrics.Metric
	limit int
}

func newMetricStore(limit int) *metricStore {
	if limit <= 0 {
		limit = 200
	}
	return &metricStore{limit: limit}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, metric)
	if len(s.items) > s.limit {
		s.items = append([]metrics.Metric(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *metricStore) snapshot() []metrics.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metrics.Metric, len(s.items))
	copy(out, s.items)
	return out
}

// event is a warning or error captured from the application log: delivered
// alerts, failed notifications, dropped ticks and feed disconnects.
type event struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// eventStore is a logrus hook keeping the newest warn-or-worse entries.
type eventStore struct {
	mu      sync.RWMutex
	items   []event
	limit   int
	enabled atomic.Bool
}

func newEventStore(limit int) *eventStore {
	if limit <= 0 {
		limit = 200
	}
	es := &eventStore{limit: limit}
	es.enabled.Store(true)
	return es
}

func (s *eventStore) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (s *eventStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	ev := event{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if component, ok := entry.Data["component"].(string); ok {
		ev.Component = component
	}
	if len(entry.Data) > 0 {
		ev.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}
			switch val := v.(type) {
			case error:
				ev.Fields[k] = val.Error()
			case fmt.Stringer:
				ev.Fields[k] = val.String()
			default:
				ev.Fields[k] = val
			}
		}
	}

	s.mu.Lock()
	s.items = append(s.items, ev)
	if len(s.items) > s.limit {
		s.items = append([]event(nil), s.items[len(s.items)-s.limit:]...)
	}
	s.mu.Unlock()
	return nil
}

func (s *eventStore) snapshot() []event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event, len(s.items))
	copy(out, s.items)
	return out
}

func (s *eventStore) close() {
	s.enabled.Store(false)
}
