package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"pairwatch/logger"
)

// Metric is one numeric observation. Prometheus collectors and the dashboard
// buffer receive every metric that passes the feature gates.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     float64
	Type      string
	Fields    logger.Fields
}

// MetricHandler consumes emitted metrics. Handlers run on the emitting
// goroutine, usually the tick path, and must not block.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler; zero is never issued.
type MetricHandlerID uint64

type registeredHandler struct {
	id MetricHandlerID
	fn MetricHandler
}

// The handler list is copy-on-write: registration is rare, dispatch happens
// for every tick.
var (
	handlerWriteMu sync.Mutex
	handlerList    atomic.Pointer[[]registeredHandler]
	lastHandlerID  atomic.Uint64
)

func RegisterMetricHandler(fn MetricHandler) MetricHandlerID {
	if fn == nil {
		return 0
	}
	id := MetricHandlerID(lastHandlerID.Add(1))

	handlerWriteMu.Lock()
	defer handlerWriteMu.Unlock()
	cur := currentHandlers()
	next := make([]registeredHandler, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, registeredHandler{id: id, fn: fn})
	handlerList.Store(&next)
	return id
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlerWriteMu.Lock()
	defer handlerWriteMu.Unlock()
	cur := currentHandlers()
	next := make([]registeredHandler, 0, len(cur))
	for _, h := range cur {
		if h.id != id {
			next = append(next, h)
		}
	}
	handlerList.Store(&next)
}

func currentHandlers() []registeredHandler {
	if p := handlerList.Load(); p != nil {
		return *p
	}
	return nil
}

// recordMetric applies the feature gates, writes a debug line and hands the
// metric to every handler. The caller's fields map is never modified.
func recordMetric(log *logger.Log, component, name string, value float64, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" || !metricAllowed(name) {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	m := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    maps.Clone(fields),
	}
	if m.Fields == nil {
		m.Fields = logger.Fields{}
	}

	// Signal metrics fire on every tick; keep them out of the info stream.
	log.WithComponent(component).WithFields(m.Fields).WithFields(logger.Fields{
		"metric":      name,
		"metric_type": metricType,
		"value":       value,
	}).Debug("metric")

	for _, h := range currentHandlers() {
		h.fn(m)
	}
	return m, true
}
