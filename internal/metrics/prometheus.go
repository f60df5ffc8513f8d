package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairwatch/logger"
)

// Registers:
//
//	pairwatch_zscore{pair}
//	pairwatch_spread{pair}
//	pairwatch_ticks_total{pair,symbol}
//	pairwatch_alerts_total{pair,signal}
//	pairwatch_notify_failures_total{pair}
//	pairwatch_ticks_dropped_total{feed,symbol}
//	pairwatch_tick_buffer_length{buffer}
//	pairwatch_archive_objects_total{symbol,status}
//	go_* and process_* system metrics
const (
	MetricZScore         = "pairwatch_zscore"
	MetricSpread         = "pairwatch_spread"
	MetricTicks          = "pairwatch_ticks_total"
	MetricAlerts         = "pairwatch_alerts_total"
	MetricNotifyFailures = "pairwatch_notify_failures_total"
	MetricTicksDropped   = "pairwatch_ticks_dropped_total"
	MetricTickBuffer     = "pairwatch_tick_buffer_length"
	MetricArchiveObjects = "pairwatch_archive_objects_total"
)

type promCollectors struct {
	registry       *prometheus.Registry
	zscore         *prometheus.GaugeVec
	spread         *prometheus.GaugeVec
	ticks          *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	buffer         *prometheus.GaugeVec
	archive        *prometheus.CounterVec
	handlerID      MetricHandlerID
}

var (
	promOnce sync.Once
	prom     *promCollectors
)

func newPromCollectors() *promCollectors {
	c := &promCollectors{
		registry: prometheus.NewRegistry(),
		zscore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricZScore,
			Help: "Latest z-score of the pair spread",
		}, []string{"pair"}),
		spread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricSpread,
			Help: "Latest spread between the two legs",
		}, []string{"pair"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTicks,
			Help: "Ticks accepted into a rolling window",
		}, []string{"pair", "symbol"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAlerts,
			Help: "Alerts raised by signal",
		}, []string{"pair", "signal"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricNotifyFailures,
			Help: "Alerts that could not be delivered",
		}, []string{"pair"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTicksDropped,
			Help: "Ticks dropped because the tick channel was full",
		}, []string{"feed", "symbol"}),
		buffer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricTickBuffer,
			Help: "Occupancy of the tick channel",
		}, []string{"buffer"}),
		archive: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricArchiveObjects,
			Help: "Price archive objects by upload outcome",
		}, []string{"symbol", "status"}),
	}
	c.registry.MustRegister(
		c.zscore, c.spread, c.ticks, c.alerts, c.notifyFailures, c.dropped, c.buffer, c.archive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// EnablePrometheus starts mirroring emitted metrics into a Prometheus registry
// and returns the HTTP handler that exposes it. Repeated calls return a handler
// for the same registry.
func EnablePrometheus() http.Handler {
	promOnce.Do(func() {
		prom = newPromCollectors()
		prom.handlerID = RegisterMetricHandler(prom.observe)
		logger.GetLogger().WithComponent("prometheus").Info("prometheus metrics enabled")
	})
	return promhttp.HandlerFor(prom.registry, promhttp.HandlerOpts{})
}

func (c *promCollectors) observe(m Metric) {
	value := m.Value
	switch m.Name {
	case MetricZScore:
		c.zscore.WithLabelValues(label(m, "pair")).Set(value)
	case MetricSpread:
		c.spread.WithLabelValues(label(m, "pair")).Set(value)
	case MetricTicks:
		c.ticks.WithLabelValues(label(m, "pair"), label(m, "symbol")).Add(value)
	case MetricAlerts:
		c.alerts.WithLabelValues(label(m, "pair"), label(m, "signal")).Add(value)
	case MetricNotifyFailures:
		c.notifyFailures.WithLabelValues(label(m, "pair")).Add(value)
	case MetricTicksDropped:
		c.dropped.WithLabelValues(label(m, "feed"), label(m, "symbol")).Add(value)
	case MetricTickBuffer:
		c.buffer.WithLabelValues(label(m, "buffer")).Set(value)
	case MetricArchiveObjects:
		c.archive.WithLabelValues(label(m, "symbol"), label(m, "status")).Add(value)
	}
}

func label(m Metric, key string) string {
	v, ok := m.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
