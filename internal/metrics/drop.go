package metrics

import "pairwatch/logger"

// EmitDropMetric logs and emits a metric representing a tick dropped because
// the tick channel was full. The metric value is always one so callers should
// invoke this helper for each dropped tick.
func EmitDropMetric(log *logger.Log, feed, symbol string) {
	fields := logger.Fields{}
	if feed != "" {
		fields["feed"] = feed
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}

	EmitMetric(log, "channel_drops", MetricTicksDropped, 1, "counter", fields)
}
