package metrics

import "pairwatch/logger"

const signalComponent = "pair_monitor"

// EmitTick records a tick accepted into a rolling window.
func EmitTick(log *logger.Log, pair, symbol string) {
	EmitMetric(log, signalComponent, MetricTicks, 1, "counter", logger.Fields{
		"pair":   pair,
		"symbol": symbol,
	})
}

// EmitSignal records the latest spread and z-score of a ready pair.
func EmitSignal(log *logger.Log, pair string, spread, zscore float64) {
	fields := logger.Fields{"pair": pair, "unit": "none"}
	EmitMetric(log, signalComponent, MetricZScore, zscore, "gauge", fields)
	EmitMetric(log, signalComponent, MetricSpread, spread, "gauge", fields)
}

// EmitAlert records an alert raised for the pair.
func EmitAlert(log *logger.Log, pair, signal string) {
	EmitMetric(log, signalComponent, MetricAlerts, 1, "counter", logger.Fields{
		"pair":   pair,
		"signal": signal,
	})
}

// EmitNotifyFailure records an alert the notifier failed to deliver.
func EmitNotifyFailure(log *logger.Log, pair string) {
	EmitMetric(log, signalComponent, MetricNotifyFailures, 1, "counter", logger.Fields{
		"pair": pair,
	})
}

// EmitArchiveObject records the outcome of one price archive batch: uploaded,
// failed or dropped.
func EmitArchiveObject(log *logger.Log, symbol, status string, records int) {
	EmitMetric(log, "archive", MetricArchiveObjects, 1, "counter", logger.Fields{
		"symbol":  symbol,
		"status":  status,
		"records": records,
	})
}
