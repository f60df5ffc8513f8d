package metrics

import (
	"strings"
	"sync"

	"pairwatch/config"
)

// Feature groups metrics that can be switched off together.
type Feature string

const (
	FeatureChannelSize Feature = "channel_size"
	FeatureSignals     Feature = "signals"
)

var (
	featuresMu sync.RWMutex
	features   = map[Feature]bool{
		FeatureChannelSize: true,
		FeatureSignals:     true,
	}
)

// Configure applies the feature switches from configuration.
func Configure(cfg config.MetricsConfig) {
	featuresMu.Lock()
	features[FeatureChannelSize] = cfg.ChannelSize
	features[FeatureSignals] = cfg.Signals
	featuresMu.Unlock()
}

// IsFeatureEnabled reports whether metrics for the feature are emitted.
func IsFeatureEnabled(f Feature) bool {
	featuresMu.RLock()
	defer featuresMu.RUnlock()
	enabled, ok := features[f]
	return !ok || enabled
}

func featureForMetric(name string) (Feature, bool) {
	switch {
	case strings.HasSuffix(name, "_buffer_length"):
		return FeatureChannelSize, true
	case name == MetricZScore, name == MetricSpread, name == MetricTicks:
		return FeatureSignals, true
	default:
		return "", false
	}
}

func metricAllowed(name string) bool {
	f, ok := featureForMetric(name)
	if !ok {
		return true
	}
	return IsFeatureEnabled(f)
}
