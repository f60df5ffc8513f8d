package metrics

import (
	"context"
	"time"

	"pairwatch/internal/channel"
	"pairwatch/logger"
)

// StartChannelSizeMetrics emits occupancy metrics for the tick channel every
// `interval` until the context is cancelled. When interval <= 0, a one-second
// cadence is used.
func StartChannelSizeMetrics(ctx context.Context, ticks *channel.Ticks, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) {
		return
	}
	if ticks == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := ticks.GetStats()
				EmitMetric(log, component, MetricTickBuffer, float64(ticks.Len()), "gauge", logger.Fields{
					"buffer":   "ticks",
					"capacity": ticks.Cap(),
					"sent":     stats.TicksSent,
					"dropped":  stats.TicksDropped,
				})
			}
		}
	}()
}
