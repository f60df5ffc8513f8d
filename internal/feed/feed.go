package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pairwatch/config"
	"pairwatch/internal/channel"
	metrics "pairwatch/internal/metrics"
	"pairwatch/internal/model"
	"pairwatch/internal/symbols"
	"pairwatch/logger"
)

const defaultReconnectDelay = 5 * time.Second

// Feed streams trade prints for a set of symbols into the shared tick channel.
type Feed interface {
	Name() model.Feed
	Start(ctx context.Context) error
	Stop()
}

// Build creates one feed per venue referenced by the pair legs. Each leg is
// subscribed on the feed named in its instrument configuration.
func Build(cfg *config.Config, ticks *channel.Ticks) ([]Feed, error) {
	byFeed := make(map[model.Feed][]string)
	var order []model.Feed
	for _, leg := range []config.InstrumentConfig{cfg.Pair.LegA, cfg.Pair.LegB} {
		f := model.Feed(strings.ToLower(strings.TrimSpace(leg.Feed)))
		if _, seen := byFeed[f]; !seen {
			order = append(order, f)
		}
		byFeed[f] = append(byFeed[f], symbols.Canonical(f, leg.Symbol))
	}

	feeds := make([]Feed, 0, len(order))
	for _, f := range order {
		syms := byFeed[f]
		switch f {
		case model.FeedBinance:
			if !cfg.Feeds.Binance.Enabled {
				return nil, fmt.Errorf("binance feed disabled but required by pair %s", cfg.Pair.Name())
			}
			feeds = append(feeds, NewBinance(cfg.Feeds.Binance, ticks, syms))
		case model.FeedBybit:
			if !cfg.Feeds.Bybit.Enabled {
				return nil, fmt.Errorf("bybit feed disabled but required by pair %s", cfg.Pair.Name())
			}
			feeds = append(feeds, NewBybit(cfg.Feeds.Bybit, ticks, syms))
		case model.FeedKucoin:
			if !cfg.Feeds.Kucoin.Enabled {
				return nil, fmt.Errorf("kucoin feed disabled but required by pair %s", cfg.Pair.Name())
			}
			feeds = append(feeds, NewKucoin(cfg.Feeds.Kucoin, ticks, syms))
		case model.FeedAlpaca:
			if !cfg.Feeds.Alpaca.Enabled {
				return nil, fmt.Errorf("alpaca feed disabled but required by pair %s", cfg.Pair.Name())
			}
			feeds = append(feeds, NewAlpaca(cfg.Feeds.Alpaca, ticks, syms))
		default:
			return nil, fmt.Errorf("unknown feed %q", f)
		}
	}
	return feeds, nil
}

// forward pushes a tick to the channel and records a drop when the buffer is
// full. It reports false only when the context has ended.
func forward(ctx context.Context, ticks *channel.Ticks, log *logger.Log, tick model.Tick) bool {
	if tick.Received.IsZero() {
		tick.Received = time.Now().UTC()
	}
	if ticks.Send(ctx, tick) {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	metrics.EmitDropMetric(log, string(tick.Feed), tick.Symbol)
	log.WithComponent(string(tick.Feed)+"_feed").WithFields(logger.Fields{
		"symbol": tick.Symbol,
	}).Warn("tick channel full, dropping trade")
	return true
}

func parsePrice(s string) (float64, error) {
	p, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("non-positive price %q", s)
	}
	return p, nil
}

// epochToTime accepts second, millisecond or nanosecond epochs.
func epochToTime(ts int64) time.Time {
	switch {
	case ts <= 0:
		return time.Now().UTC()
	case ts < 1_000_000_000_000:
		return time.Unix(ts, 0).UTC()
	case ts < 1_000_000_000_000_000:
		return time.UnixMilli(ts).UTC()
	default:
		return time.Unix(0, ts).UTC()
	}
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
