package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pairwatch/config"
	"pairwatch/internal/analytics"
	"pairwatch/internal/metrics/rate"
	"pairwatch/internal/model"
	"pairwatch/internal/symbols"
	"pairwatch/logger"

	futures "github.com/adshao/go-binance/v2/futures"
)

const binanceMaxLimit = 1500

// Binance reads USD-M futures klines and uses each close as the price at
// the kline open time.
type Binance struct {
	client   *futures.Client
	interval string
	limit    int
	timeout  time.Duration
	log      *logger.Log
}

func NewBinance(cfg config.HistoryConfig, interval string) *Binance {
	limit := cfg.Binance.Limit
	if limit <= 0 || limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}
	if interval == "" {
		interval = "1d"
	}
	client := futures.NewClient("", "")
	if cfg.Binance.URL != "" {
		client.BaseURL = strings.TrimRight(cfg.Binance.URL, "/")
	}
	return &Binance{
		client:   client,
		interval: interval,
		limit:    limit,
		timeout:  cfg.Timeout,
		log:      logger.GetLogger(),
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Fetch(ctx context.Context, symbol string, start, end time.Time) (analytics.Series, error) {
	sym := symbols.Canonical(model.FeedBinance, symbol)
	log := b.log.WithComponent("binance_source").WithFields(logger.Fields{
		"symbol":   sym,
		"interval": b.interval,
	})

	var points []analytics.Point
	cursor := start
	begin := time.Now()
	for page := 0; ; page++ {
		klines, err := b.page(ctx, sym, cursor, end)
		if err != nil {
			rate.ReportLimitFromError(b.log, "binance", sym, "klines", err)
			return nil, fmt.Errorf("binance klines %s: %w", sym, err)
		}
		for _, k := range klines {
			p, err := binancePoint(k)
			if err != nil {
				return nil, fmt.Errorf("binance klines %s: %w", sym, err)
			}
			points = append(points, p)
		}
		if len(klines) < b.limit {
			break
		}
		next := time.UnixMilli(klines[len(klines)-1].OpenTime + 1).UTC()
		if !next.After(cursor) || (!end.IsZero() && !next.Before(end)) {
			break
		}
		cursor = next
	}

	logger.LogPerformanceEntry(log, "binance_source", "fetch", time.Since(begin), logger.Fields{"points": len(points)})
	return finalize(points, start, end)
}

func (b *Binance) page(ctx context.Context, sym string, start, end time.Time) ([]*futures.Kline, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	svc := b.client.NewKlinesService().Symbol(sym).Interval(b.interval).Limit(b.limit)
	if !start.IsZero() {
		svc = svc.StartTime(start.UnixMilli())
	}
	if !end.IsZero() {
		svc = svc.EndTime(end.UnixMilli() - 1)
	}
	return svc.Do(ctx)
}

func binancePoint(k *futures.Kline) (analytics.Point, error) {
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return analytics.Point{}, fmt.Errorf("parse close %q: %w", k.Close, err)
	}
	return analytics.Point{Time: time.UnixMilli(k.OpenTime).UTC(), Value: closePrice}, nil
}
