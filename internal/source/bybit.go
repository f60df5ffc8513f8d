package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pairwatch/config"
	"pairwatch/internal/analytics"
	"pairwatch/internal/metrics/rate"
	"pairwatch/internal/model"
	"pairwatch/internal/symbols"
	"pairwatch/logger"

	bybit "github.com/bybit-exchange/bybit.go.api"
)

const bybitMaxLimit = 1000

// Bybit reads v5 market klines. The API pages newest first, so pages are
// walked backwards from end.
type Bybit struct {
	client   *bybit.Client
	category string
	interval string
	limit    int
	timeout  time.Duration
	log      *logger.Log
}

type bybitKlineResult struct {
	Symbol   string     `json:"symbol"`
	Category string     `json:"category"`
	List     [][]string `json:"list"`
}

func NewBybit(cfg config.HistoryConfig, interval string) (*Bybit, error) {
	code, err := bybitInterval(interval)
	if err != nil {
		return nil, err
	}
	limit := cfg.Bybit.Limit
	if limit <= 0 || limit > bybitMaxLimit {
		limit = bybitMaxLimit
	}
	category := cfg.Bybit.Category
	if category == "" {
		category = "linear"
	}
	base := strings.TrimRight(cfg.Bybit.URL, "/")
	if base == "" {
		base = "https://api.bybit.com"
	}

	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Bybit{
		client:   client,
		category: category,
		interval: code,
		limit:    limit,
		timeout:  cfg.Timeout,
		log:      logger.GetLogger(),
	}, nil
}

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) Fetch(ctx context.Context, symbol string, start, end time.Time) (analytics.Series, error) {
	sym := symbols.Canonical(model.FeedBybit, symbol)
	log := b.log.WithComponent("bybit_source").WithFields(logger.Fields{
		"symbol":   sym,
		"interval": b.interval,
	})
	if end.IsZero() {
		end = time.Now().UTC()
	}

	var points []analytics.Point
	cursor := end
	begin := time.Now()
	for {
		page, err := b.page(ctx, sym, start, cursor)
		if err != nil {
			rate.ReportLimitFromError(b.log, "bybit", sym, "klines", err)
			return nil, fmt.Errorf("bybit klines %s: %w", sym, err)
		}
		if len(page) == 0 {
			break
		}
		points = append(points, page...)

		oldest := page[0].Time
		for _, p := range page {
			if p.Time.Before(oldest) {
				oldest = p.Time
			}
		}
		if len(page) < b.limit || (!start.IsZero() && !oldest.After(start)) || !oldest.Before(cursor) {
			break
		}
		cursor = oldest
	}

	logger.LogPerformanceEntry(log, "bybit_source", "fetch", time.Since(begin), logger.Fields{"points": len(points)})
	return finalize(points, start, end)
}

// page returns klines opening in [start, before).
func (b *Bybit) page(ctx context.Context, sym string, start, before time.Time) ([]analytics.Point, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   sym,
		"interval": b.interval,
		"end":      before.UnixMilli() - 1,
		"limit":    b.limit,
	}
	if !start.IsZero() {
		params["start"] = start.UnixMilli()
	}

	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, err
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("retCode=%d retMsg=%s", resp.RetCode, resp.RetMsg)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal kline result: %w", err)
	}
	var result bybitKlineResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode kline result: %w", err)
	}
	return parseBybitKlines(result.List)
}

// parseBybitKlines converts rows of [startTime, open, high, low, close, ...].
func parseBybitKlines(rows [][]string) ([]analytics.Point, error) {
	out := make([]analytics.Point, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("kline row %d has %d fields", i, len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse start time %q: %w", row[0], err)
		}
		closePrice, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, fmt.Errorf("parse close %q: %w", row[4], err)
		}
		out = append(out, analytics.Point{Time: time.UnixMilli(ms).UTC(), Value: closePrice})
	}
	return out, nil
}

// bybitInterval maps the binance style interval names used in configuration
// to bybit kline codes.
func bybitInterval(interval string) (string, error) {
	switch interval {
	case "", "1d":
		return "D", nil
	case "1w":
		return "W", nil
	case "1M":
		return "M", nil
	}
	if strings.HasSuffix(interval, "m") || strings.HasSuffix(interval, "h") {
		d, err := time.ParseDuration(interval)
		if err == nil && d >= time.Minute && d%time.Minute == 0 {
			mins := int(d / time.Minute)
			switch mins {
			case 1, 3, 5, 15, 30, 60, 120, 240, 360, 720:
				return strconv.Itoa(mins), nil
			}
		}
	}
	return "", fmt.Errorf("unsupported bybit interval %q", interval)
}
