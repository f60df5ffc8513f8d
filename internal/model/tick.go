// internal/model/tick.go
// @tag models, streaming
package model

import (
	"time"

	"pairwatch/internal/analytics"
)

// Feed identifies the market data feed a tick arrived on.
type Feed string

const (
	FeedBinance Feed = "binance"
	FeedBybit   Feed = "bybit"
	FeedKucoin  Feed = "kucoin"
	FeedAlpaca  Feed = "alpaca"
)

// Tick is a single trade print delivered by a live feed. Symbol is the
// canonical symbol after exchange specific normalisation.
type Tick struct {
	Feed      Feed      `json:"feed"`
	Symbol    string    `json:"symbol"`
	RawSymbol string    `json:"raw_symbol,omitempty"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Received  time.Time `json:"received"`
}

// Alert is emitted when a ready pair produces a long or short signal.
type Alert struct {
	ID        string           `json:"id"`
	Pair      string           `json:"pair"`
	LegA      string           `json:"leg_a"`
	LegB      string           `json:"leg_b"`
	Signal    analytics.Signal `json:"signal"`
	ZScore    float64          `json:"zscore"`
	PriceA    float64          `json:"price_a"`
	PriceB    float64          `json:"price_b"`
	Spread    float64          `json:"spread"`
	Timestamp time.Time        `json:"timestamp"`
}
