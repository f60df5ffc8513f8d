package symbols

import (
	"strings"

	"pairwatch/internal/model"
)

// Canonical converts a feed-specific instrument name to the form used in
// configuration and alerts: uppercase, no separators, BTC instead of XBT.
// Equity tickers from alpaca are only upper-cased.
func Canonical(feed model.Feed, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	switch feed {
	case model.FeedBinance:
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case model.FeedBybit:
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	case model.FeedKucoin:
		sym = strings.ReplaceAll(sym, "-", "")
		// trailing M marks the perpetual contract
		sym = strings.TrimSuffix(sym, "M")
		if strings.HasPrefix(sym, "XBT") {
			sym = "BTC" + sym[3:]
		}
	case model.FeedAlpaca:
	default:
		sym = strings.ReplaceAll(sym, "-", "")
		sym = strings.ReplaceAll(sym, "/", "")
	}
	return sym
}

// Native converts a canonical symbol back to what the feed expects in a
// subscription request.
func Native(feed model.Feed, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	switch feed {
	case model.FeedBinance:
		return strings.ToLower(sym)
	case model.FeedKucoin:
		if strings.HasPrefix(sym, "BTC") {
			sym = "XBT" + sym[3:]
		}
		if !strings.HasSuffix(sym, "M") {
			sym += "M"
		}
		return sym
	default:
		return sym
	}
}
