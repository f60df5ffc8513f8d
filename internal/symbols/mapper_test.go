package symbols

import (
	"testing"

	"pairwatch/internal/model"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		feed model.Feed
		in   string
		want string
	}{
		{model.FeedKucoin, "XBT-USDTM", "BTCUSDT"},
		{model.FeedKucoin, "ETHUSDTM", "ETHUSDT"},
		{model.FeedBinance, "ethusdt", "ETHUSDT"},
		{model.FeedBinance, "1000BONKUSDT", "BONKUSDT"},
		{model.FeedBinance, "1000PEPEUSDT", "PEPEUSDT"},
		{model.FeedBinance, "1000SHIBUSDT", "SHIBUSDT"},
		{model.FeedBybit, "SHIB1000USDT", "SHIBUSDT"},
		{model.FeedBybit, "1000BONKUSDT", "BONKUSDT"},
		{model.FeedAlpaca, "v", "V"},
		{model.FeedAlpaca, "BRK.B", "BRK.B"},
		{model.Feed("kraken"), "BTC/USD", "BTCUSD"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.feed, tt.in); got != tt.want {
			t.Errorf("Canonical(%s,%s)=%s want %s", tt.feed, tt.in, got, tt.want)
		}
	}
}

func TestNativeRoundTrip(t *testing.T) {
	tests := []struct {
		feed model.Feed
		in   string
		want string
	}{
		{model.FeedBinance, "BTCUSDT", "btcusdt"},
		{model.FeedKucoin, "BTCUSDT", "XBTUSDTM"},
		{model.FeedKucoin, "ETHUSDT", "ETHUSDTM"},
		{model.FeedBybit, "ethusdt", "ETHUSDT"},
		{model.FeedAlpaca, "MA", "MA"},
	}
	for _, tt := range tests {
		got := Native(tt.feed, tt.in)
		if got != tt.want {
			t.Errorf("Native(%s,%s)=%s want %s", tt.feed, tt.in, got, tt.want)
		}
		if back := Canonical(tt.feed, got); back != Canonical(tt.feed, tt.in) {
			t.Errorf("round trip %s %s -> %s -> %s", tt.feed, tt.in, got, back)
		}
	}
}
