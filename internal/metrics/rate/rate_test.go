package rate

import (
	"errors"
	"testing"

	"pairwatch/logger"
)

func TestReportRateLimitExceeded(t *testing.T) {
	log := logger.GetLogger()
	ReportRateLimitExceeded(log, "binance", "BTCUSDT", "klines")
}

func TestReportIPBan(t *testing.T) {
	ReportIPBan(nil, "binance", "BTCUSDT", "klines")
}

func TestDetectLimit(t *testing.T) {
	cases := []struct {
		exchange string
		msg      string
		rate     bool
		ban      bool
	}{
		{"binance", "Too many requests", true, false},
		{"binance", "<APIError> code=-1003, msg=Way too much request weight used", true, false},
		{"kucoin", "429 Too Many Requests", true, false},
		{"bybit", "IP rate limit reached", false, true},
		{"bybit", "Too many visits!", true, false},
		{"unknown", "hello world", false, false},
	}
	for _, c := range cases {
		rl, ban := detectLimit(c.exchange, c.msg)
		if rl != c.rate {
			t.Errorf("exchange %s: expected rateLimit %v got %v", c.exchange, c.rate, rl)
		}
		if ban != c.ban {
			t.Errorf("exchange %s: expected ipBan %v got %v", c.exchange, c.ban, ban)
		}
	}
}

func TestReportLimitFromError(t *testing.T) {
	if ReportLimitFromError(nil, "binance", "BTCUSDT", "klines", nil) {
		t.Fatal("nil error should not be reported")
	}
	if !ReportLimitFromError(nil, "bybit", "BTCUSDT", "klines", errors.New("too many visits")) {
		t.Fatal("expected rate limit to be detected")
	}
	if ReportLimitFromError(nil, "bybit", "BTCUSDT", "klines", errors.New("symbol invalid")) {
		t.Fatal("unrelated error should not be reported")
	}
}
