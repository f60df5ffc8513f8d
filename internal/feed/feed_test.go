package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pairwatch/config"
	"pairwatch/internal/channel"
	"pairwatch/internal/model"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/futurespublic"
	"github.com/gorilla/websocket"
)

func TestBuildGroupsLegsByFeed(t *testing.T) {
	cfg := config.Default()
	cfg.Pair.LegA = config.InstrumentConfig{Symbol: "BTCUSDT", Feed: "binance"}
	cfg.Pair.LegB = config.InstrumentConfig{Symbol: "ETHUSDT", Feed: "binance"}
	cfg.Feeds.Binance.Enabled = true

	feeds, err := Build(&cfg, channel.NewTicks(4))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(feeds) != 1 || feeds[0].Name() != model.FeedBinance {
		t.Fatalf("expected a single binance feed, got %d", len(feeds))
	}
	if got := feeds[0].(*Binance).symbols; len(got) != 2 {
		t.Fatalf("expected both legs on one feed, got %v", got)
	}

	cfg.Pair.LegB = config.InstrumentConfig{Symbol: "XBTUSDTM", Feed: "kucoin"}
	if _, err := Build(&cfg, channel.NewTicks(4)); err == nil {
		t.Fatalf("expected error for disabled kucoin feed")
	}
	cfg.Feeds.Kucoin.Enabled = true
	feeds, err = Build(&cfg, channel.NewTicks(4))
	if err != nil || len(feeds) != 2 {
		t.Fatalf("expected two feeds, got %d (%v)", len(feeds), err)
	}
	if got := feeds[1].(*Kucoin).symbols[0]; got != "BTCUSDT" {
		t.Fatalf("kucoin leg should be canonical, got %s", got)
	}
}

func TestBinanceTick(t *testing.T) {
	tick, err := binanceTick(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "43000.5", TradeTime: 1700000000123})
	if err != nil {
		t.Fatalf("binanceTick: %v", err)
	}
	if tick.Symbol != "BTCUSDT" || tick.Price != 43000.5 || tick.Timestamp.UnixMilli() != 1700000000123 {
		t.Fatalf("unexpected tick %+v", tick)
	}
	if _, err := binanceTick(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "abc"}); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := binanceTick(nil); err == nil {
		t.Fatalf("expected error for nil event")
	}
}

func TestParseBybitTrades(t *testing.T) {
	raw := `{"topic":"publicTrade.ETHUSDT","type":"snapshot","ts":1700000000000,
		"data":[{"T":1700000000001,"s":"ETHUSDT","S":"Buy","v":"0.1","p":"2050.10"},
		        {"T":1700000000002,"s":"ETHUSDT","S":"Sell","v":"0.2","p":"2050.20"}]}`
	ticks, err := parseBybitTrades([]byte(raw))
	if err != nil {
		t.Fatalf("parseBybitTrades: %v", err)
	}
	if len(ticks) != 2 || ticks[1].Price != 2050.20 || ticks[0].Feed != model.FeedBybit {
		t.Fatalf("unexpected ticks %+v", ticks)
	}

	ack := `{"success":true,"ret_msg":"","op":"subscribe","conn_id":"x"}`
	ticks, err = parseBybitTrades([]byte(ack))
	if err != nil || len(ticks) != 0 {
		t.Fatalf("ack should yield no ticks, got %v %v", ticks, err)
	}
	if _, err := parseBybitTrades([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestKucoinTick(t *testing.T) {
	tick, ok, err := kucoinTick(&futurespublic.ExecutionEvent{Symbol: "XBTUSDTM", Price: "42000", Ts: 1700000000000000000})
	if err != nil || !ok {
		t.Fatalf("kucoinTick: %v", err)
	}
	if tick.Symbol != "BTCUSDT" || tick.RawSymbol != "XBTUSDTM" || tick.Timestamp.Unix() != 1700000000 {
		t.Fatalf("unexpected tick %+v", tick)
	}
	if _, ok, _ := kucoinTick(nil); ok {
		t.Fatalf("nil event should be ignored")
	}
}

func TestEpochToTime(t *testing.T) {
	want := time.Unix(1700000000, 0).UTC()
	for _, ts := range []int64{1700000000, 1700000000000, 1700000000000000000} {
		if got := epochToTime(ts); !got.Equal(want) {
			t.Fatalf("epochToTime(%d)=%v want %v", ts, got, want)
		}
	}
}

func TestParseAlpacaTrades(t *testing.T) {
	raw := `[{"T":"t","S":"V","i":1,"x":"V","p":271.5,"s":10,"t":"2024-03-01T15:04:05.123Z"},
	         {"T":"q","S":"V"},
	         {"T":"t","S":"MA","p":455.25,"t":"2024-03-01T15:04:05.5Z"}]`
	ticks, err := parseAlpacaTrades([]byte(raw))
	if err != nil {
		t.Fatalf("parseAlpacaTrades: %v", err)
	}
	if len(ticks) != 2 || ticks[0].Symbol != "V" || ticks[1].Price != 455.25 {
		t.Fatalf("unexpected ticks %+v", ticks)
	}
	if ticks[0].Timestamp.UnixMilli() != time.Date(2024, 3, 1, 15, 4, 5, 123e6, time.UTC).UnixMilli() {
		t.Fatalf("unexpected timestamp %v", ticks[0].Timestamp)
	}
	if _, err := parseAlpacaTrades([]byte(`[{"T":"error","code":406,"msg":"connection limit exceeded"}]`)); err == nil {
		t.Fatalf("expected error frame to surface")
	}
}

// alpacaServer speaks the handshake and then pushes one trade per symbol.
func alpacaServer(t *testing.T, wantKey string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"success","msg":"connected"}]`))
		var auth map[string]string
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["key"] != wantKey {
			conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"error","code":402,"msg":"auth failed"}]`))
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"success","msg":"authenticated"}]`))

		var sub struct {
			Action string   `json:"action"`
			Trades []string `json:"trades"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"subscription","trades":["`+strings.Join(sub.Trades, `","`)+`"]}]`))
		for i, s := range sub.Trades {
			price := 100 + float64(i)
			conn.WriteJSON([]map[string]any{{"T": "t", "S": s, "p": price, "t": "2024-03-01T15:04:05Z"}})
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestAlpacaStreamsTrades(t *testing.T) {
	srv := alpacaServer(t, "key")
	defer srv.Close()

	ticks := channel.NewTicks(8)
	a := NewAlpaca(config.AlpacaFeedConfig{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		KeyID:     "key",
		SecretKey: "secret",
		Reconnect: 50 * time.Millisecond,
	}, ticks, []string{"V", "MA"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatalf("expected already running error")
	}

	got := map[string]float64{}
	deadline := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case tick := <-ticks.C:
			got[tick.Symbol] = tick.Price
		case <-deadline:
			t.Fatalf("timed out waiting for trades, got %v", got)
		}
	}
	if got["V"] != 100 || got["MA"] != 101 {
		t.Fatalf("unexpected prices %v", got)
	}

	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestAlpacaHandshakeRejectsBadKey(t *testing.T) {
	srv := alpacaServer(t, "key")
	defer srv.Close()

	a := NewAlpaca(config.AlpacaFeedConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), KeyID: "wrong"}, channel.NewTicks(1), []string{"V"})
	conn, _, err := websocket.DefaultDialer.Dial(a.cfg.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := a.handshake(conn); err == nil || !strings.Contains(err.Error(), "auth failed") {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestForwardCountsDrops(t *testing.T) {
	ticks := channel.NewTicks(1)
	a := NewAlpaca(config.AlpacaFeedConfig{}, ticks, nil)
	ctx := context.Background()
	tick := model.Tick{Feed: model.FeedAlpaca, Symbol: "V", Price: 1}
	if !forward(ctx, ticks, a.log, tick) || !forward(ctx, ticks, a.log, tick) {
		t.Fatalf("forward should report true while the context is live")
	}
	if stats := ticks.GetStats(); stats.TicksSent != 1 || stats.TicksDropped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if forward(cctx, ticks, a.log, tick) {
		t.Fatalf("forward should report false after cancellation")
	}
}
