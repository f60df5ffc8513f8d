package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pairwatch/config"
	"pairwatch/internal/channel"
	"pairwatch/internal/model"
	"pairwatch/internal/symbols"
	"pairwatch/logger"

	bybit "github.com/bybit-exchange/bybit.go.api"
)

const bybitStaleAfter = 45 * time.Second

// Bybit streams public trades from the Bybit v5 websocket.
type Bybit struct {
	cfg     config.BybitFeedConfig
	ticks   *channel.Ticks
	symbols []string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

type bybitTradeMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  []struct {
		T int64  `json:"T"`
		S string `json:"s"`
		P string `json:"p"`
	} `json:"data"`
}

func NewBybit(cfg config.BybitFeedConfig, ticks *channel.Ticks, syms []string) *Bybit {
	return &Bybit{
		cfg:     cfg,
		ticks:   ticks,
		symbols: syms,
		log:     logger.GetLogger(),
	}
}

func (b *Bybit) Name() model.Feed { return model.FeedBybit }

func (b *Bybit) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bybit feed already running")
	}
	if len(b.symbols) == 0 {
		b.mu.Unlock()
		return fmt.Errorf("no symbols configured for bybit feed")
	}
	b.running = true
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	topics := make([]string, 0, len(b.symbols))
	for _, sym := range b.symbols {
		topics = append(topics, "publicTrade."+symbols.Native(model.FeedBybit, sym))
	}

	b.log.WithComponent("bybit_feed").WithFields(logger.Fields{
		"operation": "Start",
		"topics":    strings.Join(topics, ","),
	}).Info("starting bybit feed")

	b.wg.Add(1)
	go b.stream(topics)
	return nil
}

func (b *Bybit) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	b.log.WithComponent("bybit_feed").Info("stopping bybit feed")
	cancel()
	b.wg.Wait()
	b.log.WithComponent("bybit_feed").Info("bybit feed stopped")
}

func (b *Bybit) stream(topics []string) {
	defer b.wg.Done()

	log := b.log.WithComponent("bybit_feed").WithFields(logger.Fields{"worker": "public_trade_stream"})
	url := strings.TrimRight(strings.TrimSpace(b.cfg.URL), "/")
	if url == "" {
		url = "wss://stream.bybit.com/v5/public/linear"
	}

	var lastMsgMs int64
	touch := func() { atomic.StoreInt64(&lastMsgMs, time.Now().UnixMilli()) }

	handler := func(message string) error {
		touch()
		ticks, err := parseBybitTrades([]byte(message))
		if err != nil {
			log.WithError(err).Debug("skipping unparseable bybit message")
			return nil
		}
		for _, tick := range ticks {
			if !forward(b.ctx, b.ticks, b.log, tick) {
				return b.ctx.Err()
			}
		}
		return nil
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if b.ctx.Err() != nil {
			return
		}

		touch()
		stale := make(chan struct{})
		ws := bybit.NewBybitPublicWebSocket(url, handler)
		ws.Connect().SendSubscription(topics)

		// Force a reconnect when the stream goes quiet.
		watch := time.NewTicker(15 * time.Second)
		go func() {
			defer watch.Stop()
			for {
				select {
				case <-b.ctx.Done():
					return
				case <-stale:
					return
				case <-watch.C:
					if time.Since(time.UnixMilli(atomic.LoadInt64(&lastMsgMs))) > bybitStaleAfter {
						close(stale)
						return
					}
				}
			}
		}()

		select {
		case <-b.ctx.Done():
			ws.Disconnect()
			return
		case <-stale:
			log.Warn("bybit trade stream stale, reconnecting")
			ws.Disconnect()
		}

		if waitForReconnect(b.ctx, backoff) {
			return
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// parseBybitTrades extracts trades from a publicTrade push. Control frames
// such as subscription acks and pongs yield no ticks.
func parseBybitTrades(raw []byte) ([]model.Tick, error) {
	var msg bybitTradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(msg.Topic, "publicTrade.") {
		return nil, nil
	}

	now := time.Now().UTC()
	out := make([]model.Tick, 0, len(msg.Data))
	for _, d := range msg.Data {
		price, err := parsePrice(d.P)
		if err != nil {
			return nil, err
		}
		ts := d.T
		if ts == 0 {
			ts = msg.Ts
		}
		sym := d.S
		if sym == "" {
			sym = strings.TrimPrefix(msg.Topic, "publicTrade.")
		}
		out = append(out, model.Tick{
			Feed:      model.FeedBybit,
			Symbol:    symbols.Canonical(model.FeedBybit, sym),
			RawSymbol: sym,
			Price:     price,
			Timestamp: epochToTime(ts),
			Received:  now,
		})
	}
	return out, nil
}
