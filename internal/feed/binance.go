package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pairwatch/config"
	"pairwatch/internal/channel"
	"pairwatch/internal/model"
	"pairwatch/internal/symbols"
	"pairwatch/logger"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/sirupsen/logrus"
)

// Binance streams aggregate trades from the Binance USD-M futures websocket.
type Binance struct {
	cfg     config.BinanceFeedConfig
	ticks   *channel.Ticks
	symbols []string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewBinance(cfg config.BinanceFeedConfig, ticks *channel.Ticks, syms []string) *Binance {
	return &Binance{
		cfg:     cfg,
		ticks:   ticks,
		symbols: syms,
		log:     logger.GetLogger(),
	}
}

func (b *Binance) Name() model.Feed { return model.FeedBinance }

// Start subscribes every symbol. Subscriptions are restarted until the
// context is cancelled or Stop is called.
func (b *Binance) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("binance feed already running")
	}
	if len(b.symbols) == 0 {
		b.mu.Unlock()
		return fmt.Errorf("no symbols configured for binance feed")
	}
	b.running = true
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	if b.cfg.Testnet {
		futures.UseTestnet = true
	}

	log := b.log.WithComponent("binance_feed").WithFields(logger.Fields{"operation": "Start"})
	log.WithFields(logger.Fields{"symbols": strings.Join(b.symbols, ",")}).Info("starting binance feed")

	for _, sym := range b.symbols {
		b.wg.Add(1)
		go b.streamSymbol(symbols.Native(model.FeedBinance, sym))
	}
	return nil
}

func (b *Binance) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	b.log.WithComponent("binance_feed").Info("stopping binance feed")
	cancel()
	b.wg.Wait()
	b.log.WithComponent("binance_feed").Info("binance feed stopped")
}

func (b *Binance) streamSymbol(native string) {
	defer b.wg.Done()

	log := b.log.WithComponent("binance_feed").WithFields(logger.Fields{
		"symbol": strings.ToUpper(native),
		"worker": "agg_trade_stream",
	})

	handler := func(event *futures.WsAggTradeEvent) {
		tick, err := binanceTick(event)
		if err != nil {
			log.WithError(err).Warn("skipping malformed aggregate trade")
			return
		}
		if forward(b.ctx, b.ticks, b.log, tick) && log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			log.WithFields(logger.Fields{"price": tick.Price}).Debug("forwarded trade")
		}
	}
	errHandler := func(err error) {
		if err != nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	for {
		if b.ctx.Err() != nil {
			return
		}

		doneC, stopC, err := futures.WsAggTradeServe(native, handler, errHandler)
		if err != nil {
			log.WithError(err).Error("failed to subscribe to aggregate trade stream")
			if waitForReconnect(b.ctx, defaultReconnectDelay) {
				return
			}
			continue
		}

		select {
		case <-b.ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			log.Warn("aggregate trade stream closed, reconnecting")
			if waitForReconnect(b.ctx, defaultReconnectDelay) {
				return
			}
		}
	}
}

func binanceTick(event *futures.WsAggTradeEvent) (model.Tick, error) {
	if event == nil {
		return model.Tick{}, fmt.Errorf("nil event")
	}
	price, err := parsePrice(event.Price)
	if err != nil {
		return model.Tick{}, err
	}
	ts := event.TradeTime
	if ts == 0 {
		ts = event.Time
	}
	return model.Tick{
		Feed:      model.FeedBinance,
		Symbol:    symbols.Canonical(model.FeedBinance, event.Symbol),
		RawSymbol: event.Symbol,
		Price:     price,
		Timestamp: epochToTime(ts),
		Received:  time.Now().UTC(),
	}, nil
}
