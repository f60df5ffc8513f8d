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

	"github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	"github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/futurespublic"
	"github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
)

// Kucoin streams trade executions from KuCoin futures.
type Kucoin struct {
	cfg           config.KucoinFeedConfig
	ticks         *channel.Ticks
	symbols       []string
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.RWMutex
	running       bool
	log           *logger.Log
	ws            futurespublic.FuturesPublicWS
	subscriptions map[string]string
}

func NewKucoin(cfg config.KucoinFeedConfig, ticks *channel.Ticks, syms []string) *Kucoin {
	return &Kucoin{
		cfg:     cfg,
		ticks:   ticks,
		symbols: syms,
		log:     logger.GetLogger(),
	}
}

func (k *Kucoin) Name() model.Feed { return model.FeedKucoin }

func (k *Kucoin) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return fmt.Errorf("kucoin feed already running")
	}
	if len(k.symbols) == 0 {
		k.mu.Unlock()
		return fmt.Errorf("no symbols configured for kucoin feed")
	}
	k.running = true
	k.ctx, k.cancel = context.WithCancel(ctx)
	k.mu.Unlock()

	log := k.log.WithComponent("kucoin_feed").WithFields(logger.Fields{"operation": "Start"})

	wsOptionBuilder := types.NewWebSocketClientOptionBuilder()
	if k.cfg.ReadBufferBytes > 0 {
		wsOptionBuilder.WithReadBufferBytes(k.cfg.ReadBufferBytes)
	}
	if k.cfg.ReadMessageBuffer > 0 {
		wsOptionBuilder.WithReadMessageBuffer(k.cfg.ReadMessageBuffer)
	}
	if k.cfg.WriteMessageBuffer > 0 {
		wsOptionBuilder.WithWriteMessageBuffer(k.cfg.WriteMessageBuffer)
	}
	wsOptionBuilder.WithEventCallback(func(event types.WebSocketEvent, msg string) {
		if event == types.EventErrorReceived || event == types.EventClientFail {
			log.WithFields(logger.Fields{"event": event.String(), "message": msg}).Warn("kucoin websocket event")
		}
	})

	clientOption := types.NewClientOptionBuilder().
		WithFuturesEndpoint(k.cfg.URL).
		WithWebSocketClientOption(wsOptionBuilder.Build()).
		Build()

	ws := api.NewClient(clientOption).WsService().NewFuturesPublicWS()
	if ws == nil {
		k.reset()
		return fmt.Errorf("failed to create kucoin futures websocket client")
	}
	if err := ws.Start(); err != nil {
		k.reset()
		return fmt.Errorf("failed to start kucoin websocket service: %w", err)
	}

	subs := make(map[string]string, len(k.symbols))
	for _, sym := range k.symbols {
		native := symbols.Native(model.FeedKucoin, sym)
		id, err := ws.Execution(native, k.handleExecution)
		if err != nil {
			log.WithError(err).WithField("symbol", native).Error("failed to subscribe to kucoin execution stream")
			continue
		}
		subs[native] = id
	}
	if len(subs) == 0 {
		ws.Stop()
		k.reset()
		return fmt.Errorf("no kucoin execution subscriptions succeeded")
	}

	k.mu.Lock()
	k.ws = ws
	k.subscriptions = subs
	k.mu.Unlock()

	log.WithFields(logger.Fields{"symbols": strings.Join(k.symbols, ",")}).Info("kucoin feed started")
	go k.monitorContext()
	return nil
}

func (k *Kucoin) reset() {
	k.mu.Lock()
	k.running = false
	cancel := k.cancel
	k.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop cancels subscriptions and shuts down the websocket.
func (k *Kucoin) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	k.running = false
	cancel := k.cancel
	ws := k.ws
	subs := k.subscriptions
	k.mu.Unlock()

	k.log.WithComponent("kucoin_feed").Info("stopping kucoin feed")
	if cancel != nil {
		cancel()
	}
	if ws != nil {
		for _, id := range subs {
			if id != "" {
				ws.UnSubscribe(id)
			}
		}
		ws.Stop()
	}
	k.log.WithComponent("kucoin_feed").Info("kucoin feed stopped")
}

func (k *Kucoin) monitorContext() {
	<-k.ctx.Done()
	k.Stop()
}

func (k *Kucoin) handleExecution(topic, subject string, data *futurespublic.ExecutionEvent) error {
	tick, ok, err := kucoinTick(data)
	if err != nil {
		k.log.WithComponent("kucoin_feed").WithError(err).WithField("topic", topic).Warn("skipping malformed execution")
		return nil
	}
	if !ok {
		return nil
	}
	forward(k.ctx, k.ticks, k.log, tick)
	return nil
}

func kucoinTick(data *futurespublic.ExecutionEvent) (model.Tick, bool, error) {
	if data == nil {
		return model.Tick{}, false, nil
	}
	price, err := parsePrice(data.Price)
	if err != nil {
		return model.Tick{}, false, err
	}
	return model.Tick{
		Feed:      model.FeedKucoin,
		Symbol:    symbols.Canonical(model.FeedKucoin, data.Symbol),
		RawSymbol: data.Symbol,
		Price:     price,
		Timestamp: epochToTime(data.Ts),
		Received:  time.Now().UTC(),
	}, true, nil
}
