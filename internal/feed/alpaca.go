package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"pairwatch/config"
	"pairwatch/internal/channel"
	"pairwatch/internal/model"
	"pairwatch/internal/symbols"
	"pairwatch/logger"

	"github.com/gorilla/websocket"
)

const (
	alpacaKeepAlive   = 20 * time.Second
	alpacaHandshakeTO = 10 * time.Second
)

// Alpaca streams equity trades from the Alpaca market data v2 websocket.
type Alpaca struct {
	cfg     config.AlpacaFeedConfig
	ticks   *channel.Ticks
	symbols []string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	dialer  *websocket.Dialer
}

// alpacaMessage covers control frames and trades; Alpaca batches both into
// JSON arrays.
type alpacaMessage struct {
	T     string    `json:"T"`
	Msg   string    `json:"msg"`
	Code  int       `json:"code"`
	S     string    `json:"S"`
	P     float64   `json:"p"`
	Time  time.Time `json:"t"`
	Trade []string  `json:"trades"`
}

func NewAlpaca(cfg config.AlpacaFeedConfig, ticks *channel.Ticks, syms []string) *Alpaca {
	return &Alpaca{
		cfg:     cfg,
		ticks:   ticks,
		symbols: syms,
		log:     logger.GetLogger(),
		dialer:  websocket.DefaultDialer,
	}
}

func (a *Alpaca) Name() model.Feed { return model.FeedAlpaca }

func (a *Alpaca) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("alpaca feed already running")
	}
	if len(a.symbols) == 0 {
		a.mu.Unlock()
		return fmt.Errorf("no symbols configured for alpaca feed")
	}
	if a.cfg.URL == "" {
		a.mu.Unlock()
		return fmt.Errorf("alpaca feed url is required")
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	a.log.WithComponent("alpaca_feed").WithFields(logger.Fields{
		"operation": "Start",
		"symbols":   strings.Join(a.symbols, ","),
	}).Info("starting alpaca feed")

	a.wg.Add(1)
	go a.stream()
	return nil
}

func (a *Alpaca) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()

	a.log.WithComponent("alpaca_feed").Info("stopping alpaca feed")
	cancel()
	a.wg.Wait()
	a.log.WithComponent("alpaca_feed").Info("alpaca feed stopped")
}

func (a *Alpaca) stream() {
	defer a.wg.Done()
	log := a.log.WithComponent("alpaca_feed").WithFields(logger.Fields{"worker": "trade_stream"})

	for {
		if a.ctx.Err() != nil {
			return
		}

		conn, _, err := a.dialer.DialContext(a.ctx, a.cfg.URL, nil)
		if err != nil {
			log.WithError(err).WithField("url", a.cfg.URL).Warn("failed to connect to alpaca websocket")
			if waitForReconnect(a.ctx, a.cfg.Reconnect) {
				return
			}
			continue
		}

		if err := a.handshake(conn); err != nil {
			log.WithError(err).Warn("alpaca handshake failed")
			conn.Close()
			if waitForReconnect(a.ctx, a.cfg.Reconnect) {
				return
			}
			continue
		}
		log.Info("alpaca trade subscription active")

		// Closing the connection unblocks ReadMessage on shutdown.
		stop := context.AfterFunc(a.ctx, func() { conn.Close() })
		pingCancel := startPingLoop(a.ctx, conn, alpacaKeepAlive, log)

		if err := a.readLoop(conn); err != nil && a.ctx.Err() == nil {
			log.WithError(err).Warn("alpaca read loop ended")
		}

		pingCancel()
		stop()
		conn.Close()

		if waitForReconnect(a.ctx, a.cfg.Reconnect) {
			return
		}
	}
}

func (a *Alpaca) handshake(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(alpacaHandshakeTO))
	defer conn.SetReadDeadline(time.Time{})

	if err := expectControl(conn, "success", "connected"); err != nil {
		return err
	}
	auth := map[string]string{"action": "auth", "key": a.cfg.KeyID, "secret": a.cfg.SecretKey}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	if err := expectControl(conn, "success", "authenticated"); err != nil {
		return err
	}

	trades := make([]string, 0, len(a.symbols))
	for _, sym := range a.symbols {
		trades = append(trades, symbols.Native(model.FeedAlpaca, sym))
	}
	sub := map[string]any{"action": "subscribe", "trades": trades}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	return expectControl(conn, "subscription", "")
}

func expectControl(conn *websocket.Conn, kind, msg string) error {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	var frames []alpacaMessage
	if err := json.Unmarshal(raw, &frames); err != nil {
		return fmt.Errorf("decode control frame: %w", err)
	}
	for _, f := range frames {
		if f.T == "error" {
			return fmt.Errorf("alpaca error %d: %s", f.Code, f.Msg)
		}
		if f.T == kind && (msg == "" || f.Msg == msg) {
			return nil
		}
	}
	return fmt.Errorf("unexpected alpaca frame %s", string(raw))
}

func (a *Alpaca) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ticks, err := parseAlpacaTrades(raw)
		if err != nil {
			a.log.WithComponent("alpaca_feed").WithError(err).Warn("skipping alpaca message")
			continue
		}
		for _, tick := range ticks {
			if !forward(a.ctx, a.ticks, a.log, tick) {
				return a.ctx.Err()
			}
		}
	}
}

// parseAlpacaTrades returns the trades in a batch. An error frame in the
// batch is reported as an error.
func parseAlpacaTrades(raw []byte) ([]model.Tick, error) {
	var frames []alpacaMessage
	if err := json.Unmarshal(raw, &frames); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []model.Tick
	for _, f := range frames {
		switch f.T {
		case "t":
			if f.P <= 0 || f.S == "" {
				continue
			}
			ts := f.Time.UTC()
			if f.Time.IsZero() {
				ts = now
			}
			out = append(out, model.Tick{
				Feed:      model.FeedAlpaca,
				Symbol:    symbols.Canonical(model.FeedAlpaca, f.S),
				RawSymbol: f.S,
				Price:     f.P,
				Timestamp: ts,
				Received:  now,
			})
		case "error":
			return out, fmt.Errorf("alpaca error %d: %s", f.Code, f.Msg)
		}
	}
	return out, nil
}

func startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *logger.Entry) context.CancelFunc {
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					cancel()
					return
				}
			}
		}
	}()
	return cancel
}
