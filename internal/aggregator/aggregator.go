// Package aggregator keeps the rolling price windows of a monitored pair and
// turns every tick into a spread, z-score and signal.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pairwatch/internal/analytics"
	"pairwatch/internal/metrics"
	"pairwatch/internal/model"
	"pairwatch/internal/notifier"
	"pairwatch/logger"
)

// State of a pair monitor. Once both windows are full a pair stays ready
// because eviction keeps each window at capacity.
type State string

const (
	StateWarming State = "warming"
	StateReady   State = "ready"
)

// AlertNotifier delivers alerts. Failures are reported but never change
// aggregator state.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert model.Alert) error
}

// WindowStore persists accepted prices so a restarted monitor can warm up.
type WindowStore interface {
	Append(ctx context.Context, symbol string, price float64, capacity int) error
	Load(ctx context.Context, symbol string, capacity int) ([]float64, error)
}

type Options struct {
	LegA       string
	LegB       string
	Window     int
	Thresholds analytics.Thresholds

	Notifier      AlertNotifier
	Store         WindowStore
	NotifyTimeout time.Duration
}

// Result describes what one tick did to the pair.
type Result struct {
	Symbol    string
	Accepted  bool
	State     State
	Evaluated bool
	Spread    float64
	ZScore    float64
	Signal    analytics.Signal
	Alert     *model.Alert
	// Err holds a degenerate spread; the tick is still kept in the window.
	Err       error
	NotifyErr error
}

// Snapshot is a point in time view of the pair for status reporting.
type Snapshot struct {
	Pair           string           `json:"pair"`
	LegA           string           `json:"leg_a"`
	LegB           string           `json:"leg_b"`
	State          State            `json:"state"`
	Window         int              `json:"window"`
	FillA          int              `json:"fill_a"`
	FillB          int              `json:"fill_b"`
	PriceA         float64          `json:"price_a"`
	PriceB         float64          `json:"price_b"`
	MeanA          float64          `json:"mean_a"`
	MeanB          float64          `json:"mean_b"`
	Spread         float64          `json:"spread"`
	ZScore         float64          `json:"zscore"`
	Signal         analytics.Signal `json:"signal"`
	Ticks          int64            `json:"ticks"`
	Degenerate     int64            `json:"degenerate"`
	Alerts         int64            `json:"alerts"`
	NotifyFailures int64            `json:"notify_failures"`
	Suppressed     int64            `json:"alerts_suppressed"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Aggregator owns the two rolling windows of one pair. Window mutation and
// signal computation for a tick happen under a single lock; persistence and
// notification run after it is released.
type Aggregator struct {
	opts Options
	name string

	mu    sync.Mutex
	a, b  *Window
	ready bool
	snap  Snapshot

	log   *logger.Log
	now   func() time.Time
	newID func() string
}

func New(opts Options) (*Aggregator, error) {
	opts.LegA = strings.TrimSpace(opts.LegA)
	opts.LegB = strings.TrimSpace(opts.LegB)
	if opts.LegA == "" || opts.LegB == "" {
		return nil, fmt.Errorf("both legs are required")
	}
	if strings.EqualFold(opts.LegA, opts.LegB) {
		return nil, fmt.Errorf("legs must differ, got %s twice", opts.LegA)
	}
	if opts.Window < 2 {
		return nil, fmt.Errorf("window must be at least 2, got %d", opts.Window)
	}
	if opts.Thresholds == (analytics.Thresholds{}) {
		opts.Thresholds = analytics.DefaultThresholds
	}
	if opts.Thresholds.Upper <= opts.Thresholds.Lower {
		return nil, fmt.Errorf("upper threshold %.4f must exceed lower threshold %.4f", opts.Thresholds.Upper, opts.Thresholds.Lower)
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 20 * time.Second
	}

	name := opts.LegA + "/" + opts.LegB
	return &Aggregator{
		opts: opts,
		name: name,
		a:    NewWindow(opts.Window),
		b:    NewWindow(opts.Window),
		snap: Snapshot{
			Pair:   name,
			LegA:   opts.LegA,
			LegB:   opts.LegB,
			State:  StateWarming,
			Window: opts.Window,
			Signal: analytics.SignalNeutral,
		},
		log:   logger.GetLogger(),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}, nil
}

func (g *Aggregator) Name() string { return g.name }

// Tracks reports whether symbol is one of the pair's legs.
func (g *Aggregator) Tracks(symbol string) bool {
	return strings.EqualFold(symbol, g.opts.LegA) || strings.EqualFold(symbol, g.opts.LegB)
}

// OnTick feeds one trade into the pair. Ticks for other instruments and
// prices that are not positive finite numbers are ignored.
func (g *Aggregator) OnTick(ctx context.Context, symbol string, price float64) Result {
	res := g.apply(symbol, price)
	if !res.Accepted {
		return res
	}

	g.persist(ctx, res.Symbol, price)
	g.observe(res)

	if res.Alert != nil {
		res.NotifyErr = g.notify(ctx, *res.Alert)
	}
	return res
}

// apply is the critical section: append, evict, compute and detect.
func (g *Aggregator) apply(symbol string, price float64) Result {
	var leg *Window
	switch {
	case strings.EqualFold(symbol, g.opts.LegA):
		leg, symbol = g.a, g.opts.LegA
	case strings.EqualFold(symbol, g.opts.LegB):
		leg, symbol = g.b, g.opts.LegB
	default:
		return Result{Symbol: symbol}
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Result{Symbol: symbol}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	leg.Push(price)
	g.snap.Ticks++
	g.snap.UpdatedAt = g.now()
	g.refreshLegsLocked()

	res := Result{Symbol: symbol, Accepted: true, State: StateWarming, Signal: analytics.SignalNeutral}
	if !g.ready && g.a.Full() && g.b.Full() {
		g.ready = true
		g.snap.State = StateReady
	}
	if !g.ready {
		return res
	}
	res.State = StateReady

	spread, zscore, err := analytics.PositionalSpreadAndZScore(g.a.Values(), g.b.Values())
	if err != nil {
		// Constant spread window: no z-score, so no signal.
		g.snap.Degenerate++
		g.snap.Spread = g.snap.PriceA - g.snap.PriceB
		g.snap.ZScore = 0
		g.snap.Signal = analytics.SignalNeutral
		res.Err = err
		return res
	}

	latestSpread := spread[len(spread)-1]
	latestZ := zscore[len(zscore)-1]
	signal := analytics.DetectSignal(zscore, g.opts.Thresholds)

	res.Evaluated = true
	res.Spread = latestSpread
	res.ZScore = latestZ
	res.Signal = signal

	g.snap.Spread = latestSpread
	g.snap.ZScore = latestZ
	g.snap.Signal = signal

	if signal.Actionable() {
		g.snap.Alerts++
		res.Alert = &model.Alert{
			ID:        g.newID(),
			Pair:      g.name,
			LegA:      g.opts.LegA,
			LegB:      g.opts.LegB,
			Signal:    signal,
			ZScore:    latestZ,
			PriceA:    g.snap.PriceA,
			PriceB:    g.snap.PriceB,
			Spread:    latestSpread,
			Timestamp: g.snap.UpdatedAt,
		}
	}
	return res
}

func (g *Aggregator) refreshLegsLocked() {
	g.snap.FillA, g.snap.FillB = g.a.Len(), g.b.Len()
	g.snap.PriceA, _ = g.a.Last()
	g.snap.PriceB, _ = g.b.Last()
	g.snap.MeanA, g.snap.MeanB = g.a.Mean(), g.b.Mean()
}

func (g *Aggregator) persist(ctx context.Context, symbol string, price float64) {
	if g.opts.Store == nil {
		return
	}
	if err := g.opts.Store.Append(ctx, symbol, price, g.opts.Window); err != nil {
		g.log.WithComponent("aggregator").WithFields(logger.Fields{
			"pair":   g.name,
			"symbol": symbol,
		}).WithError(err).Warn("failed to persist tick")
	}
}

func (g *Aggregator) observe(res Result) {
	metrics.EmitTick(g.log, g.name, res.Symbol)

	log := g.log.WithComponent("aggregator").WithFields(logger.Fields{
		"pair":   g.name,
		"symbol": res.Symbol,
		"state":  res.State,
	})
	switch {
	case res.Err != nil:
		log.WithError(res.Err).Warn("spread is degenerate; skipping signal")
	case res.Evaluated:
		metrics.EmitSignal(g.log, g.name, res.Spread, res.ZScore)
		log.WithFields(logger.Fields{
			"zscore": fmt.Sprintf("%.2f", res.ZScore),
			"signal": res.Signal,
		}).Info("latest z-score")
	default:
		log.Debug("warming up")
	}
}

func (g *Aggregator) notify(ctx context.Context, alert model.Alert) error {
	metrics.EmitAlert(g.log, g.name, string(alert.Signal))

	log := g.log.WithComponent("aggregator").WithFields(logger.Fields{
		"pair":     g.name,
		"alert_id": alert.ID,
		"signal":   alert.Signal,
		"zscore":   alert.ZScore,
	})
	if g.opts.Notifier == nil {
		log.Info("alert raised; no notifier configured")
		return nil
	}

	nctx, cancel := context.WithTimeout(ctx, g.opts.NotifyTimeout)
	defer cancel()

	start := time.Now()
	err := g.opts.Notifier.NotifyAlert(nctx, alert)
	if errors.Is(err, notifier.ErrSuppressed) {
		g.mu.Lock()
		g.snap.Suppressed++
		g.mu.Unlock()
		log.Info("alert suppressed by rate limit; not sent")
		return err
	}
	if err != nil {
		g.mu.Lock()
		g.snap.NotifyFailures++
		g.mu.Unlock()
		metrics.EmitNotifyFailure(g.log, g.name)
		if errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("alert delivery cancelled")
		} else {
			log.WithError(err).Error("failed to deliver alert")
		}
		return err
	}
	logger.LogPerformanceEntry(log, "aggregator", "notify", time.Since(start), logger.Fields{"alert_id": alert.ID})
	log.Info("alert sent")
	return nil
}

// Warm loads persisted prices for both legs. Warm-up only fills the windows;
// the first signal is evaluated on the next live tick.
func (g *Aggregator) Warm(ctx context.Context) error {
	if g.opts.Store == nil {
		return nil
	}
	pricesA, err := g.opts.Store.Load(ctx, g.opts.LegA, g.opts.Window)
	if err != nil {
		return fmt.Errorf("load %s: %w", g.opts.LegA, err)
	}
	pricesB, err := g.opts.Store.Load(ctx, g.opts.LegB, g.opts.Window)
	if err != nil {
		return fmt.Errorf("load %s: %w", g.opts.LegB, err)
	}
	g.Preload(pricesA, pricesB)

	g.log.WithComponent("aggregator").WithFields(logger.Fields{
		"pair":   g.name,
		"fill_a": len(pricesA),
		"fill_b": len(pricesB),
	}).Info("windows warmed from store")
	return nil
}

// Preload pushes historical prices into the windows without evaluating.
func (g *Aggregator) Preload(pricesA, pricesB []float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range pricesA {
		if p > 0 && !math.IsInf(p, 0) {
			g.a.Push(p)
		}
	}
	for _, p := range pricesB {
		if p > 0 && !math.IsInf(p, 0) {
			g.b.Push(p)
		}
	}
	g.refreshLegsLocked()
	if g.a.Full() && g.b.Full() {
		g.ready = true
		g.snap.State = StateReady
	}
}

// Snapshot returns the current status of the pair.
func (g *Aggregator) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

// Windows returns copies of both windows in arrival order.
func (g *Aggregator) Windows() ([]float64, []float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.a.Values(), g.b.Values()
}
