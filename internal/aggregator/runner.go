package aggregator

import (
	"context"
	"fmt"
	"sync"

	"pairwatch/internal/model"
	"pairwatch/logger"
)

// TickRecorder receives every tick accepted by at least one pair.
type TickRecorder interface {
	Record(tick model.Tick)
}

// Runner is the single consumer of the tick stream. It hands each tick to
// every aggregator tracking the symbol, one tick at a time.
type Runner struct {
	ticks       <-chan model.Tick
	aggregators []*Aggregator
	recorder    TickRecorder
	log         *logger.Log

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statsMu sync.RWMutex
	stats   RunnerStats
}

type RunnerStats struct {
	Received int64
	Routed   int64
	Ignored  int64
}

func NewRunner(ticks <-chan model.Tick, aggregators ...*Aggregator) *Runner {
	return &Runner{
		ticks:       ticks,
		aggregators: aggregators,
		log:         logger.GetLogger(),
	}
}

// SetRecorder installs a recorder for accepted ticks. It must be called
// before Start.
func (r *Runner) SetRecorder(rec TickRecorder) {
	r.recorder = rec
}

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("aggregator runner already running")
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	names := make([]string, 0, len(r.aggregators))
	for _, g := range r.aggregators {
		names = append(names, g.Name())
	}
	r.log.WithComponent("aggregator_runner").WithFields(logger.Fields{
		"pairs": names,
	}).Info("starting aggregator runner")

	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

// Stop cancels the consumer and waits for the in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()

	stats := r.Stats()
	r.log.WithComponent("aggregator_runner").WithFields(logger.Fields{
		"received": stats.Received,
		"routed":   stats.Routed,
		"ignored":  stats.Ignored,
	}).Info("aggregator runner stopped")
}

// Wait blocks until the consumer exits, either because the tick channel was
// closed or the runner was stopped.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-r.ticks:
			if !ok {
				r.log.WithComponent("aggregator_runner").Info("tick channel closed")
				return
			}
			r.Handle(ctx, tick)
		}
	}
}

// Handle routes a single tick synchronously.
func (r *Runner) Handle(ctx context.Context, tick model.Tick) {
	routed := false
	for _, g := range r.aggregators {
		if !g.Tracks(tick.Symbol) {
			continue
		}
		if res := g.OnTick(ctx, tick.Symbol, tick.Price); res.Accepted {
			routed = true
		}
	}
	if routed && r.recorder != nil {
		r.recorder.Record(tick)
	}

	r.statsMu.Lock()
	r.stats.Received++
	if routed {
		r.stats.Routed++
	} else {
		r.stats.Ignored++
	}
	r.statsMu.Unlock()
}

func (r *Runner) Stats() RunnerStats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return r.stats
}

// Snapshots returns the status of every pair.
func (r *Runner) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(r.aggregators))
	for _, g := range r.aggregators {
		out = append(out, g.Snapshot())
	}
	return out
}
