package channel

import (
	"context"
	"sync"

	"pairwatch/internal/model"
	"pairwatch/logger"
)

type ChannelStats struct {
	TicksSent    int64
	TicksDropped int64
}

// Ticks carries trades from every feed to the pair monitors.
type Ticks struct {
	C chan model.Tick

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewTicks(bufferSize int) *Ticks {
	log := logger.GetLogger()
	c := &Ticks{
		C:   make(chan model.Tick, bufferSize),
		log: log,
	}

	log.WithComponent("tick_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("tick channel initialized")

	return c
}

func (c *Ticks) Close() {
	c.closeOnce.Do(func() {
		close(c.C)
		c.log.WithComponent("tick_channels").Info("tick channel closed")
	})
}

func (c *Ticks) IncrementSent() {
	c.statsMutex.Lock()
	c.stats.TicksSent++
	c.statsMutex.Unlock()
}

func (c *Ticks) IncrementDropped() {
	c.statsMutex.Lock()
	c.stats.TicksDropped++
	c.statsMutex.Unlock()
}

// Send enqueues the tick without blocking. A full buffer drops the tick.
func (c *Ticks) Send(ctx context.Context, tick model.Tick) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case c.C <- tick:
		c.IncrementSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementDropped()
		return false
	}
}

func (c *Ticks) Len() int { return len(c.C) }

func (c *Ticks) Cap() int { return cap(c.C) }

func (c *Ticks) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
