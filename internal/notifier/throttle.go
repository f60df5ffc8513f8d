package notifier

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pairwatch/logger"
)

// ErrSuppressed is returned for a message the rate limiter dropped. It is not
// a delivery failure.
var ErrSuppressed = errors.New("notification suppressed by rate limit")

// Throttled caps the delivery rate of another notifier. Messages over the
// limit are dropped and counted rather than queued, since a queued alert is
// stale by the time it is sent.
type Throttled struct {
	next       Notifier
	limiter    *rate.Limiter
	suppressed atomic.Int64
	log        *logger.Log
}

// NewThrottled allows perMinute messages with the given burst. A non-positive
// rate disables throttling and returns next unchanged.
func NewThrottled(next Notifier, perMinute float64, burst int) Notifier {
	if perMinute <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	every := time.Duration(float64(time.Minute) / perMinute)
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(every), burst),
		log:     logger.GetLogger(),
	}
}

func (t *Throttled) Name() string { return "throttled_" + t.next.Name() }

func (t *Throttled) Send(ctx context.Context, msg Message) error {
	if !t.limiter.Allow() {
		n := t.suppressed.Add(1)
		t.log.WithComponent("notifier").WithFields(logger.Fields{
			"notifier":   t.next.Name(),
			"message_id": msg.ID,
			"suppressed": n,
		}).Warn("alert suppressed by rate limit")
		return ErrSuppressed
	}
	return t.next.Send(ctx, msg)
}

// Suppressed returns how many messages were dropped.
func (t *Throttled) Suppressed() int64 { return t.suppressed.Load() }
