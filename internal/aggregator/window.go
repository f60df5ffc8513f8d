package aggregator

import "pairwatch/internal/analytics"

// Window is a fixed capacity FIFO of raw prices for one instrument. It is not
// safe for concurrent use; the owning Aggregator serialises access.
type Window struct {
	capacity int
	data     []float64
	stats    analytics.RunningStats
}

func NewWindow(capacity int) *Window {
	return &Window{
		capacity: capacity,
		data:     make([]float64, 0, capacity),
	}
}

// Push appends v, evicting the oldest value first when the window is full.
// The evicted value is returned with ok set.
func (w *Window) Push(v float64) (evicted float64, ok bool) {
	if len(w.data) == w.capacity {
		evicted, ok = w.data[0], true
		copy(w.data, w.data[1:])
		w.data = w.data[:len(w.data)-1]
		w.stats.Remove(evicted)
	}
	w.data = append(w.data, v)
	w.stats.Add(v)
	return evicted, ok
}

func (w *Window) Len() int { return len(w.data) }

func (w *Window) Capacity() int { return w.capacity }

func (w *Window) Full() bool { return len(w.data) >= w.capacity }

// Values returns a copy of the window in arrival order.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.data))
	copy(out, w.data)
	return out
}

func (w *Window) Last() (float64, bool) {
	if len(w.data) == 0 {
		return 0, false
	}
	return w.data[len(w.data)-1], true
}

// Mean and StdDev are maintained incrementally and are informational only;
// signals are always computed from the full window.
func (w *Window) Mean() float64 { return w.stats.Mean() }

func (w *Window) StdDev() float64 { return w.stats.StdDev() }
