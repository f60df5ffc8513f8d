package analytics

import (
	"math"
	"strings"
)

// Signal is the discrete trading signal derived from a z-score.
type Signal string

const (
	SignalLong    Signal = "long"
	SignalShort   Signal = "short"
	SignalNeutral Signal = "neutral"
)

// Actionable reports whether the signal should raise an alert.
func (s Signal) Actionable() bool {
	return s == SignalLong || s == SignalShort
}

// Upper renders the signal the way alert messages show it.
func (s Signal) Upper() string {
	return strings.ToUpper(string(s))
}

// Thresholds bound the neutral z-score band.
type Thresholds struct {
	Upper float64
	Lower float64
}

// DefaultThresholds is the ±2 band.
var DefaultThresholds = Thresholds{Upper: 2.0, Lower: -2.0}

// Classify maps a single z-score to a signal. Values exactly on a threshold
// stay neutral.
func Classify(z float64, th Thresholds) Signal {
	switch {
	case math.IsNaN(z):
		return SignalNeutral
	case z > th.Upper:
		return SignalShort
	case z < th.Lower:
		return SignalLong
	default:
		return SignalNeutral
	}
}

// DetectSignal classifies the latest value of a z-score sequence. An empty
// sequence is neutral.
func DetectSignal(zscores []float64, th Thresholds) Signal {
	if len(zscores) == 0 {
		return SignalNeutral
	}
	return Classify(zscores[len(zscores)-1], th)
}
