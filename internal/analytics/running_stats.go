package analytics

import "math"

// RunningStats keeps Welford's mean and sum of squared deviations for a
// sliding set of observations. Remove must only be called with a value that
// was previously added.
type RunningStats struct {
	count int
	mean  float64
	m2    float64
}

func (r *RunningStats) Add(x float64) {
	r.count++
	delta := x - r.mean
	r.mean += delta / float64(r.count)
	r.m2 += delta * (x - r.mean)
}

func (r *RunningStats) Remove(x float64) {
	if r.count <= 1 {
		*r = RunningStats{}
		return
	}
	delta := x - r.mean
	r.mean -= delta / float64(r.count-1)
	r.m2 -= delta * (x - r.mean)
	r.count--
	if r.m2 < 0 {
		r.m2 = 0
	}
}

func (r *RunningStats) Count() int { return r.count }

func (r *RunningStats) Mean() float64 { return r.mean }

// Variance is the sample variance (n-1 denominator); NaN below two points.
func (r *RunningStats) Variance() float64 {
	if r.count < 2 {
		return math.NaN()
	}
	return r.m2 / float64(r.count-1)
}

func (r *RunningStats) StdDev() float64 {
	return math.Sqrt(r.Variance())
}
