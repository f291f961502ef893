// Package variance implements the streaming statistics the tracker
// orchestrator needs (spec component C8): Welford online mean/variance
// per sensor axis, a stationary-gated wrapper around it, and a rolling
// average used for divergence detection.
package variance

// Tracker accumulates mean and variance online via Welford's algorithm,
// one accumulator per axis (grounded on the original's
// integrate_variance_tracker / variance_tracker_add, which accumulates a
// fixed-size vector of samples per call).
type Tracker struct {
	count int
	mean  []float64
	m2    []float64
}

// NewTracker returns a Tracker sized for the given number of axes.
func NewTracker(axes int) *Tracker {
	return &Tracker{
		mean: make([]float64, axes),
		m2:   make([]float64, axes),
	}
}

// Add folds in one sample vector, one value per axis.
func (t *Tracker) Add(v []float64) {
	t.count++
	for i, x := range v {
		if i >= len(t.mean) {
			break
		}
		delta := x - t.mean[i]
		t.mean[i] += delta / float64(t.count)
		delta2 := x - t.mean[i]
		t.m2[i] += delta * delta2
	}
}

// Reset discards all accumulated samples (spec supplement: reset unless
// the object has been stationary for the configured threshold duration).
func (t *Tracker) Reset() {
	t.count = 0
	for i := range t.mean {
		t.mean[i] = 0
		t.m2[i] = 0
	}
}

// Count returns the number of samples folded in since the last Reset.
func (t *Tracker) Count() int { return t.count }

// Mean returns the per-axis running mean.
func (t *Tracker) Mean() []float64 {
	out := make([]float64, len(t.mean))
	copy(out, t.mean)
	return out
}

// Variance returns the per-axis population variance, or a zero vector if
// fewer than two samples have been accumulated.
func (t *Tracker) Variance() []float64 {
	out := make([]float64, len(t.m2))
	if t.count < 2 {
		return out
	}
	for i, m2 := range t.m2 {
		out[i] = m2 / float64(t.count)
	}
	return out
}
