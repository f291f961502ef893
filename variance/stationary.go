package variance

// StationaryFunc reports whether the tracked object is currently
// stationary as of time t, per whatever activity heuristic the caller
// implements (grounded on the original's SurviveSensorActivations
// stationary-time threshold against an exported per-axis activity
// counter, spec supplement #2).
type StationaryFunc func(t float64) bool

// StationaryTracker wraps a Tracker so it only accumulates samples while
// Stationary(t) holds, and resets whenever motion resumes -- matching the
// original's integrate_variance_tracker, which resets the accumulator
// unless the object has been stationary for the configured threshold
// duration.
type StationaryTracker struct {
	*Tracker
	Stationary StationaryFunc

	wasStationary bool
}

// NewStationaryTracker returns a StationaryTracker sized for the given
// number of axes, gated by fn.
func NewStationaryTracker(axes int, fn StationaryFunc) *StationaryTracker {
	return &StationaryTracker{
		Tracker:    NewTracker(axes),
		Stationary: fn,
	}
}

// Integrate folds in v at time t if the object is stationary; otherwise it
// resets the accumulator, since motion invalidates accumulated statistics.
func (s *StationaryTracker) Integrate(t float64, v []float64) {
	if s.Stationary == nil || !s.Stationary(t) {
		s.Reset()
		s.wasStationary = false
		return
	}
	s.wasStationary = true
	s.Add(v)
}

// WasStationary reports whether the most recent Integrate call found the
// object stationary.
func (s *StationaryTracker) WasStationary() bool { return s.wasStationary }
