// Command posekfdemo drives tracker.Tracker against a synthetic circular
// trajectory and prints the reported pose each step, the same "build
// model, run N steps, print" shape the teacher's examples/ekf demo uses.
package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/measurement"
	"github.com/ovrtrack/posekf/noise"
	"github.com/ovrtrack/posekf/quatutil"
	"github.com/ovrtrack/posekf/tracker"
)

// flatProjector stands in for the real symbolic light-sweep projection
// (spec non-goal): it is never exercised here since the demo only feeds
// pose observations.
type flatProjector struct{}

func (flatProjector) Project(gen measurement.Generation, axis measurement.Axis, lh measurement.LighthousePose, objPos [3]float64, objOrient [4]float64, sensorBody [3]float64) float64 {
	return 0
}

type emptyLookup struct{}

func (emptyLookup) Lighthouse(id int) (measurement.LighthousePose, bool) {
	return measurement.LighthousePose{}, false
}

func (emptyLookup) SensorPoint(id int) ([3]float64, bool) {
	return [3]float64{}, false
}

func main() {
	cfg := tracker.DefaultConfig()
	cfg.ObsAxisAngle = false

	t := tracker.New(cfg, flatProjector{}, emptyLookup{})
	t.OnPose = func(r tracker.Report) {
		fmt.Printf("t=%.3f pos=(%.4f, %.4f, %.4f) quat=(%.4f, %.4f, %.4f, %.4f)\n",
			r.Time, r.Position[0], r.Position[1], r.Position[2],
			r.Orientation[0], r.Orientation[1], r.Orientation[2], r.Orientation[3])
	}

	const (
		steps   = 200
		dt      = 0.01
		radius  = 1.5
		angular = 0.5 // rad/s around the world Z axis
	)

	r := diagSym(7, 1e-6)
	posNoise, err := noise.NewGaussian(make([]float64, 3), diagSym(3, 1e-6))
	if err != nil {
		fmt.Println("failed to build position noise:", err)
		return
	}

	for i := 0; i < steps; i++ {
		ts := float64(i+1) * dt
		theta := angular * ts

		n := posNoise.Sample()
		pos := [3]float64{
			radius*math.Cos(theta) + n.AtVec(0),
			radius*math.Sin(theta) + n.AtVec(1),
			0.25*math.Sin(theta/2) + n.AtVec(2),
		}
		q := quatutil.Exp3([3]float64{0, 0, theta})

		t.IntegrateObservation(ts, pos, [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag}, r)
	}

	fmt.Printf("final phase=%s obs=%d resets=%d suppressed=%d\n",
		t.Phase(), t.Stats.ObsCount, t.Stats.Resets, t.Stats.ReportsSuppressed)

	if est := t.LastEstimate(); est != nil {
		fmt.Printf("last predicted output: %v\n", mat.Formatted(est.Output().(*mat.VecDense).T()))
	}
}

// diagSym builds an n-wide diagonal covariance matrix with variance v on
// every axis, the fixed observation-noise estimate fed to IntegrateObservation.
func diagSym(n int, v float64) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, v)
	}
	return out
}
