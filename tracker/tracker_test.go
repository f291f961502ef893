package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/lightbatch"
	"github.com/ovrtrack/posekf/measurement"
)

func diagSym(n int, v float64) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, v)
	}
	return out
}

type fakeProjector struct{}

func (fakeProjector) Project(gen measurement.Generation, axis measurement.Axis, lh measurement.LighthousePose, objPos [3]float64, objOrient [4]float64, sensorBody [3]float64) float64 {
	return 0
}

type fakeLookup struct{}

func (fakeLookup) Lighthouse(id int) (measurement.LighthousePose, bool) {
	return measurement.LighthousePose{Position: [3]float64{0, 0, -2}}, true
}

func (fakeLookup) SensorPoint(id int) ([3]float64, bool) {
	return [3]float64{}, true
}

func newTestTracker() *Tracker {
	cfg := DefaultConfig()
	cfg.MinimizeStateSpace = false
	cfg.UseErrorSpace = false
	return New(cfg, fakeProjector{}, fakeLookup{})
}

func TestColdStartConvergence(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	r := diagSym(7, 1e-6)

	for i := 0; i < 20; i++ {
		ts := float64(i+1) * 0.01
		tr.IntegrateObservation(ts, [3]float64{1, 2, 3}, [4]float64{1, 0, 0, 0}, r)
	}

	pos := tr.ekf.State().Position()
	assert.InDelta(1, pos[0], 1e-3)
	assert.InDelta(2, pos[1], 1e-3)
	assert.InDelta(3, pos[2], 1e-3)
	assert.Equal(Running, tr.Phase())
}

func TestLateObservationClampedWithin100ms(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	tr.ekf.SetTime(10.0)

	before := tr.Stats.LateLightDropped
	tr.IntegrateObservation(9.95, [3]float64{0, 0, 0}, [4]float64{1, 0, 0, 0}, nil)
	assert.Equal(before, tr.Stats.LateLightDropped)
}

func TestLateObservationDroppedBeyond100ms(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	tr.ekf.SetTime(10.0)

	before := tr.Stats.ObsCount
	tr.IntegrateObservation(9.80, [3]float64{0, 0, 0}, [4]float64{1, 0, 0, 0}, nil)
	assert.Equal(1, tr.Stats.LateLightDropped)
	assert.Equal(before, tr.Stats.ObsCount)
}

func TestLightAdmissionGatedByRequiredObs(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	// past the uninitialised check and under the variance gate, so only
	// ObsCount (0) < LightRequiredObs can hold the sample back
	tr.phase = Running
	assert.NoError(tr.ekf.SetCov(diagSym(tr.layout.Dim, 1e-6)))
	samples := []measurement.LightSample{{LighthouseID: 0, SensorID: 0, Axis: measurement.AxisX, Value: 0.1}}
	tr.IntegrateLight(0.01, samples)
	_, recorded := tr.Stats.PerLighthouse[0]
	assert.False(recorded)
}

func TestDivergenceResetsOnPositionBound(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	tr.phase = Running
	tr.ekf.State().SetPosition([3]float64{100, 0, 0})

	tr.checkDivergence(1.0)
	assert.Equal(Reset, tr.Phase())
	assert.Equal(1, tr.Stats.Resets)
}

func TestIntegrateLightSampleFlushesOnBatchSize(t *testing.T) {
	assert := assert.New(t)

	tr := newTestTracker()
	tr.Config.LightBatchSize = 2
	tr.batcher = lightbatch.New(2, 4)

	for i := 0; i < 20; i++ {
		ts := float64(i+1) * 0.01
		tr.IntegrateObservation(ts, [3]float64{1, 2, 3}, [4]float64{1, 0, 0, 0}, diagSym(7, 1e-6))
	}
	assert.Equal(Running, tr.Phase())

	before := tr.batcher.Len()
	tr.IntegrateLightSample(0.21, measurement.LightSample{LighthouseID: 0, SensorID: 0, Axis: measurement.AxisX, Value: 0.1}, false)
	assert.Equal(before+1, tr.batcher.Len())

	tr.IntegrateLightSample(0.22, measurement.LightSample{LighthouseID: 0, SensorID: 1, Axis: measurement.AxisY, Value: 0.2}, false)
	assert.Equal(0, tr.batcher.Len())
}

func TestAxisAngleFlipObservation(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.MinimizeStateSpace = false
	cfg.UseErrorSpace = false
	cfg.ObsAxisAngle = true
	tr := New(cfg, fakeProjector{}, fakeLookup{})

	r := diagSym(6, 1e-6)
	tr.IntegrateObservation(0.01, [3]float64{0, 0, 0}, [4]float64{-1, 0, 0, 0}, r)

	assert.True(tr.poseModel.LastFlipped)
}
