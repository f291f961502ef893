package measurement

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/state"
)

// Axis identifies which sweep plane of a base station a light sample was
// read from.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Generation distinguishes base-station hardware revisions, each with its
// own sweep-angle projection formula (spec 4.4.2: "four generated
// variants: {gen1, gen2} x {x-axis, y-axis}").
type Generation int

const (
	Gen1 Generation = iota
	Gen2
)

// LighthousePose is a base station's estimated pose and calibration, as
// known to the orchestrator. The filter state carries the tracked object's
// pose; base-station poses/calibration are supplied externally (spec's
// non-goal: no lighthouse calibration storage here).
type LighthousePose struct {
	Position    [3]float64
	OrientationInv [4]float64 // world-to-lighthouse rotation, quat wxyz
}

// LightSample is one per-sensor angle reading from one base-station sweep.
type LightSample struct {
	LighthouseID int
	SensorID     int
	Axis         Axis
	Gen          Generation
	Value        float64
	Timecode     float64
}

// LightProjector computes the sweep angle a base station at `lh` would
// observe for the sensor point `sensorBody` (in the tracked object's body
// frame) given the object pose (position, orientation), for one {gen,
// axis} combination. Implementations hold whatever symbolic projection
// math and per-sensor/per-lighthouse calibration the deployment needs;
// this package only calls through the interface (spec non-goal: "no
// symbolic-projection math").
type LightProjector interface {
	Project(gen Generation, axis Axis, lh LighthousePose, objPos [3]float64, objOrient [4]float64, sensorBody [3]float64) float64
}

// SensorLookup resolves a (lighthouseID, sensorID) pair to the data a
// projection needs: the base station's pose and the sensor's body-frame
// position on the tracked object.
type SensorLookup interface {
	Lighthouse(id int) (LighthousePose, bool)
	SensorPoint(id int) ([3]float64, bool)
}

// LightModel implements the batched optical sweep observation (spec
// section 4.4.2). One Update call carries a whole batch of LightSample
// values; Dim varies per batch, so Residual/Jacobian are built for the
// batch handed to Predict via SetBatch, mirroring the axis-angle pose
// model's SetObservation pattern.
type LightModel struct {
	Config
	Layout state.Layout

	Projector LightProjector
	Lookup    SensorLookup

	ObsCovScale float64
	LightVar    float64

	// RampInLength scales R up for the first N integrations, settling to
	// LightVar afterward (spec supplement, grounded on the original's
	// lightcap rampin).
	RampInLength int
	rampInCount  int

	// MaxError clamps each residual to +-MaxError when positive
	// (lightcap_max_error).
	MaxError float64

	batch []LightSample
}

// NewLightModel returns a LightModel with the spec's default light
// variance and a 1x obs-cov-scale.
func NewLightModel(l state.Layout, proj LightProjector, lookup SensorLookup) *LightModel {
	cfg := DefaultConfig()
	cfg.MaxIterations = 10
	return &LightModel{
		Config:      cfg,
		Layout:      l,
		Projector:   proj,
		Lookup:      lookup,
		ObsCovScale: 1,
		LightVar:    1e-4,
	}
}

// SetBatch records the batch of samples the next Predict/Residual/
// Jacobian/BuildR calls operate over. Samples whose lighthouse or sensor
// cannot be resolved are dropped silently -- admission gating for
// unresolved base stations happens one level up in the orchestrator, but
// a defensive drop here keeps Predict total.
func (m *LightModel) SetBatch(samples []LightSample) {
	m.batch = m.batch[:0]
	for _, s := range samples {
		if _, ok := m.Lookup.Lighthouse(s.LighthouseID); !ok {
			continue
		}
		if _, ok := m.Lookup.SensorPoint(s.SensorID); !ok {
			continue
		}
		m.batch = append(m.batch, s)
	}
}

// Dim returns the current batch length.
func (m *LightModel) Dim() int { return len(m.batch) }

func (m *LightModel) predictOne(x *state.Full, s LightSample) float64 {
	lh, _ := m.Lookup.Lighthouse(s.LighthouseID)
	pt, _ := m.Lookup.SensorPoint(s.SensorID)
	p := x.Position()
	q := x.Orientation()
	return m.Projector.Project(s.Gen, s.Axis, lh, p, [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag}, pt)
}

// Predict returns h(x), one predicted sweep angle per sample in the
// current batch.
func (m *LightModel) Predict(x *state.Full) *mat.VecDense {
	out := mat.NewVecDense(len(m.batch), nil)
	for i, s := range m.batch {
		out.SetVec(i, m.predictOne(x, s))
	}
	return out
}

// Residual computes y = Z - h(x), clamped per-entry to +-MaxError when
// MaxError is positive (lightcap_max_error, spec section 4.4.2).
func (m *LightModel) Residual(x *state.Full, z *mat.VecDense) *mat.VecDense {
	h := m.Predict(x)
	y := mat.NewVecDense(len(m.batch), nil)
	for i := range m.batch {
		v := z.AtVec(i) - h.AtVec(i)
		if m.MaxError > 0 {
			if v > m.MaxError {
				v = m.MaxError
			} else if v < -m.MaxError {
				v = -m.MaxError
			}
		}
		y.SetVec(i, v)
	}
	return y
}

// Jacobian differentiates Predict numerically: the generated gen/axis
// projection formulas are opaque behind LightProjector, so there is no
// closed form for this package to hand-derive.
func (m *LightModel) Jacobian(x *state.Full, errorState bool) *mat.Dense {
	dim := m.Layout.Dim
	if errorState {
		dim = m.Layout.ErrorDim
	}
	n := len(m.batch)
	h := mat.NewDense(n, dim, nil)
	if n == 0 {
		return h
	}

	fn := func(yOut, xv []float64) {
		var xi *state.Full
		if errorState {
			eps := &state.Error{Layout: m.Layout, Vec: mat.NewVecDense(m.Layout.ErrorDim, xv)}
			xi = state.Retract(x, eps)
		} else {
			xi = &state.Full{Layout: m.Layout, Vec: mat.NewVecDense(m.Layout.Dim, xv)}
		}
		p := m.Predict(xi)
		copy(yOut, p.RawVector().Data)
	}

	base := make([]float64, dim)
	if !errorState {
		copy(base, x.Vec.RawVector().Data)
	}
	fd.Jacobian(h, fn, base, &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})
	return h
}

// BuildR returns the batch's observation covariance: LightVar (scaled by
// ObsCovScale and the rampin factor) on every diagonal entry, zero
// off-diagonal -- light samples from distinct sensors/sweeps are
// independent.
func (m *LightModel) BuildR() *mat.SymDense {
	n := len(m.batch)
	v := m.LightVar * m.ObsCovScale
	if m.RampInLength > 0 && m.rampInCount < m.RampInLength {
		m.rampInCount++
		scale := float64(m.RampInLength) / float64(m.rampInCount)
		v *= scale
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, v)
	}
	return out
}

// Admit reports whether a light update should be attempted, per spec
// section 4.4.2's admission rules: positional-variance gate and the
// minimum-observation-count gate. Per-sample lighthouse-pose availability
// is already enforced by SetBatch.
func Admit(posVarNormSq, thresholdVar float64, obsCount, requiredObs int) bool {
	if obsCount < requiredObs {
		return false
	}
	if thresholdVar > 0 && posVarNormSq > thresholdVar {
		return false
	}
	return true
}
