package measurement

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ovrtrack/posekf/quatutil"
	"github.com/ovrtrack/posekf/state"
)

// PoseModel implements the pose observation measurement (spec section
// 4.4.1), in either its quaternion or axis-angle variant.
type PoseModel struct {
	Config
	Layout    state.Layout
	AxisAngle bool // kalman-obs-axisangle

	ObsCovScale float64
	ObsPosVar   float64
	ObsRotVar   float64

	// Failures counts updates skipped due to NumericalInstability.
	Failures int
	// LastFlipped records whether the most recent axis-angle residual
	// took the antipodal ("flip") branch.
	LastFlipped bool

	lastObs *mat.VecDense
}

// SetObservation records the 7-wide observed pose (position + quaternion)
// that Residual and the axis-angle Jacobian are evaluated against for the
// next Update call. Callers must set this before invoking ekf.Update for
// the axis-angle variant.
func (m *PoseModel) SetObservation(obs *mat.VecDense) { m.lastObs = obs }

// NewPoseModel returns a PoseModel with the spec's default obs-pos/rot
// variance and a 1x obs-cov-scale.
func NewPoseModel(l state.Layout, axisAngle bool) *PoseModel {
	return &PoseModel{
		Config:      DefaultConfig(),
		Layout:      l,
		AxisAngle:   axisAngle,
		ObsCovScale: 1,
		ObsPosVar:   1e-6,
		ObsRotVar:   1e-7,
	}
}

// Dim returns 6 for the axis-angle variant, 7 for the quaternion variant.
func (m *PoseModel) Dim() int {
	if m.AxisAngle {
		return 6
	}
	return 7
}

// Predict returns h(x) in the quaternion variant (spec: "h(x) =
// x[0..7]"). The axis-angle variant folds its whole nonlinear comparison
// into Residual, so here it returns the zero vector: callers feed
// Update's z argument with Residual(x, observedPose) directly, making
// y = z - h(x) = Residual unchanged.
func (m *PoseModel) Predict(x *state.Full) *mat.VecDense {
	if m.AxisAngle {
		return mat.NewVecDense(6, nil)
	}
	p := x.Position()
	q := x.Orientation()
	return mat.NewVecDense(7, []float64{p[0], p[1], p[2], q.Real, q.Imag, q.Jmag, q.Kmag})
}

// Residual computes the measurement residual y = Z - h(x). For the
// quaternion variant this is a plain 7-wide elementwise difference. For
// the axis-angle variant, Z is a 7-wide observed pose (position +
// quaternion) and the rotational part of the residual is the "no-flip"
// shortest-arc axis-angle delta between predicted and observed
// orientation (spec section 4.4.1).
func (m *PoseModel) Residual(x *state.Full, z *mat.VecDense) *mat.VecDense {
	pred := x.Position()
	predQ := x.Orientation()

	if !m.AxisAngle {
		h := m.Predict(x)
		y := &mat.VecDense{}
		y.SubVec(z, h)
		return y
	}

	obsQ := quat.Number{Real: z.AtVec(3), Imag: z.AtVec(4), Jmag: z.AtVec(5), Kmag: z.AtVec(6)}
	aa, flipped := quatutil.NoFlip(predQ, obsQ)
	m.LastFlipped = flipped

	out := mat.NewVecDense(6, nil)
	for i := 0; i < 3; i++ {
		out.SetVec(i, z.AtVec(i)-pred[i])
	}
	out.SetVec(3, aa[0])
	out.SetVec(4, aa[1])
	out.SetVec(5, aa[2])
	return out
}

// Jacobian returns H, the identity on the pose block for the nominal
// quaternion variant, or the retraction Jacobian's pose rows in
// error-state mode. The axis-angle variant's rotational rows are
// differentiated numerically since the flip/no-flip branch makes a closed
// form awkward to maintain by hand (spec: "separate Jacobians are
// provided for flip/no-flip").
func (m *PoseModel) Jacobian(x *state.Full, errorState bool) *mat.Dense {
	dim := m.Layout.Dim
	if errorState {
		dim = m.Layout.ErrorDim
	}
	mdim := m.Dim()
	h := mat.NewDense(mdim, dim, nil)

	if !m.AxisAngle && !errorState {
		posOff := m.Layout.Offset(state.Position)
		rotOff := m.Layout.Offset(state.Orientation)
		for i := 0; i < 3; i++ {
			h.Set(i, posOff+i, 1)
		}
		for i := 0; i < 4; i++ {
			h.Set(3+i, rotOff+i, 1)
		}
		return h
	}

	// numeric differentiation of Residual(x, lastObs) w.r.t. x, holding
	// the actual observed pose fixed: H = -d(residual)/dx
	obs := m.lastObs
	if obs == nil {
		p := x.Position()
		q := x.Orientation()
		obs = mat.NewVecDense(7, []float64{p[0], p[1], p[2], q.Real, q.Imag, q.Jmag, q.Kmag})
	}
	fn := func(yOut, xv []float64) {
		var xi *state.Full
		if errorState {
			eps := &state.Error{Layout: m.Layout, Vec: mat.NewVecDense(m.Layout.ErrorDim, xv)}
			xi = state.Retract(x, eps)
		} else {
			xi = &state.Full{Layout: m.Layout, Vec: mat.NewVecDense(m.Layout.Dim, xv)}
		}
		res := m.Residual(xi, obs)
		for i := 0; i < res.Len(); i++ {
			yOut[i] = -res.AtVec(i)
		}
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

// BuildR returns the observation noise covariance: the caller-supplied R
// (scaled by ObsCovScale) with ObsPosVar/ObsRotVar added to the diagonal
// (spec section 4.4.1: "scale R by obs_cov_scale, then add per-axis
// obs_pos_var/obs_rot_var").
func (m *PoseModel) BuildR(provided mat.Symmetric) *mat.SymDense {
	n := m.Dim()
	out := mat.NewSymDense(n, nil)
	if provided != nil && provided.SymmetricDim() == n {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				out.SetSym(i, j, provided.At(i, j)*m.ObsCovScale)
			}
		}
	}
	posRows := 3
	for i := 0; i < n; i++ {
		v := out.At(i, i)
		if i < posRows {
			v += m.ObsPosVar
		} else {
			v += m.ObsRotVar
		}
		out.SetSym(i, i, v)
	}
	return out
}
