// Package procnoise assembles the continuous-time process-noise
// covariance Q(dt) from a set of tuning weights, mixing a third-order
// (jerk), second-order (accel) and first-order (velocity) positional
// noise model with a quaternion-aware (nominal) or axis-angle
// (error-state) second-order rotational model, plus bias random walks.
package procnoise

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/state"
)

// Weights holds the continuous-time process-noise densities (spec section
// 4.2 / config keys process-weight-*).
type Weights struct {
	Jerk     float64
	Acc      float64
	Vel      float64
	Pos      float64
	Rotation float64
	AngVel   float64
	AccBias  float64
	GyroBias float64

	// FlatPerAxis, when NoiseModel == Flat, gives the flat
	// variance-per-second for each index of the (nominal or error) state
	// vector, used instead of the polynomial blocks (spec's
	// kalman-noise-model = 1).
	FlatPerAxis [state.FullErrorDim]float64
}

// NoiseModel selects between the polynomial process-noise model and the
// flat per-dt alternative.
type NoiseModel int

const (
	Polynomial NoiseModel = iota
	Flat
)

// Build returns Q(dt), sized to l.Dim x l.Dim (nominal mode) or
// l.ErrorDim x l.ErrorDim (error-state mode). x supplies the current
// orientation quaternion the nominal-mode rotational block is linearized
// around; it is ignored in error-state mode.
func Build(dt float64, w Weights, l state.Layout, errorState bool, model NoiseModel, x *state.Full) *mat.SymDense {
	dim := l.Dim
	if errorState {
		dim = l.ErrorDim
	}
	q := mat.NewDense(dim, dim, nil)

	if model == Flat {
		buildFlat(q, dt, w, l, errorState)
	} else if errorState {
		buildPolynomialError(q, dt, w, l)
	} else {
		buildPolynomialNominal(q, dt, w, l, x)
	}

	addBiasRandomWalk(q, dt, w, l, errorState)

	sym, err := symmetrize(q)
	if err != nil {
		panic(err)
	}
	return sym
}

func symmetrize(q *mat.Dense) (*mat.SymDense, error) {
	r, _ := q.Dims()
	vals := make([]float64, r*r)
	idx := 0
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			vals[idx] = q.At(i, j)
			idx++
		}
	}
	return mat.NewSymDense(r, vals), nil
}

func buildFlat(q *mat.Dense, dt float64, w Weights, l state.Layout, errorState bool) {
	dim, _ := q.Dims()
	for i := 0; i < dim; i++ {
		if i < len(w.FlatPerAxis) {
			q.Set(i, i, w.FlatPerAxis[i]*dt)
		}
	}
	_ = l
	_ = errorState
}

// polyTerms computes the six positional noise coefficients (p_p, p_v,
// p_a, v_v, v_a, a_a) shared by both the nominal and error-state
// rotational-block builders, plus the rotational (rv, r_av) and shared
// angular-velocity-diagonal (s_w*t) terms.
type polyTerms struct {
	pp, pv, pa, vv, va, aa float64
	rv, rav, sw, swt       float64
}

func computePolyTerms(dt float64, w Weights) polyTerms {
	t, t2, t3, t4, t5, t6, t7 := dt, dt*dt, dt*dt*dt, 0.0, 0.0, 0.0, 0.0
	t4 = t3 * t
	t5 = t4 * t
	t6 = t5 * t
	t7 = t6 * t

	jerk := [6]float64{t7 / 252, t6 / 72, t5 / 30, t5 / 20, t4 / 8, t3 / 3}
	acc := [6]float64{t5 / 20, t4 / 8, t3 / 6, t3 / 3, t2 / 2, t}
	vel := [3]float64{t3 / 3, t2 / 2, t}

	var pt polyTerms
	pt.pp = w.Jerk*jerk[0] + w.Acc*acc[0] + w.Vel*vel[0] + w.Pos*t2
	pt.pv = w.Jerk*jerk[1] + w.Acc*acc[1] + w.Vel*vel[1]
	pt.pa = w.Jerk*jerk[2] + w.Acc*acc[2]
	pt.vv = w.Jerk*jerk[3] + w.Acc*acc[3] + w.Vel*vel[2]
	pt.va = w.Jerk*jerk[4] + w.Acc*acc[4]
	pt.aa = w.Jerk*jerk[5] + w.Acc*acc[5]

	pt.sw = w.AngVel
	pt.rv = w.AngVel*vel[0] + w.Rotation*t
	pt.rav = w.AngVel * vel[1]
	pt.swt = w.AngVel * t
	return pt
}

func setSym(q *mat.Dense, i, j int, v float64) {
	q.Set(i, j, v)
	q.Set(j, i, v)
}

// buildPolynomialError fills the error-state block exactly as
// survive_kalman_tracker_process_noise's errorState branch does, for
// whichever of (linear velocity, angular velocity, linear acceleration)
// the layout actually carries -- Position and Orientation are always
// enabled, but a truncated layout (e.g. one that drops LinearAcceleration
// and keeps only the velocity groups) must still get process noise on the
// groups it does carry, not an all-zero Q.
func buildPolynomialError(q *mat.Dense, dt float64, w Weights, l state.Layout) {
	pt := computePolyTerms(dt, w)

	posOff := l.ErrorOffset(state.Position)
	rotOff := l.ErrorOffset(state.Orientation)

	hasVel := l.Enabled[state.LinearVelocity]
	hasAV := l.Enabled[state.AngularVelocity]
	hasAcc := l.Enabled[state.LinearAcceleration]

	var velOff, avOff, accOff int
	if hasVel {
		velOff = l.ErrorOffset(state.LinearVelocity)
	}
	if hasAV {
		avOff = l.ErrorOffset(state.AngularVelocity)
	}
	if hasAcc {
		accOff = l.ErrorOffset(state.LinearAcceleration)
	}

	for i := 0; i < 3; i++ {
		q.Set(posOff+i, posOff+i, pt.pp)
		if hasVel {
			setSym(q, posOff+i, velOff+i, pt.pv)
		}
		if hasAcc {
			setSym(q, posOff+i, accOff+i, pt.pa)
		}

		q.Set(rotOff+i, rotOff+i, pt.rv)
		if hasAV {
			setSym(q, rotOff+i, avOff+i, pt.rav)
		}

		if hasVel {
			q.Set(velOff+i, velOff+i, pt.vv)
			if hasAcc {
				setSym(q, velOff+i, accOff+i, pt.va)
			}
		}

		if hasAV {
			q.Set(avOff+i, avOff+i, pt.swt)
		}

		if hasAcc {
			q.Set(accOff+i, accOff+i, pt.aa)
		}
	}
}

// buildPolynomialNominal fills the nominal-state block, whose rotational
// sub-block is linearized around the current orientation quaternion (spec
// section 4.2: "rotational block is a quaternion-aware second-order
// model"), for whichever of (linear velocity, angular velocity, linear
// acceleration) the layout actually carries -- see buildPolynomialError's
// comment for why this can't bail out on a truncated layout.
func buildPolynomialNominal(q *mat.Dense, dt float64, w Weights, l state.Layout, x *state.Full) {
	pt := computePolyTerms(dt, w)

	qq := x.Orientation()
	qw, qx, qy, qz := qq.Real, qq.Imag, qq.Jmag, qq.Kmag
	qws, qxs, qys, qzs := qw*qw, qx*qx, qy*qy, qz*qz
	qs := qws + qxs + qys + qzs

	sf := pt.sw / 12 * dt * dt * dt
	ss := pt.sw / 4 * dt * dt

	posOff := l.Offset(state.Position)
	rotOff := l.Offset(state.Orientation)

	hasVel := l.Enabled[state.LinearVelocity]
	hasAV := l.Enabled[state.AngularVelocity]
	hasAcc := l.Enabled[state.LinearAcceleration]

	var velOff, avOff, accOff int
	if hasVel {
		velOff = l.Offset(state.LinearVelocity)
	}
	if hasAV {
		avOff = l.Offset(state.AngularVelocity)
	}
	if hasAcc {
		accOff = l.Offset(state.LinearAcceleration)
	}

	for i := 0; i < 3; i++ {
		q.Set(posOff+i, posOff+i, pt.pp)
		if hasVel {
			setSym(q, posOff+i, velOff+i, pt.pv)
		}
		if hasAcc {
			setSym(q, posOff+i, accOff+i, pt.pa)
		}

		if hasVel {
			q.Set(velOff+i, velOff+i, pt.vv)
			if hasAcc {
				setSym(q, velOff+i, accOff+i, pt.va)
			}
		}

		if hasAcc {
			q.Set(accOff+i, accOff+i, pt.aa)
		}
	}

	qc := [4]float64{qw, qx, qy, qz}
	qsq := [4]float64{qws, qxs, qys, qzs}
	// rotational 4x4 block
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var v float64
			if i == j {
				v = pt.rv + sf*(qs-qsq[i])
			} else {
				v = sf * (-qc[i] * qc[j])
			}
			q.Set(rotOff+i, rotOff+j, v)
		}
	}

	if hasAV {
		// rotational-to-angular-velocity cross block, per the source's
		// hand-derived skew pattern
		cross := [4][3]float64{
			{-qx, -qy, -qz},
			{qw, -qz, qy},
			{qz, qw, -qx},
			{-qy, qx, qw},
		}
		for i := 0; i < 4; i++ {
			for j := 0; j < 3; j++ {
				v := ss * cross[i][j]
				q.Set(rotOff+i, avOff+j, v)
				q.Set(avOff+j, rotOff+i, v)
			}
		}
		for i := 0; i < 3; i++ {
			q.Set(avOff+i, avOff+i, pt.swt)
		}
	}
}

func addBiasRandomWalk(q *mat.Dense, dt float64, w Weights, l state.Layout, errorState bool) {
	ga := w.AccBias * dt
	gb := w.GyroBias * dt

	if l.Enabled[state.AccBias] {
		off := accBiasOffset(l, errorState)
		n := biasDim(errorState)
		for i := 0; i < n; i++ {
			q.Set(off+i, off+i, ga)
		}
	}
	if l.Enabled[state.GyroBias] {
		off := gyroBiasOffset(l, errorState)
		n := biasDim(errorState)
		for i := 0; i < n; i++ {
			q.Set(off+i, off+i, gb)
		}
	}
}

func biasDim(errorState bool) int {
	if errorState {
		return state.ErrorDims(state.AccBias)
	}
	return state.Dims(state.AccBias)
}

func accBiasOffset(l state.Layout, errorState bool) int {
	if errorState {
		return l.ErrorOffset(state.AccBias)
	}
	return l.Offset(state.AccBias)
}

func gyroBiasOffset(l state.Layout, errorState bool) int {
	if errorState {
		return l.ErrorOffset(state.GyroBias)
	}
	return l.Offset(state.GyroBias)
}
