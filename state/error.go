package state

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ovrtrack/posekf/quatutil"
)

// Error is the tangent-space error state epsilon, backed by a
// mat.VecDense of width l.ErrorDim. Both quaternion fields of Full
// (Orientation, IMUCorrection) collapse to 3-vector axis-angle deltas.
type Error struct {
	Layout Layout
	Vec    *mat.VecDense
}

// NewError returns a zero error state for the given layout.
func NewError(l Layout) *Error {
	return &Error{Layout: l, Vec: mat.NewVecDense(l.ErrorDim, nil)}
}

func errDims(g Group) int { return ErrorDims(g) }

func (e *Error) slice(g Group) []float64 {
	off := e.Layout.ErrorOffset(g)
	n := errDims(g)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = e.Vec.AtVec(off + i)
	}
	return out
}

func (e *Error) setSlice(g Group, vals []float64) {
	off := e.Layout.ErrorOffset(g)
	for i, v := range vals {
		e.Vec.SetVec(off+i, v)
	}
}

// Lift computes the tangent-space delta from x0 to x1: epsilon such that
// x0 (+) epsilon ~= x1 (spec section 4.1). Position and other additive
// fields lift by plain subtraction; the two quaternion fields lift via the
// shortest-arc axis-angle log of the relative rotation.
func Lift(x0, x1 *Full) *Error {
	l := x0.Layout
	e := NewError(l)

	for _, g := range []Group{Position, LinearVelocity, AngularVelocity, LinearAcceleration, AccBias, GyroBias} {
		if !l.Enabled[g] {
			continue
		}
		a, b := x0.slice(g), x1.slice(g)
		d := make([]float64, len(a))
		for i := range a {
			d[i] = b[i] - a[i]
		}
		e.setSlice(g, d)
	}
	if l.Enabled[AccScale] {
		e.Vec.SetVec(l.ErrorOffset(AccScale), x1.Scale()-x0.Scale())
	}

	// Retract composes on the right (x0 * Exp(eps)), so the quaternion
	// fields lift the body-frame delta conj(x0) * x1.
	aa, _ := quatutil.NoFlip(quatutil.Identity, quat.Mul(quat.Conj(quatutil.Normalize(x0.Orientation())), x1.Orientation()))
	e.setSlice(Orientation, aa[:])

	if l.Enabled[IMUCorrection] {
		aa2, _ := quatutil.NoFlip(quatutil.Identity, quat.Mul(quat.Conj(quatutil.Normalize(x0.IMUCorrection())), x1.IMUCorrection()))
		e.setSlice(IMUCorrection, aa2[:])
	}

	return e
}

// Retract applies epsilon to x0, the inverse of Lift: x1 = x0 (+)
// epsilon. Additive fields add directly; quaternion fields compose with
// the quaternion exponential of the axis-angle delta.
func Retract(x0 *Full, eps *Error) *Full {
	l := x0.Layout
	x1 := x0.Clone()

	for _, g := range []Group{Position, LinearVelocity, AngularVelocity, LinearAcceleration, AccBias, GyroBias} {
		if !l.Enabled[g] {
			continue
		}
		a, d := x0.slice(g), eps.slice(g)
		out := make([]float64, len(a))
		for i := range a {
			out[i] = a[i] + d[i]
		}
		x1.setSlice(g, out)
	}
	if l.Enabled[AccScale] {
		x1.SetScale(x0.Scale() + eps.Vec.AtVec(l.ErrorOffset(AccScale)))
	}

	s := eps.slice(Orientation)
	dq := quatutil.Exp3([3]float64{s[0], s[1], s[2]})
	x1.SetOrientation(quatutil.Normalize(quat.Mul(x0.Orientation(), dq)))

	if l.Enabled[IMUCorrection] {
		s2 := eps.slice(IMUCorrection)
		dq2 := quatutil.Exp3([3]float64{s2[0], s2[1], s2[2]})
		x1.SetIMUCorrection(quatutil.Normalize(quat.Mul(x0.IMUCorrection(), dq2)))
	}

	return x1
}

// RetractJacobian returns d(x0 (+) epsilon)/d(epsilon) evaluated at
// epsilon = 0, a Dim x ErrorDim matrix, via central-difference numerical
// differentiation of Retract -- the same fd.Jacobian approach the EKF core
// uses throughout for Jacobians it does not hand-derive.
func RetractJacobian(x0 *Full) *mat.Dense {
	l := x0.Layout
	j := mat.NewDense(l.Dim, l.ErrorDim, nil)
	fn := func(xOut, eps []float64) {
		e := &Error{Layout: l, Vec: mat.NewVecDense(l.ErrorDim, eps)}
		x1 := Retract(x0, e)
		copy(xOut, x1.Vec.RawVector().Data)
	}
	fd.Jacobian(j, fn, make([]float64, l.ErrorDim), &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})
	return j
}

// LiftJacobian returns d(Lift(x0, x1))/d(x1) evaluated at x1 = x0, an
// ErrorDim x Dim matrix.
func LiftJacobian(x0 *Full) *mat.Dense {
	l := x0.Layout
	j := mat.NewDense(l.ErrorDim, l.Dim, nil)
	fn := func(eOut, x []float64) {
		x1 := x0.Clone()
		copy(x1.Vec.RawVector().Data, x)
		e := Lift(x0, x1)
		copy(eOut, e.Vec.RawVector().Data)
	}
	base := make([]float64, l.Dim)
	copy(base, x0.Vec.RawVector().Data)
	fd.Jacobian(j, fn, base, &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})
	return j
}

// Clone returns a deep copy of e.
func (e *Error) Clone() *Error {
	v := mat.NewVecDense(e.Layout.ErrorDim, nil)
	v.CopyVec(e.Vec)
	return &Error{Layout: e.Layout, Vec: v}
}
