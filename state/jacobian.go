package state

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// PredictJacobian returns F = d(f(x,dt))/dx (nominal mode), a Dim x Dim
// matrix, via central-difference numerical differentiation -- following
// the teacher EKF's own fd.Jacobian-based approach to propagation
// Jacobians, generalized from a linear model to this nonlinear one. When
// dt == 0, F is the identity (spec section 4.1).
func (f *Full) PredictJacobian(dt float64, w PredictWeights) *mat.Dense {
	l := f.Layout
	j := mat.NewDense(l.Dim, l.Dim, nil)
	if dt == 0 {
		for i := 0; i < l.Dim; i++ {
			j.Set(i, i, 1)
		}
		return j
	}

	fn := func(xOut, x []float64) {
		xi := f.Clone()
		copy(xi.Vec.RawVector().Data, x)
		xNext := xi.Predict(dt, w)
		copy(xOut, xNext.Vec.RawVector().Data)
	}
	base := make([]float64, l.Dim)
	copy(base, f.Vec.RawVector().Data)
	fd.Jacobian(j, fn, base, &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})
	return j
}

// PredictJacobianError returns F = d(Lift(x0, f(x0 (+) eps, dt)))/d(eps)
// evaluated at eps = 0: the error-state transition Jacobian, an ErrorDim x
// ErrorDim matrix. It composes Retract -> Predict -> Lift, each already
// expressed against the same base state x0, and differentiates the whole
// chain numerically.
func PredictJacobianError(x0 *Full, dt float64, w PredictWeights) *mat.Dense {
	l := x0.Layout
	j := mat.NewDense(l.ErrorDim, l.ErrorDim, nil)
	if dt == 0 {
		for i := 0; i < l.ErrorDim; i++ {
			j.Set(i, i, 1)
		}
		return j
	}

	x0Next := x0.Predict(dt, w)
	fn := func(eOut, eps []float64) {
		e := &Error{Layout: l, Vec: mat.NewVecDense(l.ErrorDim, eps)}
		x1 := Retract(x0, e)
		x1Next := x1.Predict(dt, w)
		lifted := Lift(x0Next, x1Next)
		copy(eOut, lifted.Vec.RawVector().Data)
	}
	fd.Jacobian(j, fn, make([]float64, l.ErrorDim), &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})
	return j
}
