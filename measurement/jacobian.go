package measurement

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/state"
)

// numericJacobian differentiates predict w.r.t. x (or, if errorState, w.r.t.
// the tangent-space delta around x) via central differences, the same
// approach the EKF core and PoseModel's axis-angle branch use wherever a
// closed form isn't worth hand-maintaining.
func numericJacobian(x *state.Full, l state.Layout, errorState bool, rows int, predict func(*state.Full) *mat.VecDense) *mat.Dense {
	dim := l.Dim
	if errorState {
		dim = l.ErrorDim
	}
	h := mat.NewDense(rows, dim, nil)

	fn := func(yOut, xv []float64) {
		var xi *state.Full
		if errorState {
			eps := &state.Error{Layout: l, Vec: mat.NewVecDense(l.ErrorDim, xv)}
			xi = state.Retract(x, eps)
		} else {
			xi = &state.Full{Layout: l, Vec: mat.NewVecDense(l.Dim, xv)}
		}
		p := predict(xi)
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
