package ekf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/state"
)

// Model is the trait-like capability set a measurement model exposes to
// the filter: given the current state, predict the measurement and supply
// the Jacobian of that prediction with respect to either the nominal
// state or the tangent error state (spec section 9: "implement as a
// trait-like capability set {predict, jacobian}").
type Model interface {
	// Predict returns h(x), the expected measurement.
	Predict(x *state.Full) *mat.VecDense
	// Jacobian returns H = dh/dx (nominal mode) or dh/d(epsilon)
	// (error-state mode), evaluated at x.
	Jacobian(x *state.Full, errorState bool) *mat.Dense
	// Dim returns the measurement dimension m.
	Dim() int
}
