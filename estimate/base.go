// Package estimate holds the result type a filter hands out after an
// Update (kalman/ekf.EKF.LastEstimate): the posterior state, the measurement predicted from it, and the
// covariance the filter actually carries for that state.
package estimate

import "gonum.org/v1/gonum/mat"

// Base is a state/output/covariance estimate.
type Base struct {
	state mat.Vector
	output mat.Vector
	cov    mat.Symmetric
}

// NewBase returns a Base estimate pairing state and output with the
// covariance the caller's filter currently holds for state. Unlike a
// derived sample covariance, cov is carried through unmodified -- it is
// the filter's own P (or P in the error-state tangent frame).
func NewBase(state, output mat.Vector, cov mat.Symmetric) *Base {
	return &Base{
		state:  state,
		output: output,
		cov:    cov,
	}
}

// State returns the state estimate.
func (b *Base) State() mat.Vector {
	return b.state
}

// Output returns the output (predicted measurement) estimate.
func (b *Base) Output() mat.Vector {
	return b.output
}

// Covariance returns the covariance carried alongside the state estimate.
func (b *Base) Covariance() mat.Symmetric {
	return b.cov
}
