// Package ekf implements the pose-tracking Extended Kalman Filter core
// (spec component C4): it owns the state, its covariance and the filter
// clock, predicts forward to a target time, and applies measurement
// updates -- in either nominal-state or error-state mode -- possibly
// refined by iterated Gauss-Newton passes (see iekf.go).
package ekf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/estimate"
	"github.com/ovrtrack/posekf/matrix"
	"github.com/ovrtrack/posekf/procnoise"
	"github.com/ovrtrack/posekf/state"
)

// NumericalInstabilityError is returned when a predict or update step
// would leave the filter's covariance or state non-finite; the caller is
// expected to skip the update and bump a failure counter rather than
// propagate a panic (spec section 7, kind 4).
type NumericalInstabilityError struct {
	Op string
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("ekf: numerical instability during %s", e.Op)
}

// EKF is the Extended Kalman Filter core. It owns x, P and t.
type EKF struct {
	Layout     state.Layout
	ErrorState bool

	x *state.Full
	p *mat.SymDense
	t float64

	ProcWeights    procnoise.Weights
	PredictWeights state.PredictWeights
	NoiseModel     procnoise.NoiseModel

	// f is the last propagation Jacobian, retained for diagnostics.
	f *mat.Dense
	// inn is the last innovation vector.
	inn *mat.VecDense
	// k is the last Kalman gain.
	k *mat.Dense
	// lastPred is the predicted measurement from the most recent Update.
	lastPred *mat.VecDense
	// failures counts skipped updates due to NumericalInstability.
	failures int
}

// covDim returns the covariance dimension for the filter's current mode.
func (e *EKF) covDim() int {
	if e.ErrorState {
		return e.Layout.ErrorDim
	}
	return e.Layout.Dim
}

// New returns an EKF seeded at the identity pose with the given initial
// covariance diagonal (caller-provided, typically large on the pose block
// per spec section 3's lifecycle: "large diagonal P with extra +10 on
// pose block").
func New(l state.Layout, errorState bool, initDiag []float64) (*EKF, error) {
	dim := l.Dim
	if errorState {
		dim = l.ErrorDim
	}
	if len(initDiag) != dim {
		return nil, fmt.Errorf("ekf: init diag length %d does not match filter dimension %d", len(initDiag), dim)
	}

	p := mat.NewSymDense(dim, nil)
	for i, v := range initDiag {
		p.SetSym(i, i, v)
	}

	return &EKF{
		Layout:     l,
		ErrorState: errorState,
		x:          state.NewFull(l),
		p:          p,
		t:          0,
		inn:        &mat.VecDense{},
		k:          &mat.Dense{},
	}, nil
}

// State returns the filter's current nominal state. Callers must not
// mutate the returned value's backing vector.
func (e *EKF) State() *state.Full { return e.x }

// SetState replaces the filter's nominal state wholesale (used by
// tracker.Reset and test fixtures).
func (e *EKF) SetState(x *state.Full) { e.x = x }

// Time returns the filter clock.
func (e *EKF) Time() float64 { return e.t }

// SetTime sets the filter clock without propagating state (used at init).
func (e *EKF) SetTime(t float64) { e.t = t }

// Cov returns a copy of the filter's covariance.
func (e *EKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(e.p.SymmetricDim(), nil)
	cov.CopySym(e.p)
	return cov
}

// SetCov sets the filter's covariance to cov.
func (e *EKF) SetCov(cov mat.Symmetric) error {
	if cov == nil || cov.SymmetricDim() != e.covDim() {
		return fmt.Errorf("ekf: invalid covariance dimensions")
	}
	e.p.CopySym(cov)
	return nil
}

// Gain returns the Kalman gain from the most recent Update call.
func (e *EKF) Gain() mat.Matrix {
	g := &mat.Dense{}
	g.CloneFrom(e.k)
	return g
}

// Failures returns the running count of updates skipped due to
// NumericalInstability.
func (e *EKF) Failures() int { return e.failures }

// PredictTo propagates x and P forward to t_target (spec section 4.3).
// dt == 0 is a no-op beyond normalisation. It returns
// NumericalInstabilityError (and leaves the filter unchanged) if the
// resulting P is not finite.
func (e *EKF) PredictTo(tTarget float64) error {
	dt := tTarget - e.t
	if dt < 0 {
		dt = 0
	}

	xNext := e.x.Predict(dt, e.PredictWeights)
	q := procnoise.Build(dt, e.ProcWeights, e.Layout, e.ErrorState, e.NoiseModel, e.x)

	var f *mat.Dense
	if e.ErrorState {
		f = state.PredictJacobianError(e.x, dt, e.PredictWeights)
	} else {
		f = e.x.PredictJacobian(dt, e.PredictWeights)
	}

	fp := &mat.Dense{}
	fp.Mul(f, e.p)
	cov := &mat.Dense{}
	cov.Mul(fp, f.T())
	cov.Add(cov, q)

	if !matrix.IsFinite(cov) {
		return &NumericalInstabilityError{Op: "predict"}
	}

	n := e.covDim()
	pNext := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			pNext.SetSym(i, j, cov.At(i, j))
		}
	}

	xNext.Normalize()
	if !xNext.IsFinite() {
		return &NumericalInstabilityError{Op: "predict"}
	}

	e.x = xNext
	e.p = pNext
	e.t = tTarget
	e.f = f
	return nil
}

// Update applies one measurement from model with observation z and noise
// covariance r (spec section 4.3, non-iterated branch). It computes
// residual y = z - h(x), innovation covariance S = H*P*H' + R, gain K =
// P*H'*S^-1, and updates x <- x (+) K*y (retraction in error-state mode,
// direct addition otherwise) and P <- (I - K*H)*P*(I - K*H)' + K*R*K'
// (Joseph form).
func (e *EKF) Update(m Model, z *mat.VecDense, r mat.Symmetric) error {
	h := m.Jacobian(e.x, e.ErrorState)
	if !matrix.IsFinite(h) {
		e.failures++
		return &NumericalInstabilityError{Op: "update: H not finite"}
	}

	pred := m.Predict(e.x)
	y := &mat.VecDense{}
	y.SubVec(z, pred)

	n := e.covDim()
	mdim := m.Dim()

	pxy := mat.NewDense(n, mdim, nil)
	pxy.Mul(e.p, h.T())

	pyy := mat.NewDense(mdim, mdim, nil)
	pyy.Mul(h, pxy)
	pyy.Add(pyy, r)

	pyySym, err := matrix.ToSymDense(pyy)
	var pyyInv *mat.Dense
	if err == nil {
		var inv mat.Dense
		if ierr := inv.Inverse(pyy); ierr == nil {
			pyyInv = &inv
		}
	}
	if pyyInv == nil {
		if pyySym == nil {
			e.failures++
			return &NumericalInstabilityError{Op: "update: S not symmetric"}
		}
		inv, serr := matrix.PseudoInverseSym(pyySym)
		if serr != nil {
			e.failures++
			return &NumericalInstabilityError{Op: "update: S singular"}
		}
		pyyInv = inv
	}

	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	corr := &mat.Dense{}
	corr.Mul(gain, y)
	delta := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		delta.SetVec(i, corr.At(i, 0))
	}

	var xNext *state.Full
	if e.ErrorState {
		eps := &state.Error{Layout: e.Layout, Vec: delta}
		xNext = state.Retract(e.x, eps)
	} else {
		xv := &mat.VecDense{}
		xv.AddVec(e.x.Vec, delta)
		xNext = &state.Full{Layout: e.Layout, Vec: xv}
	}
	xNext.Normalize()
	if !xNext.IsFinite() {
		e.failures++
		return &NumericalInstabilityError{Op: "update: x not finite"}
	}

	eye := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetDiag(i, 1.0)
	}
	kh := &mat.Dense{}
	kh.Mul(gain, h)
	a := &mat.Dense{}
	a.Sub(eye, kh)

	ap := &mat.Dense{}
	ap.Mul(a, e.p)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	kr := &mat.Dense{}
	kr.Mul(gain, r)
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	pNextDense := &mat.Dense{}
	pNextDense.Add(apa, krk)

	if !matrix.IsFinite(pNextDense) {
		e.failures++
		return &NumericalInstabilityError{Op: "update: P not finite"}
	}

	pNext := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			pNext.SetSym(i, j, pNextDense.At(i, j))
		}
	}

	e.x = xNext
	e.p = pNext
	e.inn = mat.NewVecDense(mdim, nil)
	e.inn.CopyVec(y)
	e.k = gain
	e.lastPred = pred
	return nil
}

// LastEstimate packages the filter's current state, the measurement
// predicted during the most recent Update, and the current covariance
// into a single snapshot -- the go-estimate-style Estimate value the
// teacher's filters return from every step. Returns nil before the first
// Update.
func (e *EKF) LastEstimate() *estimate.Base {
	if e.lastPred == nil {
		return nil
	}
	return estimate.NewBase(e.x.Vec, e.lastPred, e.Cov())
}

// Extrapolate returns a forward-propagated copy of x without mutating
// filter state (spec section 4.3, used for reports).
func (e *EKF) Extrapolate(tTarget float64) *state.Full {
	dt := tTarget - e.t
	if dt < 0 {
		dt = 0
	}
	out := e.x.Predict(dt, e.PredictWeights)
	out.Normalize()
	return out
}

// Reset zeroes P then re-seeds its diagonal to initDiag, and resets x to
// identity (spec section 4.6: "P reseeded, x zeroed").
func (e *EKF) Reset(initDiag []float64) error {
	n := e.covDim()
	if len(initDiag) != n {
		return fmt.Errorf("ekf: reset diag length %d does not match filter dimension %d", len(initDiag), n)
	}
	p := mat.NewSymDense(n, nil)
	for i, v := range initDiag {
		p.SetSym(i, i, v)
	}
	e.p = p
	e.x = state.NewFull(e.Layout)
	e.failures = 0
	return nil
}

// Innovation returns the innovation vector from the most recent Update.
func (e *EKF) Innovation() *mat.VecDense {
	v := &mat.VecDense{}
	v.CloneFromVec(e.inn)
	return v
}
