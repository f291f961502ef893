package measurement

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/state"
)

// ZVUContext selects which of the three configured variances a
// zero-velocity update draws from (spec section 4.4.4).
type ZVUContext int

const (
	// ZVUMoving applies when the object is known to be in motion (light
	// data present, not detected stationary) -- the loosest variance.
	ZVUMoving ZVUContext = iota
	// ZVUStationary applies when a stationary detector has fired.
	ZVUStationary
	// ZVUNoLight applies when no recent light observation has been seen;
	// angular-velocity rows are dropped from H in this context.
	ZVUNoLight
)

// ZVUModel implements the zero-velocity update (spec section 4.4.4): h
// projects velocity (and, unless no-light, angular velocity) and
// acceleration to zero, Z is the zero vector.
type ZVUModel struct {
	Config
	Layout state.Layout

	VarMoving     float64
	VarStationary float64
	VarNoLight    float64

	Context ZVUContext
}

// NewZVUModel returns a ZVUModel with a standalone three-way variance
// split: loosest while moving, tightest while stationary. tracker.New
// replaces all three with its Config's ZVU variances.
func NewZVUModel(l state.Layout) *ZVUModel {
	return &ZVUModel{
		Config:        DefaultConfig(),
		Layout:        l,
		VarMoving:     1e-2,
		VarStationary: 1e-6,
		VarNoLight:    1e-3,
	}
}

// includeAngular reports whether the angular-velocity rows are present in
// this context's observation (spec: "when no-light and not stationary,
// angular-velocity rows are dropped from H").
func (m *ZVUModel) includeAngular() bool {
	return m.Context != ZVUNoLight
}

// includeAccel reports whether the acceleration rows are present: they
// require LinearAcceleration to actually be in the layout, which the
// default truncated state space drops.
func (m *ZVUModel) includeAccel() bool {
	return m.Layout.Enabled[state.LinearAcceleration]
}

// Dim is always 3 (linear velocity) plus 3 more when the layout carries
// linear acceleration, plus 3 more when it carries angular velocity and
// the context isn't no-light.
func (m *ZVUModel) Dim() int {
	n := 3
	if m.includeAccel() {
		n += 3
	}
	if m.includeAngular() && m.Layout.Enabled[state.AngularVelocity] {
		n += 3
	}
	return n
}

// Predict always returns the zero vector: ZVU's prior is that velocity and
// acceleration (and, contextually, angular velocity) are zero.
func (m *ZVUModel) Predict(x *state.Full) *mat.VecDense {
	return mat.NewVecDense(m.Dim(), nil)
}

// Residual is y = Z - h(x) = Z - predictedVelocityAndAccel, typically
// called with Z the zero vector.
func (m *ZVUModel) Residual(x *state.Full, z *mat.VecDense) *mat.VecDense {
	v := x.LinearVelocity()
	vals := []float64{v[0], v[1], v[2]}
	if m.includeAccel() {
		a := x.LinearAcceleration()
		vals = append(vals, a[0], a[1], a[2])
	}
	if m.includeAngular() && m.Layout.Enabled[state.AngularVelocity] {
		av := x.AngularVelocity()
		vals = append(vals, av[0], av[1], av[2])
	}
	y := mat.NewVecDense(len(vals), nil)
	for i, hv := range vals {
		y.SetVec(i, z.AtVec(i)-hv)
	}
	return y
}

// Jacobian is the identity block selecting the velocity (and, where the
// layout carries them, acceleration and angular-velocity) rows of x --
// the projection is linear so no numeric differentiation is needed,
// unlike the other three models.
func (m *ZVUModel) Jacobian(x *state.Full, errorState bool) *mat.Dense {
	dim := m.Layout.Dim
	if errorState {
		dim = m.Layout.ErrorDim
	}
	h := mat.NewDense(m.Dim(), dim, nil)

	offset := func(g state.Group) int {
		if errorState {
			return m.Layout.ErrorOffset(g)
		}
		return m.Layout.Offset(g)
	}

	velOff := offset(state.LinearVelocity)
	for i := 0; i < 3; i++ {
		h.Set(i, velOff+i, 1)
	}
	row := 3
	if m.includeAccel() {
		accOff := offset(state.LinearAcceleration)
		for i := 0; i < 3; i++ {
			h.Set(row+i, accOff+i, 1)
		}
		row += 3
	}
	if m.includeAngular() && m.Layout.Enabled[state.AngularVelocity] {
		avOff := offset(state.AngularVelocity)
		for i := 0; i < 3; i++ {
			h.Set(row+i, avOff+i, 1)
		}
	}
	return h
}

// BuildR returns an isotropic diagonal covariance sized to Dim, using the
// variance selected by Context.
func (m *ZVUModel) BuildR() *mat.SymDense {
	var v float64
	switch m.Context {
	case ZVUStationary:
		v = m.VarStationary
	case ZVUNoLight:
		v = m.VarNoLight
	default:
		v = m.VarMoving
	}
	n := m.Dim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, v)
	}
	return out
}
