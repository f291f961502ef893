// Package state defines the pose filter's nominal and error-state vectors,
// their fixed field layout, the tail-truncation cascade that shrinks the
// state when whole dynamics groups are disabled, the nonlinear transition
// f(x, dt), and the manifold maps (Lift/Retract) between nominal and error
// representations.
package state

// Group identifies one of the named field groups of the nominal state, in
// the fixed order they appear in x.
type Group int

const (
	Position Group = iota
	Orientation
	LinearVelocity
	AngularVelocity
	LinearAcceleration
	IMUCorrection
	AccScale
	AccBias
	GyroBias
	numGroups
)

// groupDims gives each group's width in the nominal (quaternion) state and
// in the error (axis-angle) state.
var groupDims = [numGroups]struct{ nominal, errorDim int }{
	Position:           {3, 3},
	Orientation:        {4, 3},
	LinearVelocity:     {3, 3},
	AngularVelocity:    {3, 3},
	LinearAcceleration: {3, 3},
	IMUCorrection:      {4, 3},
	AccScale:           {1, 1},
	AccBias:            {3, 3},
	GyroBias:           {3, 3},
}

// FullDim is the width of x when every group is enabled.
const FullDim = 27

// FullErrorDim is the width of epsilon when every group is enabled.
const FullErrorDim = 25

// Weights carries the process-weight configuration that decides, via
// ComputeLayout, which tail groups of the state are enabled. A weight of
// exactly zero (and no matching non-zero initial-variance override, or for
// LinearAcceleration no non-zero Jerk) drops the corresponding group,
// following the cascade order GyroBias -> AccBias -> IMUCorrection ->
// AccScale -> LinearAcceleration -> AngularVelocity -> LinearVelocity;
// Position and Orientation are never dropped.
type Weights struct {
	GyroBias           float64
	AccBias            float64
	IMUCorrection      float64
	AccScale           float64
	LinearAcceleration float64
	AngularVelocity    float64
	LinearVelocity     float64

	// Jerk keeps LinearAcceleration enabled even when LinearAcceleration's
	// own weight is zero, mirroring the original's "process_weight_acc ||
	// process_weight_jerk" gate: a jerk-driven process model still needs
	// the acceleration state it integrates into.
	Jerk float64

	// InitVar overrides: a nonzero initial-variance for a group keeps it
	// enabled even if its process weight is zero (mirrors the original's
	// "or an initial variance override" gate).
	GyroBiasInitVar      float64
	AccBiasInitVar       float64
	IMUCorrectionInitVar float64
	AccScaleInitVar      float64
}

// Layout describes the enabled groups and their offsets in both the
// nominal and error state vectors. The cascade drops groups in cascade
// order, which differs from vector order: AccScale can stay enabled while
// IMUCorrection, which precedes it in the vectors, is dropped. A layout
// can therefore have a hole, and consumers locate groups through
// Offset/ErrorOffset rather than assuming a prefix of the full 27/25-wide
// vectors.
type Layout struct {
	// Enabled[g] is true if group g is present in the (possibly
	// truncated) state.
	Enabled [numGroups]bool
	// Dim is the nominal state width (sum of enabled groups' nominal
	// widths).
	Dim int
	// ErrorDim is the error state width (sum of enabled groups' error
	// widths).
	ErrorDim int
}

// Offset returns the nominal-state column offset of group g. It panics if
// g is not enabled in l.
func (l Layout) Offset(g Group) int {
	if !l.Enabled[g] {
		panic("state: group not enabled in layout")
	}
	off := 0
	for i := Group(0); i < g; i++ {
		if l.Enabled[i] {
			off += groupDims[i].nominal
		}
	}
	return off
}

// ErrorOffset returns the error-state column offset of group g. It panics
// if g is not enabled in l.
func (l Layout) ErrorOffset(g Group) int {
	if !l.Enabled[g] {
		panic("state: group not enabled in layout")
	}
	off := 0
	for i := Group(0); i < g; i++ {
		if l.Enabled[i] {
			off += groupDims[i].errorDim
		}
	}
	return off
}

// Dims returns the nominal width of group g.
func Dims(g Group) int { return groupDims[g].nominal }

// ErrorDims returns the error-state width of group g.
func ErrorDims(g Group) int { return groupDims[g].errorDim }

// FullLayout returns the layout with every group enabled (dim 27 / 25).
func FullLayout() Layout {
	l := Layout{}
	for g := Group(0); g < numGroups; g++ {
		l.Enabled[g] = true
	}
	l.Dim = FullDim
	l.ErrorDim = FullErrorDim
	return l
}

// ComputeLayout runs the tail-truncation cascade over w and returns the
// resulting Layout. Position, Orientation and LinearVelocity's upstream
// dependents (LinearAcceleration etc.) are dropped tail-first, in the
// fixed order GyroBias -> AccBias -> IMUCorrection -> AccScale ->
// LinearAcceleration -> AngularVelocity -> LinearVelocity, stopping at the
// first group (scanned from the tail) whose weight or init-var override is
// nonzero -- everything before that point in cascade order stays enabled,
// since truncation only ever removes a contiguous suffix.
func ComputeLayout(w Weights) Layout {
	l := Layout{}
	l.Enabled[Position] = true
	l.Enabled[Orientation] = true

	cascade := []struct {
		g       Group
		weight  float64
		initVar float64
	}{
		{LinearVelocity, w.LinearVelocity, 0},
		{AngularVelocity, w.AngularVelocity, 0},
		{LinearAcceleration, w.LinearAcceleration, w.Jerk},
		{AccScale, w.AccScale, w.AccScaleInitVar},
		{IMUCorrection, w.IMUCorrection, w.IMUCorrectionInitVar},
		{AccBias, w.AccBias, w.AccBiasInitVar},
		{GyroBias, w.GyroBias, w.GyroBiasInitVar},
	}

	// Scan from the tail (GyroBias first) looking for the first enabled
	// group; everything from there back to LinearVelocity is enabled too,
	// since the cascade is a contiguous prefix of the reversed list.
	firstEnabled := -1
	for i := len(cascade) - 1; i >= 0; i-- {
		if cascade[i].weight != 0 || cascade[i].initVar != 0 {
			firstEnabled = i
			break
		}
	}
	for i := 0; i <= firstEnabled; i++ {
		l.Enabled[cascade[i].g] = true
	}

	for g := Group(0); g < numGroups; g++ {
		if l.Enabled[g] {
			l.Dim += groupDims[g].nominal
			l.ErrorDim += groupDims[g].errorDim
		}
	}
	return l
}
