package state

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ovrtrack/posekf/quatutil"
)

// Full is the nominal (quaternion) state vector x, backed by a
// mat.VecDense of width l.Dim.
type Full struct {
	Layout Layout
	Vec    *mat.VecDense
}

// NewFull returns an identity-pose Full state for the given layout: zero
// position/velocity/acceleration/biases, identity orientation and IMU
// correction quaternions, AccScale = 1 where enabled.
func NewFull(l Layout) *Full {
	v := mat.NewVecDense(l.Dim, nil)
	f := &Full{Layout: l, Vec: v}
	f.SetOrientation(quatutil.Identity)
	if l.Enabled[IMUCorrection] {
		f.SetIMUCorrection(quatutil.Identity)
	}
	if l.Enabled[AccScale] {
		v.SetVec(l.Offset(AccScale), 1.0)
	}
	return f
}

func (f *Full) slice(g Group) []float64 {
	off := f.Layout.Offset(g)
	n := Dims(g)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = f.Vec.AtVec(off + i)
	}
	return out
}

func (f *Full) setSlice(g Group, vals []float64) {
	off := f.Layout.Offset(g)
	for i, v := range vals {
		f.Vec.SetVec(off+i, v)
	}
}

// Position returns the position field.
func (f *Full) Position() [3]float64 {
	s := f.slice(Position)
	return [3]float64{s[0], s[1], s[2]}
}

// SetPosition sets the position field.
func (f *Full) SetPosition(p [3]float64) { f.setSlice(Position, p[:]) }

// Orientation returns the world<-object orientation quaternion.
func (f *Full) Orientation() quat.Number {
	s := f.slice(Orientation)
	return quat.Number{Real: s[0], Imag: s[1], Jmag: s[2], Kmag: s[3]}
}

// SetOrientation sets the orientation quaternion.
func (f *Full) SetOrientation(q quat.Number) {
	f.setSlice(Orientation, []float64{q.Real, q.Imag, q.Jmag, q.Kmag})
}

// LinearVelocity returns the world-frame linear velocity, or the zero
// vector if the group is truncated out of this layout.
func (f *Full) LinearVelocity() [3]float64 {
	if !f.Layout.Enabled[LinearVelocity] {
		return [3]float64{}
	}
	s := f.slice(LinearVelocity)
	return [3]float64{s[0], s[1], s[2]}
}

// SetLinearVelocity sets the linear velocity field, if enabled.
func (f *Full) SetLinearVelocity(v [3]float64) {
	if f.Layout.Enabled[LinearVelocity] {
		f.setSlice(LinearVelocity, v[:])
	}
}

// AngularVelocity returns the object-frame angular velocity, or zero if
// truncated.
func (f *Full) AngularVelocity() [3]float64 {
	if !f.Layout.Enabled[AngularVelocity] {
		return [3]float64{}
	}
	s := f.slice(AngularVelocity)
	return [3]float64{s[0], s[1], s[2]}
}

// SetAngularVelocity sets the angular velocity field, if enabled.
func (f *Full) SetAngularVelocity(v [3]float64) {
	if f.Layout.Enabled[AngularVelocity] {
		f.setSlice(AngularVelocity, v[:])
	}
}

// LinearAcceleration returns the world-frame linear acceleration, or zero
// if truncated.
func (f *Full) LinearAcceleration() [3]float64 {
	if !f.Layout.Enabled[LinearAcceleration] {
		return [3]float64{}
	}
	s := f.slice(LinearAcceleration)
	return [3]float64{s[0], s[1], s[2]}
}

// SetLinearAcceleration sets the linear acceleration field, if enabled.
func (f *Full) SetLinearAcceleration(a [3]float64) {
	if f.Layout.Enabled[LinearAcceleration] {
		f.setSlice(LinearAcceleration, a[:])
	}
}

// IMUCorrection returns the IMU-to-tracker-frame correction quaternion, or
// identity if truncated.
func (f *Full) IMUCorrection() quat.Number {
	if !f.Layout.Enabled[IMUCorrection] {
		return quatutil.Identity
	}
	s := f.slice(IMUCorrection)
	return quat.Number{Real: s[0], Imag: s[1], Jmag: s[2], Kmag: s[3]}
}

// SetIMUCorrection sets the IMU correction quaternion, if enabled.
func (f *Full) SetIMUCorrection(q quat.Number) {
	if f.Layout.Enabled[IMUCorrection] {
		f.setSlice(IMUCorrection, []float64{q.Real, q.Imag, q.Jmag, q.Kmag})
	}
}

// Scale returns the accelerometer scale factor, or 1 if truncated.
func (f *Full) Scale() float64 {
	if !f.Layout.Enabled[AccScale] {
		return 1
	}
	return f.Vec.AtVec(f.Layout.Offset(AccScale))
}

// SetScale sets the accelerometer scale factor, if enabled.
func (f *Full) SetScale(s float64) {
	if f.Layout.Enabled[AccScale] {
		f.Vec.SetVec(f.Layout.Offset(AccScale), s)
	}
}

// AccBias returns the accelerometer bias, or zero if truncated.
func (f *Full) AccBias() [3]float64 {
	if !f.Layout.Enabled[AccBias] {
		return [3]float64{}
	}
	s := f.slice(AccBias)
	return [3]float64{s[0], s[1], s[2]}
}

// SetAccBias sets the accelerometer bias, if enabled.
func (f *Full) SetAccBias(b [3]float64) {
	if f.Layout.Enabled[AccBias] {
		f.setSlice(AccBias, b[:])
	}
}

// GyroBias returns the gyroscope bias, or zero if truncated.
func (f *Full) GyroBias() [3]float64 {
	if !f.Layout.Enabled[GyroBias] {
		return [3]float64{}
	}
	s := f.slice(GyroBias)
	return [3]float64{s[0], s[1], s[2]}
}

// SetGyroBias sets the gyroscope bias, if enabled.
func (f *Full) SetGyroBias(b [3]float64) {
	if f.Layout.Enabled[GyroBias] {
		f.setSlice(GyroBias, b[:])
	}
}

// Clone returns a deep copy of f.
func (f *Full) Clone() *Full {
	v := mat.NewVecDense(f.Layout.Dim, nil)
	v.CopyVec(f.Vec)
	return &Full{Layout: f.Layout, Vec: v}
}

// PredictWeights holds the transition tuning that zeroes out acceleration
// or velocity coupling terms when their respective process weight is
// configured to zero (spec section 4.1: "physics pinned by Q alone").
type PredictWeights struct {
	UseAcc bool
	UseVel bool
}

// Predict advances f by dt according to the nonlinear transition:
// position += velocity*dt + 0.5*acc*dt^2, velocity += acc*dt, orientation
// rotated by the quaternion exponential of angular-velocity*dt; biases,
// scale and the IMU correction quaternion are left fixed (their drift is
// carried entirely by process noise). It returns a new Full and does not
// mutate f.
func (f *Full) Predict(dt float64, w PredictWeights) *Full {
	out := f.Clone()

	pos := f.Position()
	vel := f.LinearVelocity()
	acc := f.LinearAcceleration()

	useAcc, useVel := 1.0, 1.0
	if !w.UseAcc {
		useAcc = 0
	}
	if !w.UseVel {
		useVel = 0
	}

	var newPos, newVel [3]float64
	for i := 0; i < 3; i++ {
		newVel[i] = vel[i] + useAcc*acc[i]*dt
		newPos[i] = pos[i] + useVel*vel[i]*dt + 0.5*useAcc*acc[i]*dt*dt
	}
	out.SetPosition(newPos)
	out.SetLinearVelocity(newVel)

	omega := f.AngularVelocity()
	dq := quatutil.Exp3([3]float64{omega[0] * dt, omega[1] * dt, omega[2] * dt})
	out.SetOrientation(quatutil.Normalize(quat.Mul(f.Orientation(), dq)))

	return out
}

// Normalize restores the state's invariants in place: both quaternions are
// re-normalized to unit length, AccScale is clamped to [0.95, 1.05], and
// each bias component is clamped to [-0.1, 0.1] (spec section 3,
// invariants I1 and I3).
func (f *Full) Normalize() {
	f.SetOrientation(quatutil.Normalize(f.Orientation()))
	if f.Layout.Enabled[IMUCorrection] {
		f.SetIMUCorrection(quatutil.Normalize(f.IMUCorrection()))
	}
	if f.Layout.Enabled[AccScale] {
		f.SetScale(clamp(f.Scale(), 0.95, 1.05))
	}
	if f.Layout.Enabled[AccBias] {
		b := f.AccBias()
		for i := range b {
			b[i] = clamp(b[i], -0.1, 0.1)
		}
		f.SetAccBias(b)
	}
	if f.Layout.Enabled[GyroBias] {
		b := f.GyroBias()
		for i := range b {
			b[i] = clamp(b[i], -0.1, 0.1)
		}
		f.SetGyroBias(b)
	}
}

// IsFinite reports whether every component of f is finite (invariant I4).
func (f *Full) IsFinite() bool {
	for i := 0; i < f.Vec.Len(); i++ {
		v := f.Vec.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
