package measurement

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/quatutil"
	"github.com/ovrtrack/posekf/state"
)

const gravityG = 9.80665

// IMUModel implements the IMU observation (spec section 4.4.3): predicted
// specific force and angular velocity in the IMU frame, given the
// tracked object's estimated rotation, acceleration, and bias/scale
// corrections.
type IMUModel struct {
	Config
	Layout state.Layout

	AccVar          float64
	GyroVar         float64
	AccNormPenalty  float64

	// AdaptiveR, when non-nil, is the full 6x6 R that BuildR returns in
	// place of the static AccVar/GyroVar diagonal. It is set only by the
	// caller: nothing in this module estimates it online, and the tracker
	// leaves it nil.
	AdaptiveR *mat.SymDense

	rawAcc [3]float64
}

// NewIMUModel returns an IMUModel with the spec's default accel/gyro
// variance and no norm penalty.
func NewIMUModel(l state.Layout) *IMUModel {
	return &IMUModel{
		Config:  DefaultConfig(),
		Layout:  l,
		AccVar:  1e-3,
		GyroVar: 3.05e-5,
	}
}

// CorrectAccel transforms a raw accelerometer reading by the state's
// AccScale/AccBias before it is used as the observation (spec: "Accel
// measurements are transformed by (a/AccScale) - AccBias before being fed
// in").
func (m *IMUModel) CorrectAccel(x *state.Full, raw [3]float64) [3]float64 {
	scale := x.Scale()
	if scale == 0 {
		scale = 1
	}
	bias := x.AccBias()
	return [3]float64{
		raw[0]/scale - bias[0],
		raw[1]/scale - bias[1],
		raw[2]/scale - bias[2],
	}
}

// SetRawAccel records the accelerometer reading (pre-correction, used only
// to size the norm-penalty term) for the current Jacobian/BuildR call.
func (m *IMUModel) SetRawAccel(raw [3]float64) { m.rawAcc = raw }

// Dim is always 6: three accel rows, three gyro rows.
func (m *IMUModel) Dim() int { return 6 }

// Predict returns h(x) = [acc_predicted, gyro_predicted] (spec section
// 4.4.3).
func (m *IMUModel) Predict(x *state.Full) *mat.VecDense {
	acc := x.LinearAcceleration()
	worldAcc := [3]float64{acc[0] / gravityG, acc[1] / gravityG, acc[2]/gravityG + 1}
	accPred := quatutil.InvRotateVector(x.Orientation(), worldAcc)

	av := x.AngularVelocity()
	gyroBias := x.GyroBias()
	gyroPred := quatutil.InvRotateVector(x.Orientation(), av)
	gyroPred[0] += gyroBias[0]
	gyroPred[1] += gyroBias[1]
	gyroPred[2] += gyroBias[2]

	return mat.NewVecDense(6, []float64{
		accPred[0], accPred[1], accPred[2],
		gyroPred[0], gyroPred[1], gyroPred[2],
	})
}

// Residual is the plain elementwise difference y = Z - h(x); Z is the
// corrected [accel, gyro] 6-vector (see CorrectAccel).
func (m *IMUModel) Residual(x *state.Full, z *mat.VecDense) *mat.VecDense {
	h := m.Predict(x)
	y := &mat.VecDense{}
	y.SubVec(z, h)
	return y
}

// Jacobian differentiates Predict numerically via central differences.
func (m *IMUModel) Jacobian(x *state.Full, errorState bool) *mat.Dense {
	return numericJacobian(x, m.Layout, errorState, 6, m.Predict)
}

// BuildR returns the 6x6 observation covariance: AccVar/GyroVar on the
// diagonal, with AccNormPenalty*(1-||a||)^2 added to the accel entries
// when the raw accel reading deviates from 1g (spec section 4.4.3). When
// AdaptiveR is set it is returned unchanged, by-passing the static model.
func (m *IMUModel) BuildR() *mat.SymDense {
	if m.AdaptiveR != nil {
		return m.AdaptiveR
	}
	out := mat.NewSymDense(6, nil)
	normAcc := math.Sqrt(m.rawAcc[0]*m.rawAcc[0] + m.rawAcc[1]*m.rawAcc[1] + m.rawAcc[2]*m.rawAcc[2])
	penalty := 0.0
	if m.AccNormPenalty > 0 && normAcc > 0 {
		d := 1 - normAcc
		penalty = m.AccNormPenalty * d * d
	}
	for i := 0; i < 3; i++ {
		out.SetSym(i, i, m.AccVar+penalty)
	}
	for i := 3; i < 6; i++ {
		out.SetSym(i, i, m.GyroVar)
	}
	return out
}
