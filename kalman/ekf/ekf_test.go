package ekf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/procnoise"
	"github.com/ovrtrack/posekf/state"
)

// identityPoseModel observes the position block directly: h(x) = position.
// It exists purely to exercise the EKF core's predict/update mechanics
// independent of any real measurement model package.
type identityPoseModel struct {
	layout state.Layout
}

func (m *identityPoseModel) Predict(x *state.Full) *mat.VecDense {
	p := x.Position()
	return mat.NewVecDense(3, []float64{p[0], p[1], p[2]})
}

func (m *identityPoseModel) Jacobian(x *state.Full, errorState bool) *mat.Dense {
	dim := m.layout.Dim
	if errorState {
		dim = m.layout.ErrorDim
	}
	h := mat.NewDense(3, dim, nil)
	off := m.layout.Offset(state.Position)
	if errorState {
		off = m.layout.ErrorOffset(state.Position)
	}
	for i := 0; i < 3; i++ {
		h.Set(i, off+i, 1)
	}
	return h
}

func (m *identityPoseModel) Dim() int { return 3 }

func newTestEKF(t *testing.T, errorState bool) *EKF {
	l := state.FullLayout()
	dim := l.Dim
	if errorState {
		dim = l.ErrorDim
	}
	diag := make([]float64, dim)
	for i := range diag {
		diag[i] = 1.0
	}
	f, err := New(l, errorState, diag)
	assert.NoError(t, err)
	f.ProcWeights = procnoise.Weights{Pos: 1e-6, Vel: 1e-6}
	return f
}

func TestNewInvalidDiagLength(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	_, err := New(l, false, make([]float64, 3))
	assert.Error(err)
}

func TestPredictToAdvancesTime(t *testing.T) {
	assert := assert.New(t)

	f := newTestEKF(t, false)
	err := f.PredictTo(1.0)
	assert.NoError(err)
	assert.Equal(1.0, f.Time())
}

func TestPredictToZeroDtNoOp(t *testing.T) {
	assert := assert.New(t)

	f := newTestEKF(t, false)
	f.SetTime(5.0)
	x0 := f.State().Clone()

	err := f.PredictTo(5.0)
	assert.NoError(err)
	assert.Equal(x0.Position(), f.State().Position())
}

func TestUpdateConvergesTowardMeasurement(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	f := newTestEKF(t, false)
	m := &identityPoseModel{layout: l}

	z := mat.NewVecDense(3, []float64{1, 2, 3})
	r := mat.NewSymDense(3, []float64{1e-6, 0, 0, 0, 1e-6, 0, 0, 0, 1e-6})

	var lastNorm float64 = 1e9
	for i := 0; i < 5; i++ {
		err := f.Update(m, z, r)
		assert.NoError(err)
		p := f.State().Position()
		norm := (p[0]-1)*(p[0]-1) + (p[1]-2)*(p[1]-2) + (p[2]-3)*(p[2]-3)
		assert.LessOrEqual(norm, lastNorm+1e-9)
		lastNorm = norm
	}
	p := f.State().Position()
	assert.InDelta(1, p[0], 1e-2)
	assert.InDelta(2, p[1], 1e-2)
	assert.InDelta(3, p[2], 1e-2)
}

func TestLastEstimateNilBeforeFirstUpdate(t *testing.T) {
	assert := assert.New(t)

	f := newTestEKF(t, false)
	assert.Nil(f.LastEstimate())
}

func TestLastEstimateReflectsUpdate(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	f := newTestEKF(t, false)
	m := &identityPoseModel{layout: l}

	z := mat.NewVecDense(3, []float64{1, 2, 3})
	r := mat.NewSymDense(3, []float64{1e-6, 0, 0, 0, 1e-6, 0, 0, 0, 1e-6})
	assert.NoError(f.Update(m, z, r))

	est := f.LastEstimate()
	if assert.NotNil(est) {
		assert.Equal(l.Dim, est.State().Len())
		assert.Equal(3, est.Output().Len())
		n, _ := est.Covariance().Dims()
		assert.Equal(l.Dim, n)
	}
}

func TestUpdateErrorStateMode(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	f := newTestEKF(t, true)
	m := &identityPoseModel{layout: l}

	z := mat.NewVecDense(3, []float64{0.1, 0.2, 0.3})
	r := mat.NewSymDense(3, []float64{1e-4, 0, 0, 0, 1e-4, 0, 0, 0, 1e-4})

	err := f.Update(m, z, r)
	assert.NoError(err)
	p := f.State().Position()
	assert.Greater(p[0], 0.0)
}

func TestCovRoundTrip(t *testing.T) {
	assert := assert.New(t)

	f := newTestEKF(t, false)
	cov := f.Cov()
	assert.NotNil(cov)

	assert.Error(f.SetCov(nil))
	assert.Error(f.SetCov(mat.NewSymDense(3, nil)))
	assert.NoError(f.SetCov(cov))
}

func TestResetReseedsState(t *testing.T) {
	assert := assert.New(t)

	f := newTestEKF(t, false)
	f.State().SetPosition([3]float64{9, 9, 9})

	diag := make([]float64, f.covDim())
	for i := range diag {
		diag[i] = 10
	}
	err := f.Reset(diag)
	assert.NoError(err)
	assert.Equal([3]float64{}, f.State().Position())
	assert.Equal(10.0, f.Cov().At(0, 0))
}

func TestGainPopulatedAfterUpdate(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	f := newTestEKF(t, false)
	m := &identityPoseModel{layout: l}
	z := mat.NewVecDense(3, []float64{1, 1, 1})
	r := mat.NewSymDense(3, []float64{1e-4, 0, 0, 0, 1e-4, 0, 0, 0, 1e-4})

	err := f.Update(m, z, r)
	assert.NoError(err)
	gain := f.Gain()
	rows, cols := gain.Dims()
	assert.Equal(f.covDim(), rows)
	assert.Equal(3, cols)
}
