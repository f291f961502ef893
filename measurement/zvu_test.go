package measurement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/state"
)

func TestZVUModelDimIncludesAngularByDefault(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	m := NewZVUModel(l)
	assert.Equal(9, m.Dim())
}

func TestZVUModelNoLightDropsAngularRows(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	m := NewZVUModel(l)
	m.Context = ZVUNoLight
	assert.Equal(6, m.Dim())
}

func TestZVUModelResidualMatchesNegativeVelocity(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	m := NewZVUModel(l)
	x := state.NewFull(l)
	x.SetLinearVelocity([3]float64{1, 2, 3})

	z := mat.NewVecDense(m.Dim(), nil)
	y := m.Residual(x, z)
	assert.InDelta(-1, y.AtVec(0), 1e-12)
	assert.InDelta(-2, y.AtVec(1), 1e-12)
	assert.InDelta(-3, y.AtVec(2), 1e-12)
}

func TestZVUModelJacobianSelectsVelocityBlock(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	m := NewZVUModel(l)
	x := state.NewFull(l)

	h := m.Jacobian(x, false)
	velOff := l.Offset(state.LinearVelocity)
	assert.Equal(1.0, h.At(0, velOff))
}

func TestZVUModelDropsAccelRowsWhenLayoutTruncatesAcceleration(t *testing.T) {
	assert := assert.New(t)

	l := state.ComputeLayout(state.Weights{AngularVelocity: 60, LinearVelocity: 1})
	assert.True(l.Enabled[state.LinearVelocity])
	assert.False(l.Enabled[state.LinearAcceleration])

	m := NewZVUModel(l)
	assert.Equal(6, m.Dim())

	x := state.NewFull(l)
	x.SetLinearVelocity([3]float64{1, 2, 3})
	z := mat.NewVecDense(m.Dim(), nil)
	y := m.Residual(x, z)
	assert.Equal(6, y.Len())
	assert.InDelta(-1, y.AtVec(0), 1e-12)

	assert.NotPanics(func() {
		h := m.Jacobian(x, false)
		r, c := h.Dims()
		assert.Equal(6, r)
		assert.Equal(l.Dim, c)

		velOff := l.Offset(state.LinearVelocity)
		avOff := l.Offset(state.AngularVelocity)
		assert.Equal(1.0, h.At(0, velOff))
		assert.Equal(1.0, h.At(3, avOff))
	})
}

func TestZVUModelBuildRSelectsByContext(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	m := NewZVUModel(l)

	m.Context = ZVUStationary
	rStat := m.BuildR()
	m.Context = ZVUMoving
	rMove := m.BuildR()
	assert.Less(rStat.At(0, 0), rMove.At(0, 0))
}
