package ekf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/state"
)

func TestIEKFUpdateConverges(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	f := newTestEKF(t, false)
	ik := NewIEKF(f)
	m := &identityPoseModel{layout: l}

	z := mat.NewVecDense(3, []float64{1, 2, 3})
	r := mat.NewSymDense(3, []float64{1e-6, 0, 0, 0, 1e-6, 0, 0, 0, 1e-6})

	stats, err := ik.UpdateIterated(m, z, r, 10, 1e-12)
	assert.NoError(err)
	assert.Greater(stats.Iterations, 0)
	assert.LessOrEqual(stats.Iterations, 10)
}

func TestIEKFUpdateIteratedDefaultsIterationCount(t *testing.T) {
	assert := assert.New(t)

	l := state.FullLayout()
	f := newTestEKF(t, false)
	ik := NewIEKF(f)
	m := &identityPoseModel{layout: l}

	z := mat.NewVecDense(3, []float64{1, 1, 1})
	r := mat.NewSymDense(3, []float64{1e-4, 0, 0, 0, 1e-4, 0, 0, 0, 1e-4})

	stats, err := ik.UpdateIterated(m, z, r, 0, 1e-12)
	assert.NoError(err)
	assert.Equal(1, stats.Iterations)
}
