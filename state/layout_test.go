package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeLayoutFull(t *testing.T) {
	assert := assert.New(t)

	w := Weights{
		LinearVelocity:     1,
		AngularVelocity:    1,
		LinearAcceleration: 1,
		AccScale:           1,
		IMUCorrection:      1,
		AccBias:            1,
		GyroBias:           1,
	}
	l := ComputeLayout(w)
	assert.Equal(FullDim, l.Dim)
	assert.Equal(FullErrorDim, l.ErrorDim)
	for g := Group(0); g < numGroups; g++ {
		assert.True(l.Enabled[g])
	}
}

func TestComputeLayoutAllTruncated(t *testing.T) {
	assert := assert.New(t)

	l := ComputeLayout(Weights{})
	assert.True(l.Enabled[Position])
	assert.True(l.Enabled[Orientation])
	assert.False(l.Enabled[LinearVelocity])
	assert.False(l.Enabled[GyroBias])
	assert.Equal(Dims(Position)+Dims(Orientation), l.Dim)
	assert.Equal(ErrorDims(Position)+ErrorDims(Orientation), l.ErrorDim)
}

func TestComputeLayoutPartialCascade(t *testing.T) {
	assert := assert.New(t)

	// AccBias nonzero means everything from LinearVelocity through
	// AccBias stays enabled, but IMUCorrection... wait AccBias is after
	// IMUCorrection in cascade order, so IMUCorrection must also be kept.
	l := ComputeLayout(Weights{AccBias: 1})

	assert.True(l.Enabled[LinearVelocity])
	assert.True(l.Enabled[AngularVelocity])
	assert.True(l.Enabled[LinearAcceleration])
	assert.True(l.Enabled[AccScale])
	assert.True(l.Enabled[IMUCorrection])
	assert.True(l.Enabled[AccBias])
	assert.False(l.Enabled[GyroBias])
}

func TestComputeLayoutJerkKeepsLinearAcceleration(t *testing.T) {
	assert := assert.New(t)

	// Jerk alone, with LinearAcceleration's own weight at zero, still keeps
	// LinearAcceleration (and everything before it in cascade order) in
	// the layout -- the default tracker config's "Jerk: 1874161, Acc: 0"
	// shape.
	l := ComputeLayout(Weights{Jerk: 1874161})
	assert.True(l.Enabled[LinearVelocity])
	assert.True(l.Enabled[AngularVelocity])
	assert.True(l.Enabled[LinearAcceleration])
	assert.False(l.Enabled[AccScale])
}

func TestComputeLayoutInitVarOverride(t *testing.T) {
	assert := assert.New(t)

	l := ComputeLayout(Weights{GyroBiasInitVar: 1e-4})
	assert.True(l.Enabled[GyroBias])
	assert.Equal(FullDim, l.Dim)
}

func TestOffsetsContiguous(t *testing.T) {
	assert := assert.New(t)

	l := FullLayout()
	assert.Equal(0, l.Offset(Position))
	assert.Equal(3, l.Offset(Orientation))
	assert.Equal(7, l.Offset(LinearVelocity))
	assert.Equal(24, l.Offset(GyroBias))
	assert.Equal(0, l.ErrorOffset(Position))
	assert.Equal(3, l.ErrorOffset(Orientation))
	assert.Equal(22, l.ErrorOffset(GyroBias))
}
