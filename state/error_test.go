package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiftRetractRoundTrip(t *testing.T) {
	assert := assert.New(t)

	l := FullLayout()
	x0 := NewFull(l)
	x0.SetPosition([3]float64{1, 2, 3})
	x0.SetAngularVelocity([3]float64{0.1, 0, 0})

	eps := NewError(l)
	eps.setSlice(Position, []float64{0.01, -0.02, 0.03})
	eps.setSlice(Orientation, []float64{0.1, 0.05, -0.05})

	x1 := Retract(x0, eps)
	back := Lift(x0, x1)

	for i := 0; i < l.ErrorDim; i++ {
		assert.InDelta(eps.Vec.AtVec(i), back.Vec.AtVec(i), 1e-9)
	}
}

func TestLiftZeroDeltaIsZero(t *testing.T) {
	assert := assert.New(t)

	l := FullLayout()
	x0 := NewFull(l)
	x1 := x0.Clone()

	e := Lift(x0, x1)
	for i := 0; i < l.ErrorDim; i++ {
		assert.InDelta(0, e.Vec.AtVec(i), 1e-12)
	}
}

func TestRetractJacobianIdentityBlockOnPosition(t *testing.T) {
	assert := assert.New(t)

	l := FullLayout()
	x0 := NewFull(l)
	j := RetractJacobian(x0)

	rows, cols := j.Dims()
	assert.Equal(l.Dim, rows)
	assert.Equal(l.ErrorDim, cols)

	// position maps 1:1 onto the first three error components
	posOff := l.Offset(Position)
	errOff := l.ErrorOffset(Position)
	for i := 0; i < 3; i++ {
		assert.InDelta(1, j.At(posOff+i, errOff+i), 1e-6)
	}
}
