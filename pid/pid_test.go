package pid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateProportionalOnly(t *testing.T) {
	assert := assert.New(t)

	c := New(2, 0, 0)
	out := c.Update(1.0, 0.1)
	assert.InDelta(2.0, out, 1e-12)
}

func TestUpdateIntegralAccumulates(t *testing.T) {
	assert := assert.New(t)

	c := New(0, 1, 0)
	out1 := c.Update(1.0, 1.0)
	out2 := c.Update(1.0, 1.0)
	assert.InDelta(1.0, out1, 1e-12)
	assert.InDelta(2.0, out2, 1e-12)
}

func TestUpdateDerivativeReactsToChange(t *testing.T) {
	assert := assert.New(t)

	c := New(0, 0, 1)
	c.Update(1.0, 1.0)
	out := c.Update(3.0, 1.0)
	assert.InDelta(2.0, out, 1e-12)
}

func TestUpdateZeroDtSkipsDerivative(t *testing.T) {
	assert := assert.New(t)

	c := New(1, 1, 1)
	out := c.Update(2.0, 0)
	assert.InDelta(4.0, out, 1e-12)
}

func TestResetClearsState(t *testing.T) {
	assert := assert.New(t)

	c := New(0, 1, 0)
	c.Update(1.0, 1.0)
	c.Reset()
	out := c.Update(1.0, 1.0)
	assert.InDelta(1.0, out, 1e-12)
}
