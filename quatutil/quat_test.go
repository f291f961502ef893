package quatutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
)

func TestExpLogRoundTrip(t *testing.T) {
	assert := assert.New(t)

	cases := [][3]float64{
		{0, 0, 0},
		{0.1, -0.2, 0.05},
		{1.2, 0, 0},
		{0.3, 0.3, 0.3},
	}
	for _, w := range cases {
		q := Exp3(w)
		assert.InDelta(1, quat.Abs(q), 1e-9)
		back := Log3(q)
		assert.InDelta(w[0], back[0], 1e-9)
		assert.InDelta(w[1], back[1], 1e-9)
		assert.InDelta(w[2], back[2], 1e-9)
	}
}

func TestNormalizeZero(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(Identity, Normalize(quat.Number{}))
}

func TestNoFlipAntipodal(t *testing.T) {
	assert := assert.New(t)

	predicted := Identity
	// observed is the antipode of identity: same rotation, opposite sign
	observed := quat.Scale(-1, Identity)

	aa, flipped := NoFlip(predicted, observed)
	assert.True(flipped)
	assert.InDelta(0, aa[0], 1e-9)
	assert.InDelta(0, aa[1], 1e-9)
	assert.InDelta(0, aa[2], 1e-9)
}

func TestNoFlipLargeRotationReflects(t *testing.T) {
	assert := assert.New(t)

	predicted := Identity
	// a rotation of ~350 degrees about X should reflect to a small negative-axis rotation
	angle := 350.0 * math.Pi / 180.0
	observed := Exp3([3]float64{angle, 0, 0})

	aa, flipped := NoFlip(predicted, observed)
	assert.True(flipped)
	mag := math.Sqrt(aa[0]*aa[0] + aa[1]*aa[1] + aa[2]*aa[2])
	assert.Less(mag, math.Pi)
}

func TestRotateVectorIdentity(t *testing.T) {
	assert := assert.New(t)
	v := [3]float64{1, 2, 3}
	got := RotateVector(Identity, v)
	assert.InDeltaSlice([]float64{v[0], v[1], v[2]}, []float64{got[0], got[1], got[2]}, 1e-12)
}
