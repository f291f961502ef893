package variance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerMeanAndVariance(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(1)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		tr.Add([]float64{v})
	}
	mean := tr.Mean()
	variance := tr.Variance()
	assert.InDelta(5.0, mean[0], 1e-9)
	assert.InDelta(4.0, variance[0], 1e-9)
}

func TestTrackerResetClears(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(2)
	tr.Add([]float64{1, 1})
	tr.Add([]float64{2, 2})
	tr.Reset()
	assert.Equal(0, tr.Count())
	assert.Equal([]float64{0, 0}, tr.Mean())
}

func TestTrackerVarianceZeroBeforeTwoSamples(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(1)
	tr.Add([]float64{3})
	assert.Equal([]float64{0}, tr.Variance())
}

func TestStationaryTrackerResetsOnMotion(t *testing.T) {
	assert := assert.New(t)

	stationary := true
	tr := NewStationaryTracker(1, func(t float64) bool { return stationary })

	tr.Integrate(0, []float64{1})
	tr.Integrate(1, []float64{1})
	assert.Equal(2, tr.Count())
	assert.True(tr.WasStationary())

	stationary = false
	tr.Integrate(2, []float64{1})
	assert.Equal(0, tr.Count())
	assert.False(tr.WasStationary())
}

func TestRollingEMAConverges(t *testing.T) {
	assert := assert.New(t)

	e := NewRollingEMA(0.5)
	v := e.Add(10)
	assert.Equal(10.0, v)
	for i := 0; i < 20; i++ {
		v = e.Add(0)
	}
	assert.InDelta(0, v, 1e-4)
}

func TestRollingEMAReset(t *testing.T) {
	assert := assert.New(t)

	e := NewRollingEMA(0.5)
	e.Add(5)
	e.Reset()
	assert.Equal(0.0, e.Value())
}
