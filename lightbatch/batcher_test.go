package lightbatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ovrtrack/posekf/measurement"
)

func sample(id int) measurement.LightSample {
	return measurement.LightSample{LighthouseID: 0, SensorID: id}
}

func TestBatcherFlushesOnBatchSize(t *testing.T) {
	assert := assert.New(t)

	b := New(4, 16)
	for i := 0; i < 3; i++ {
		b.Add(sample(i))
		assert.False(b.ShouldFlush(false))
	}
	b.Add(sample(3))
	assert.True(b.ShouldFlush(false))

	batch := b.Flush()
	assert.Len(batch, 4)
	assert.Equal(0, b.Len())
}

func TestBatcherFlushesOnSync(t *testing.T) {
	assert := assert.New(t)

	b := New(32, 64)
	b.Add(sample(0))
	assert.False(b.ShouldFlush(false))
	assert.True(b.ShouldFlush(true))
}

func TestBatcherCapacityFlush(t *testing.T) {
	assert := assert.New(t)

	b := New(1, 2)
	assert.False(b.Add(sample(0)))
	assert.True(b.Add(sample(1)))
}

func TestBatcherEmptyNeverFlushes(t *testing.T) {
	assert := assert.New(t)

	b := New(4, 16)
	assert.False(b.ShouldFlush(true))
}

func TestNewClampsCapacityToBatchSize(t *testing.T) {
	assert := assert.New(t)

	b := New(10, 4)
	assert.Equal(10, b.Capacity)
}
