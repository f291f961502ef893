// Package lightbatch accumulates light-sweep samples between flushes
// (spec component C6). A batch is handed to measurement.LightModel as one
// observation once it closes, rather than integrating each sample as its
// own single-row update.
package lightbatch

import "github.com/ovrtrack/posekf/measurement"

// DefaultBatchSize mirrors the spec's light_batchsize default.
const DefaultBatchSize = 32

// Batcher holds a fixed-capacity ring of light samples and decides when
// the accumulated batch should flush (spec section 4.5: "Flush
// conditions: (a) a SYNC packet of either generation arrives, (b) buffer
// reaches light_batchsize, (c) buffer reaches maximum capacity").
type Batcher struct {
	// BatchSize triggers a flush once this many samples have accumulated.
	BatchSize int
	// Capacity is the hard upper bound on the buffer; reaching it forces a
	// flush even mid-sync.
	Capacity int

	buf []measurement.LightSample
}

// New returns a Batcher with the given batch-size and hard-capacity
// limits. capacity must be >= batchSize; if it's smaller, capacity is
// raised to match.
func New(batchSize, capacity int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if capacity < batchSize {
		capacity = batchSize
	}
	return &Batcher{
		BatchSize: batchSize,
		Capacity:  capacity,
		buf:       make([]measurement.LightSample, 0, capacity),
	}
}

// Len returns the number of samples currently buffered.
func (b *Batcher) Len() int { return len(b.buf) }

// Add appends one sample and reports whether it triggered a capacity
// flush on its own (the caller should call Flush immediately if true).
func (b *Batcher) Add(s measurement.LightSample) (capacityReached bool) {
	b.buf = append(b.buf, s)
	return len(b.buf) >= b.Capacity
}

// ShouldFlush reports whether the buffer has reached BatchSize, a SYNC
// packet has arrived (isSync), or Capacity has been reached.
func (b *Batcher) ShouldFlush(isSync bool) bool {
	if len(b.buf) == 0 {
		return false
	}
	return isSync || len(b.buf) >= b.BatchSize || len(b.buf) >= b.Capacity
}

// Flush returns the accumulated batch and resets the buffer. The returned
// slice is owned by the caller; Batcher allocates a fresh buffer for
// subsequent samples.
func (b *Batcher) Flush() []measurement.LightSample {
	out := b.buf
	b.buf = make([]measurement.LightSample, 0, b.Capacity)
	return out
}
