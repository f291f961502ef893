package tracker

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ovrtrack/posekf/estimate"
	"github.com/ovrtrack/posekf/rand"
	"github.com/ovrtrack/posekf/state"
)

// LastEstimate exposes the state/predicted-output/covariance snapshot
// from the most recent measurement update, nil before the first one.
func (t *Tracker) LastEstimate() *estimate.Base {
	return t.ekf.LastEstimate()
}

// SampleCovariance draws n position samples from the filter's current
// covariance, centred on the current position estimate, and returns them
// as an n x 3 matrix with one sample per row -- the
// report-sampled-cloud diagnostic the original exposes for visualising
// filter uncertainty.
func (t *Tracker) SampleCovariance(n int) (*mat.Dense, error) {
	cov := t.ekf.Cov()
	posDim := 3
	posOff := t.layout.Offset(state.Position)
	if t.Config.UseErrorSpace {
		posOff = t.layout.ErrorOffset(state.Position)
	}
	sub := mat.NewSymDense(posDim, nil)
	for i := 0; i < posDim; i++ {
		for j := i; j < posDim; j++ {
			sub.SetSym(i, j, cov.At(posOff+i, posOff+j))
		}
	}

	samples, err := rand.WithCovN(sub, n)
	if err != nil {
		return nil, err
	}

	pos := t.ekf.State().Position()
	// WithCovN stores one sample per column
	_, cols := samples.Dims()
	out := mat.NewDense(cols, posDim, nil)
	for r := 0; r < cols; r++ {
		for c := 0; c < posDim; c++ {
			out.Set(r, c, samples.At(c, r)+pos[c])
		}
	}
	return out, nil
}
