// Package quatutil provides the small set of quaternion operations the
// pose filter needs on top of gonum's quat.Number: normalization, vector
// rotation, axis-angle <-> quaternion maps, and the shortest-arc ("no
// flip") residual used by the axis-angle pose measurement model.
package quatutil

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Identity is the identity rotation (w,x,y,z) = (1,0,0,0).
var Identity = quat.Number{Real: 1}

// Normalize returns q scaled to unit norm. It returns Identity if q is
// (numerically) the zero quaternion.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// RotateVector rotates v (treated as a pure quaternion) by q: q*v*conj(q).
func RotateVector(q quat.Number, v [3]float64) [3]float64 {
	qv := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return [3]float64{r.Imag, r.Jmag, r.Kmag}
}

// InvRotateVector rotates v by the inverse (conjugate, for unit q) of q.
func InvRotateVector(q quat.Number, v [3]float64) [3]float64 {
	return RotateVector(quat.Conj(Normalize(q)), v)
}

// Exp3 maps an axis-angle tangent vector w (rotation vector, rad) to the
// unit quaternion it represents via the quaternion exponential map:
// q = [cos(|w|/2), sin(|w|/2) * w/|w|].
func Exp3(w [3]float64) quat.Number {
	theta := math.Sqrt(w[0]*w[0] + w[1]*w[1] + w[2]*w[2])
	if theta < 1e-12 {
		// second-order Taylor expansion keeps this smooth near zero
		return Normalize(quat.Number{Real: 1, Imag: w[0] / 2, Jmag: w[1] / 2, Kmag: w[2] / 2})
	}
	half := theta / 2
	s := math.Sin(half) / theta
	return quat.Number{Real: math.Cos(half), Imag: w[0] * s, Jmag: w[1] * s, Kmag: w[2] * s}
}

// Log3 maps a unit quaternion to its axis-angle tangent vector, the
// inverse of Exp3. The returned rotation magnitude lies in [0, pi].
func Log3(q quat.Number) [3]float64 {
	q = Normalize(q)
	if q.Real < 0 {
		// shortest-arc: q and -q represent the same rotation, pick the
		// representative with non-negative scalar part so |axis-angle| <= pi
		q = quat.Scale(-1, q)
	}
	vnorm := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if vnorm < 1e-12 {
		return [3]float64{2 * q.Imag, 2 * q.Jmag, 2 * q.Kmag}
	}
	theta := 2 * math.Atan2(vnorm, q.Real)
	s := theta / vnorm
	return [3]float64{q.Imag * s, q.Jmag * s, q.Kmag * s}
}

// Delta returns the rotation that takes "from" to "to": to * conj(from).
func Delta(from, to quat.Number) quat.Number {
	return quat.Mul(to, quat.Conj(Normalize(from)))
}

// NoFlip computes the axis-angle error between a predicted and an observed
// orientation, choosing the antipodal representative of the delta
// quaternion whose rotation magnitude is smaller than pi -- the mapping
// that keeps the filter continuous across the +/-q ambiguity (spec
// section 4.4.1). It returns the axis-angle vector and whether the
// antipodal ("flip") branch was taken: the delta's unfolded rotation
// magnitude, 2*atan2(|v|, w), exceeds pi exactly when its scalar part is
// negative, and Log3 then reflects it to the 2*pi-complement. The exact
// antipode (delta = -1) counts as flipped and yields a zero vector.
func NoFlip(predicted, observed quat.Number) (aa [3]float64, flipped bool) {
	delta := Normalize(Delta(predicted, observed))
	flipped = delta.Real < 0
	aa = Log3(delta)
	return aa, flipped
}

// Mul multiplies two quaternions (thin re-export so callers of this
// package don't need a second import of gonum/num/quat for the common
// case).
func Mul(a, b quat.Number) quat.Number { return quat.Mul(a, b) }
