package matrix

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Format returns matrix formatter for printing matrices
func Format(m mat.Matrix) fmt.Formatter {
	return mat.Formatted(m, mat.Prefix(""), mat.Squeeze())
}

// RowSums returns a slice containing m row sums.
// It panics if m is nil.
func RowSums(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	sum := make([]float64, rows)

	for i := 0; i < rows; i++ {
		sum[i] = floats.Sum(m.RawRowView(i))
	}

	return sum
}

// ColSums returns a slice containing m column sums.
// It panics if m is nil.
func ColSums(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	sum := make([]float64, cols)

	for i := 0; i < cols; i++ {
		sum[i] = mat.Sum(m.ColView(i))
	}

	return sum
}

// RowsMean returns a slice containing m row mean values.
// It panics if m is nil
func RowsMean(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	mean := ColSums(m)

	floats.Scale(1/float64(rows), mean)

	return mean
}

// ColsMean returns a slice containing m column mean values.
// It panics if m is nil
func ColsMean(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	mean := RowSums(m)

	floats.Scale(1/float64(cols), mean)

	return mean
}

// Cov calculates a covariance matrix of data stored across dim dimension.
// It returns error if the covariance could not be calculated.
func Cov(m *mat.Dense, dim string) (*mat.SymDense, error) {
	// 1. We will calculate zero mean matrix x of the data
	// 2. 1/(n-1)(x * x^T) will give us covariance of the data
	rows, cols := m.Dims()

	// calculate mean data vector across dimension dim
	var mean []float64
	var count float64
	if strings.EqualFold(dim, "rows") {
		mean = RowsMean(m)
		count = float64(rows)
	} else {
		mean = ColsMean(m)
		count = float64(cols)
	}

	// x is zero-mean matrix of data stored in dimension dim
	x := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if strings.EqualFold(dim, "rows") {
				x.Set(r, c, m.At(r, c)-mean[c])
			} else {
				x.Set(r, c, m.At(r, c)-mean[r])
			}
		}
	}

	cov := new(mat.Dense)
	cov.Mul(x, x.T())
	cov.Scale(1/(count-1.0), cov)

	return ToSymDense(cov)
}

// ToSymDense converts m to SymDense (symmetric Dense matrix) if possible.
// It returns error if the provided Dense matrix is not symmetric.
func ToSymDense(m *mat.Dense) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, errors.New("Matrix must be square")
	}

	mT := m.T()
	vals := make([]float64, r*c)
	idx := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i != j && !floats.EqualWithinAbsOrRel(mT.At(i, j), m.At(i, j), 1e-6, 1e-2) {
				return nil, fmt.Errorf("Matrix not symmetric (%d, %d): %.40f != %.40f\n%v",
					i, j, mT.At(i, j), m.At(i, j), Format(m))
			}
			vals[idx] = m.At(i, j)
			idx++
		}
	}

	return mat.NewSymDense(r, vals), nil
}

// IsFinite reports whether every entry of m is finite (not NaN or +/-Inf).
// The EKF core uses this to detect NumericalInstability after a predict or
// update step (spec section 4.3).
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// SetDiag sets the diagonal of a square Dense matrix to the given values,
// leaving off-diagonal entries untouched. It panics if len(diag) does not
// match m's dimension.
func SetDiag(m *mat.Dense, diag []float64) {
	r, c := m.Dims()
	if r != c || r != len(diag) {
		panic(fmt.Sprintf("SetDiag: dimension mismatch %dx%d vs %d values", r, c, len(diag)))
	}
	for i, v := range diag {
		m.Set(i, i, v)
	}
}

// CopyInto copies src into the (rows x cols) region-of-interest of dst
// whose upper-left corner is at (rowOff, colOff). It is the "copy-into-ROI" primitive
// used to assemble block process-noise and Jacobian matrices (spec C1).
func CopyInto(dst *mat.Dense, src mat.Matrix, rowOff, colOff int) {
	r, c := src.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(rowOff+i, colOff+j, src.At(i, j))
		}
	}
}

// SymmetricSqrt returns a matrix L such that L*L^T approximates sym, via
// its Cholesky factorization. It is used as the fallback when the
// innovation covariance S needs a pseudo-inverse (spec section 4.3: "if S
// is singular to working precision, pseudo-inverse via symmetric sqrt is
// used"). It returns an error if sym is not positive definite to working
// precision; a singular positive semi-definite matrix is rejected too.
func SymmetricSqrt(sym mat.Symmetric) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.New("matrix: not positive definite, cannot take symmetric sqrt")
	}
	var l mat.TriDense
	chol.LTo(&l)
	out := new(mat.Dense)
	out.CloneFrom(&l)
	return out, nil
}

// PseudoInverseSym inverts a symmetric matrix through its Cholesky factor
// L as L^-T * L^-1. The result is the ordinary inverse: a singular matrix
// makes SymmetricSqrt fail and the error is returned, and no
// Moore-Penrose pseudo-inverse is computed.
func PseudoInverseSym(sym mat.Symmetric) (*mat.Dense, error) {
	l, err := SymmetricSqrt(sym)
	if err != nil {
		return nil, err
	}
	var linv mat.Dense
	if err := linv.Inverse(l); err != nil {
		return nil, fmt.Errorf("matrix: symmetric sqrt inverse failed: %w", err)
	}
	out := new(mat.Dense)
	out.Mul(linv.T(), &linv)
	return out, nil
}
