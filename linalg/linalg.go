// Package linalg provides the dense linear-algebra primitives shared
// by the estimators: maximum-likelihood covariance, symmetric solves
// and inverses, eigendecomposition and orthonormalization.
//
// All functions are pure; inputs are never modified.
package linalg

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingular is returned when a factorization fails because the
// matrix is numerically singular.
var ErrSingular = errors.New("linalg: matrix is singular to working precision")

// ErrEigenFailed is returned when an eigendecomposition does not
// converge.
var ErrEigenFailed = errors.New("linalg: eigendecomposition failed to converge")

// Trace returns the sum of the diagonal entries of a square matrix.
// Non-finite entries are skipped.
func Trace(m mat.Matrix) float64 {
	r, c := m.Dims()
	if r != c {
		panic("linalg: trace of a non-square matrix")
	}
	var t float64
	for i := 0; i < r; i++ {
		v := m.At(i, i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		t += v
	}
	return t
}

// Covariance returns the maximum-likelihood covariance estimate of the
// rows of x. The divisor is N, not N-1.
func Covariance(x mat.Matrix) *mat.SymDense {
	n, d := x.Dims()
	s := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(s, x, nil)
	s.ScaleSym(float64(n-1)/float64(n), s)
	return s
}

// SecondMoment returns the empirical second-moment matrix Xᵀ X / N.
func SecondMoment(x mat.Matrix) *mat.SymDense {
	n, d := x.Dims()
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	s := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			s.SetSym(i, j, xtx.At(i, j)/float64(n))
		}
	}
	return s
}

// SolveSym solves a x = b for a symmetric positive definite matrix a
// using a Cholesky factorization. Returns ErrSingular when the
// factorization fails.
func SolveSym(a *mat.SymDense, b mat.Matrix) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrSingular
	}
	n, _ := a.Dims()
	_, bc := b.Dims()
	x := mat.NewDense(n, bc, nil)
	if err := chol.SolveTo(x, b); err != nil {
		return nil, ErrSingular
	}
	return x, nil
}

// InvertSym inverts a symmetric positive definite matrix using a
// Cholesky factorization. Returns ErrSingular when the factorization
// fails.
func InvertSym(a *mat.SymDense) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrSingular
	}
	n, _ := a.Dims()
	inv := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, ErrSingular
	}
	return inv, nil
}

// LogDetSym returns the log determinant of a symmetric positive
// definite matrix via its Cholesky factorization.
func LogDetSym(a *mat.SymDense) (float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return 0, ErrSingular
	}
	return chol.LogDet(), nil
}

// Solve solves a x = b for a general square matrix a with an LU
// factorization. Returns ErrSingular when a has no inverse.
func Solve(a, b mat.Matrix) (*mat.Dense, error) {
	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return nil, ErrSingular
	}
	return &x, nil
}

// Orthonormalize returns an orthonormal basis for the column space of
// w, computed with a thin QR factorization. The input must have at
// least as many rows as columns.
func Orthonormalize(w mat.Matrix) *mat.Dense {
	r, c := w.Dims()
	if r < c {
		panic("linalg: orthonormalize needs rows >= columns")
	}
	var qr mat.QR
	qr.Factorize(w)
	var q mat.Dense
	qr.QTo(&q)
	return mat.DenseCopyOf(q.Slice(0, r, 0, c))
}

// EigSym returns the eigenvalues and eigenvectors of a symmetric
// matrix in descending eigenvalue order. The eigenvectors are the
// columns of the returned matrix, in the same order as the values.
func EigSym(s *mat.SymDense) ([]float64, *mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, nil, ErrEigenFailed
	}
	n, _ := s.Dims()
	asc := eig.Values(nil)
	var av mat.Dense
	eig.VectorsTo(&av)

	// gonum returns ascending order; reverse.
	vals := make([]float64, n)
	vecs := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		vals[j] = asc[n-1-j]
		for i := 0; i < n; i++ {
			vecs.Set(i, j, av.At(i, n-1-j))
		}
	}
	return vals, vecs, nil
}
