// Package matutil provides small matrix helpers shared by the runtime
// filter and the simulation harness.
package matutil

import "gonum.org/v1/gonum/mat"

// Symmetrize stores (m + m')/2 into dst. It panics if the dimensions of
// dst and m do not agree.
func Symmetrize(dst *mat.SymDense, m mat.Matrix) {
	n := dst.SymmetricDim()
	r, c := m.Dims()
	if r != n || c != n {
		panic(mat.ErrShape)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
}

// IsPSD reports whether s + tol*I admits a Cholesky factorization, i.e.
// whether s is positive semi-definite up to the given tolerance.
func IsPSD(s mat.Symmetric, tol float64) bool {
	n := s.SymmetricDim()
	if n == 0 {
		return true
	}

	shifted := mat.NewSymDense(n, nil)
	shifted.CopySym(s)
	for i := 0; i < n; i++ {
		shifted.SetSym(i, i, shifted.At(i, i)+tol)
	}

	var chol mat.Cholesky
	return chol.Factorize(shifted)
}
