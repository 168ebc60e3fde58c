// Package rnd provides covariance-shaped random sampling used by the
// synthetic trajectory generators.
package rnd

import (
	"fmt"
	"math"
	rnd "math/rand"

	"gonum.org/v1/gonum/mat"
)

// WithCovN draws n random samples from a zero-mean Normal distribution
// with covariance cov using the given source and returns them stored in
// the columns of the result. A nil source uses the global RNG.
//
// The covariance is factorized by SVD rather than Cholesky so almost
// singular covariances still produce samples.
// It fails with error if n is smaller than 1 or the factorization fails.
func WithCovN(cov mat.Symmetric, n int, src *rnd.Rand) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	u := new(mat.Dense)
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	u.Mul(u, mat.NewDiagDense(len(vals), vals))

	norm := rnd.NormFloat64
	if src != nil {
		norm = src.NormFloat64
	}

	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = norm()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(u, samples)

	return samples, nil
}

// WithCov draws a single covariance-shaped sample as a vector.
func WithCov(cov mat.Symmetric, src *rnd.Rand) (mat.Vector, error) {
	s, err := WithCovN(cov, 1, src)
	if err != nil {
		return nil, err
	}
	return s.ColView(0), nil
}
