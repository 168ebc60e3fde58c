// Package estimate provides the estimate values returned by filters.
package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Base is a base estimate: a state value with its error-state
// covariance and, after a measurement update, the innovation that
// produced it. For manifold-valued states the covariance dimension is
// the tangent-space dimension and may be smaller than the state.
type Base struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimated error-state covariance
	cov *mat.SymDense
	// inn is the innovation of the producing update, nil after predict
	inn *mat.VecDense
}

// NewBase returns a base estimate of val with zero covariance.
func NewBase(val mat.Vector) (*Base, error) {
	v := &mat.VecDense{}
	if val != nil {
		v.CloneFromVec(val)
	}

	return &Base{val: v, cov: mat.NewSymDense(v.Len(), nil)}, nil
}

// NewBaseWithCov returns a base estimate given state value and
// error-state covariance. The covariance dimension may differ from the
// state dimension, but both must be set.
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || cov == nil {
		return nil, fmt.Errorf("invalid estimate: val %v, cov %v", val, cov)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base{val: v, cov: c}, nil
}

// NewBaseWithInnovation returns a base estimate carrying the innovation
// of the measurement update that produced it.
func NewBaseWithInnovation(val mat.Vector, cov mat.Symmetric, inn mat.Vector) (*Base, error) {
	b, err := NewBaseWithCov(val, cov)
	if err != nil {
		return nil, err
	}
	if inn != nil {
		b.inn = &mat.VecDense{}
		b.inn.CloneFromVec(inn)
	}

	return b, nil
}

// Val returns estimated value.
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate.
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Innovation returns the innovation of the producing update, or nil for
// predicted estimates.
func (b *Base) Innovation() mat.Vector {
	if b.inn == nil {
		return nil
	}
	v := &mat.VecDense{}
	v.CloneFromVec(b.inn)

	return v
}
