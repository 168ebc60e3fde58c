// Package ecca derives error-state Kalman estimators symbolically and
// compiles them into fast numeric functions.
//
// The root package holds the runtime contracts shared by the compiled
// estimators and the validation harness. The pipeline itself lives in the
// subpackages: symbolic (expression algebra), lie (manifold state
// parameterizations), model (process/measurement builders), derive
// (filter derivation), compile (numeric lowering and caching), kalman/ekf
// (the runtime filter) and sim (the validation harness).
package ecca

import "gonum.org/v1/gonum/mat"

// Filter is a dynamical system filter.
type Filter interface {
	// Predict estimates the next internal state of the system
	Predict(mat.Vector, mat.Vector) (Estimate, error)
	// Update updates the system state based on external measurement
	Update(mat.Vector, mat.Vector, mat.Vector) (Estimate, error)
}

// InitCond is initial state condition of the filter.
// The covariance is expressed in the error state, so for manifold-valued
// states its dimension is the tangent-space dimension, which may be
// smaller than the state parameterization.
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial error-state covariance
	Cov() mat.Symmetric
}

// Estimate is dynamical system filter estimate.
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate error-state covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise.
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset()
}
