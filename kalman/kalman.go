// Package kalman defines the common interface of Kalman type filters.
package kalman

import (
	"gonum.org/v1/gonum/mat"

	"github.com/goecca/ecca"
)

// Kalman is a Kalman filter.
type Kalman interface {
	// Filter is dynamical system filter
	ecca.Filter
	// Cov returns Kalman filter error-state covariance
	Cov() mat.Symmetric
	// Gain returns Kalman filter gain
	Gain() mat.Matrix
}
