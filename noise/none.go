package noise

import "gonum.org/v1/gonum/mat"

// None is the absence of noise: its mean and covariance have zero size.
// It differs from Zero, whose samples have the declared dimension.
type None struct{}

// NewNone creates new None noise and returns it.
func NewNone() (*None, error) {
	return &None{}, nil
}

// Sample returns a zero size vector.
func (n *None) Sample() mat.Vector {
	return &mat.VecDense{}
}

// Cov returns a zero size covariance matrix.
func (n *None) Cov() mat.Symmetric {
	return &mat.SymDense{}
}

// Mean returns an empty mean.
func (n *None) Mean() []float64 {
	return nil
}

// Reset does nothing: it's here to implement the Noise interface.
func (n *None) Reset() {}

// String implements the Stringer interface.
func (n *None) String() string {
	return "None{}"
}
