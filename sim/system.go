package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// System is a linear reference model used to generate synthetic
// trajectories for filter validation. It is described by the usual
// state-space matrices: system (A), input (B), output (C), feedthrough
// (D) and disturbance (E).
type System struct {
	// A is the system/state matrix
	A *mat.Dense
	// B is the control/input matrix
	B *mat.Dense
	// C is the observation/output matrix
	C *mat.Dense
	// D is the feedthrough matrix
	D *mat.Dense
	// E is the disturbance matrix
	E *mat.Dense
}

func newSystem(A, B, C, D, E *mat.Dense) System {
	sys := System{A: mat.DenseCopyOf(A)}
	if B != nil {
		sys.B = mat.DenseCopyOf(B)
	}
	if C != nil {
		sys.C = mat.DenseCopyOf(C)
	}
	if D != nil {
		sys.D = mat.DenseCopyOf(D)
	}
	if E != nil {
		sys.E = mat.DenseCopyOf(E)
	}
	return sys
}

// SystemDims returns the state length (nx), input length (nu), output
// length (ny) and disturbance length (nz) of the system.
func (s System) SystemDims() (nx, nu, ny, nz int) {
	nx, _ = s.A.Dims()
	if s.B != nil {
		_, nu = s.B.Dims()
	}
	if s.C != nil {
		ny, _ = s.C.Dims()
	}
	if s.E != nil {
		_, nz = s.E.Dims()
	}
	return nx, nu, ny, nz
}

// checkDims validates the state and input vector dimensions.
func (s System) checkDims(x, u mat.Vector) error {
	nx, nu, _, _ := s.SystemDims()
	if x == nil || x.Len() != nx {
		return fmt.Errorf("invalid state vector: %v", x)
	}
	if u != nil && u.Len() != nu {
		return fmt.Errorf("invalid input vector: %v", u)
	}
	return nil
}

// Observe returns the system output for state x and input u, with the
// measurement noise vector wn added when it has the output dimension.
func (s System) Observe(x, u, wn mat.Vector) (mat.Vector, error) {
	if err := s.checkDims(x, u); err != nil {
		return nil, err
	}
	if s.C == nil {
		return nil, fmt.Errorf("system has no output matrix")
	}

	_, _, ny, _ := s.SystemDims()

	out := new(mat.Dense)
	out.Mul(s.C, x)

	if u != nil && s.D != nil {
		outU := new(mat.Dense)
		outU.Mul(s.D, u)
		out.Add(out, outU)
	}

	if wn != nil && wn.Len() == ny {
		out.Add(out, wn)
	}

	return out.ColView(0), nil
}
