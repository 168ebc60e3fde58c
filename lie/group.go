// Package lie implements the manifold state parameterizations used by
// the estimator derivation: a closed set of group variants, each
// providing symbolic composition, exponential/logarithm maps and the
// right Jacobian of its retraction.
//
// Rotations use the unit quaternion parameterization with the Cayley
// (Gibbs vector) retraction. The retraction is smooth and
// singularity-free around the identity, so Log(Exp(v)) == v holds
// exactly for |v| < pi and every derivation substitution at a zero
// tangent vector is an exact symbolic operation. Away from a
// neighborhood of the reference point the maps are chart-local, which is
// inherent to the linearization, not a defect.
package lie

import (
	"fmt"

	"github.com/goecca/ecca/symbolic"
)

// Kind enumerates the supported manifold variants. The set is closed:
// adding a manifold type means adding a variant here, not subclassing.
type Kind int

const (
	// Euclidean is the vector-space group R^n under addition
	Euclidean Kind = iota
	// Rotation is the 3D rotation group parameterized by unit quaternions
	Rotation
	// Pose is the rotation-and-translation group SO(3) x R^3
	Pose
)

// String implements the Stringer interface.
func (k Kind) String() string {
	switch k {
	case Euclidean:
		return "euclidean"
	case Rotation:
		return "rotation"
	case Pose:
		return "pose"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Group is the capability interface every manifold variant implements.
// All operations are symbolic: arguments and results are expression
// vectors over the caller's symbols.
type Group interface {
	// Kind returns the variant tag
	Kind() Kind
	// Dim returns the parameter dimension of a group element
	Dim() int
	// TangentDim returns the tangent-space (error-state) dimension
	TangentDim() int
	// Identity returns the identity element
	Identity() symbolic.Vector
	// Compose returns the group composition a o b
	Compose(a, b symbolic.Vector) (symbolic.Vector, error)
	// Inverse returns the group inverse of g
	Inverse(g symbolic.Vector) (symbolic.Vector, error)
	// Exp maps a tangent vector to a group element near identity
	Exp(v symbolic.Vector) (symbolic.Vector, error)
	// Log maps a group element near identity to a tangent vector
	Log(g symbolic.Vector) (symbolic.Vector, error)
	// RightJacobian returns the Jacobian mapping tangent-space
	// covariance onto the manifold at the retraction point v
	RightJacobian(v symbolic.Vector) (symbolic.Matrix, error)
}

// For returns the group of the given kind. The dimension argument is
// only meaningful for Euclidean groups; Rotation and Pose have fixed
// dimensions and ignore it. It returns UnsupportedManifoldError for an
// unregistered kind and an error for an invalid Euclidean dimension.
func For(k Kind, dim int) (Group, error) {
	switch k {
	case Euclidean:
		if dim <= 0 {
			return nil, fmt.Errorf("lie: invalid euclidean dimension %d", dim)
		}
		return &euclidean{n: dim}, nil
	case Rotation:
		return &rotation{}, nil
	case Pose:
		return &pose{}, nil
	}
	return nil, &UnsupportedManifoldError{Kind: k}
}

// UnsupportedManifoldError is returned when a manifold kind is not
// registered with the package.
type UnsupportedManifoldError struct {
	// Kind is the unregistered manifold tag
	Kind Kind
}

// Error implements the error interface.
func (e *UnsupportedManifoldError) Error() string {
	return fmt.Sprintf("lie: unsupported manifold type %s", e.Kind)
}

func checkDim(op string, want int, v symbolic.Vector) error {
	if len(v) != want {
		return &symbolic.IncompatibleDimensionError{Op: op, Want: want, Got: len(v)}
	}
	return nil
}

// rightJacobianOf derives the right Jacobian of g symbolically as
//
//	Jr(v) = d/de Log(Exp(v)^-1 o Exp(v+e)) at e = 0
//
// so every variant is consistent with its own Compose/Exp/Log by
// construction. The scratch perturbation symbol is substituted away
// before the result is returned.
func rightJacobianOf(g Group, v symbolic.Vector) (symbolic.Matrix, error) {
	n := g.TangentDim()
	if err := checkDim("right jacobian", n, v); err != nil {
		return nil, err
	}

	eps := symbolic.Scratch("lie_jr_eps", n)
	ve, err := v.Add(eps.Vector())
	if err != nil {
		return nil, err
	}

	ev, err := g.Exp(v)
	if err != nil {
		return nil, err
	}
	eve, err := g.Exp(ve)
	if err != nil {
		return nil, err
	}
	inv, err := g.Inverse(ev)
	if err != nil {
		return nil, err
	}
	rel, err := g.Compose(inv, eve)
	if err != nil {
		return nil, err
	}
	l, err := g.Log(rel)
	if err != nil {
		return nil, err
	}

	jac, err := symbolic.Jacobian(l, eps).Substitute(eps, symbolic.ZeroVector(n))
	if err != nil {
		return nil, err
	}

	return jac.Simplify(), nil
}
