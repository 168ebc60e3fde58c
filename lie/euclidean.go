package lie

import "github.com/goecca/ecca/symbolic"

// euclidean is the vector-space group R^n under addition. Its exp and
// log maps are the identity and its right Jacobian is the identity
// matrix, which makes the error-state derivation reduce to the familiar
// additive EKF equations for Euclidean blocks.
type euclidean struct {
	n int
}

func (e *euclidean) Kind() Kind      { return Euclidean }
func (e *euclidean) Dim() int        { return e.n }
func (e *euclidean) TangentDim() int { return e.n }

func (e *euclidean) Identity() symbolic.Vector {
	return symbolic.ZeroVector(e.n)
}

func (e *euclidean) Compose(a, b symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("euclidean compose", e.n, a); err != nil {
		return nil, err
	}
	if err := checkDim("euclidean compose", e.n, b); err != nil {
		return nil, err
	}
	return a.Add(b)
}

func (e *euclidean) Inverse(g symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("euclidean inverse", e.n, g); err != nil {
		return nil, err
	}
	return g.Scale(symbolic.Const(-1)), nil
}

func (e *euclidean) Exp(v symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("euclidean exp", e.n, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *euclidean) Log(g symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("euclidean log", e.n, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (e *euclidean) RightJacobian(v symbolic.Vector) (symbolic.Matrix, error) {
	if err := checkDim("euclidean right jacobian", e.n, v); err != nil {
		return nil, err
	}
	return symbolic.Identity(e.n), nil
}
