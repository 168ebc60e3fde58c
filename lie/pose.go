package lie

import "github.com/goecca/ecca/symbolic"

// pose is the rotation-and-translation group SO(3) x R^3 with elements
// [q (4), t (3)] and tangent vectors [phi (3), rho (3)]. Rotation and
// translation are retracted independently, the convention error-state
// filters linearize against.
type pose struct{}

func (p *pose) Kind() Kind      { return Pose }
func (p *pose) Dim() int        { return 7 }
func (p *pose) TangentDim() int { return 6 }

func (p *pose) Identity() symbolic.Vector {
	return symbolic.ConstVector([]float64{1, 0, 0, 0, 0, 0, 0})
}

func (p *pose) Compose(a, b symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("pose compose", 7, a); err != nil {
		return nil, err
	}
	if err := checkDim("pose compose", 7, b); err != nil {
		return nil, err
	}

	q := quatMul(a[:4], b[:4])

	ra, err := RotationMatrix(a[:4])
	if err != nil {
		return nil, err
	}
	tb, err := ra.MulVec(b[4:])
	if err != nil {
		return nil, err
	}
	t, err := a[4:].Add(tb)
	if err != nil {
		return nil, err
	}

	return symbolic.Concat(q, t), nil
}

func (p *pose) Inverse(g symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("pose inverse", 7, g); err != nil {
		return nil, err
	}

	qi := quatConj(g[:4])
	ri, err := RotationMatrix(qi)
	if err != nil {
		return nil, err
	}
	t, err := ri.MulVec(g[4:].Scale(symbolic.Const(-1)))
	if err != nil {
		return nil, err
	}

	return symbolic.Concat(qi, t), nil
}

func (p *pose) Exp(v symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("pose exp", 6, v); err != nil {
		return nil, err
	}

	rot := &rotation{}
	q, err := rot.Exp(v[:3])
	if err != nil {
		return nil, err
	}

	return symbolic.Concat(q, v[3:]), nil
}

func (p *pose) Log(g symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("pose log", 7, g); err != nil {
		return nil, err
	}

	rot := &rotation{}
	phi, err := rot.Log(g[:4])
	if err != nil {
		return nil, err
	}

	return symbolic.Concat(phi, g[4:]), nil
}

func (p *pose) RightJacobian(v symbolic.Vector) (symbolic.Matrix, error) {
	return rightJacobianOf(p, v)
}
