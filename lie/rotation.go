package lie

import "github.com/goecca/ecca/symbolic"

// rotation is SO(3) parameterized by unit quaternions [w, x, y, z] with
// the Cayley retraction as the exp/log pair.
type rotation struct{}

func (r *rotation) Kind() Kind      { return Rotation }
func (r *rotation) Dim() int        { return 4 }
func (r *rotation) TangentDim() int { return 3 }

func (r *rotation) Identity() symbolic.Vector {
	return symbolic.ConstVector([]float64{1, 0, 0, 0})
}

func (r *rotation) Compose(a, b symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("rotation compose", 4, a); err != nil {
		return nil, err
	}
	if err := checkDim("rotation compose", 4, b); err != nil {
		return nil, err
	}
	return quatMul(a, b), nil
}

func (r *rotation) Inverse(g symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("rotation inverse", 4, g); err != nil {
		return nil, err
	}
	return quatConj(g), nil
}

// Exp is the Cayley map: q = [1, v/2] / sqrt(1 + |v/2|^2). It is smooth
// everywhere, agrees with the true exponential to first order at the
// identity and is exactly inverted by Log for |v| < pi.
func (r *rotation) Exp(v symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("rotation exp", 3, v); err != nil {
		return nil, err
	}

	half := v.Scale(symbolic.Const(0.5))
	n2, err := half.Dot(half)
	if err != nil {
		return nil, err
	}
	s := symbolic.Pow(symbolic.Add(symbolic.Const(1), n2), -0.5)

	return symbolic.Vector{
		s,
		symbolic.Mul(s, half[0]),
		symbolic.Mul(s, half[1]),
		symbolic.Mul(s, half[2]),
	}, nil
}

// Log is the inverse Cayley map: v = 2 * vec(q) / w, valid on the w > 0
// hemisphere, a neighborhood of the identity.
func (r *rotation) Log(g symbolic.Vector) (symbolic.Vector, error) {
	if err := checkDim("rotation log", 4, g); err != nil {
		return nil, err
	}

	two := symbolic.Const(2)
	return symbolic.Vector{
		symbolic.Div(symbolic.Mul(two, g[1]), g[0]),
		symbolic.Div(symbolic.Mul(two, g[2]), g[0]),
		symbolic.Div(symbolic.Mul(two, g[3]), g[0]),
	}, nil
}

func (r *rotation) RightJacobian(v symbolic.Vector) (symbolic.Matrix, error) {
	return rightJacobianOf(r, v)
}

// quatMul returns the Hamilton product a (x) b.
func quatMul(a, b symbolic.Vector) symbolic.Vector {
	return symbolic.Vector{
		symbolic.Sub(symbolic.Mul(a[0], b[0]),
			symbolic.Add(symbolic.Mul(a[1], b[1]), symbolic.Mul(a[2], b[2]), symbolic.Mul(a[3], b[3]))),
		symbolic.Add(symbolic.Mul(a[0], b[1]), symbolic.Mul(a[1], b[0]),
			symbolic.Sub(symbolic.Mul(a[2], b[3]), symbolic.Mul(a[3], b[2]))),
		symbolic.Add(symbolic.Mul(a[0], b[2]), symbolic.Mul(a[2], b[0]),
			symbolic.Sub(symbolic.Mul(a[3], b[1]), symbolic.Mul(a[1], b[3]))),
		symbolic.Add(symbolic.Mul(a[0], b[3]), symbolic.Mul(a[3], b[0]),
			symbolic.Sub(symbolic.Mul(a[1], b[2]), symbolic.Mul(a[2], b[1]))),
	}
}

// quatConj returns the quaternion conjugate, which is the inverse for
// unit quaternions.
func quatConj(q symbolic.Vector) symbolic.Vector {
	neg := symbolic.Const(-1)
	return symbolic.Vector{q[0], symbolic.Mul(neg, q[1]), symbolic.Mul(neg, q[2]), symbolic.Mul(neg, q[3])}
}

// RotationMatrix returns the direction cosine matrix of the unit
// quaternion q = [w, x, y, z], rotating vectors from the body frame into
// the reference frame. It is exported for measurement models that
// observe reference-frame vectors in body coordinates.
func RotationMatrix(q symbolic.Vector) (symbolic.Matrix, error) {
	if err := checkDim("rotation matrix", 4, q); err != nil {
		return nil, err
	}

	w, x, y, z := q[0], q[1], q[2], q[3]
	two := symbolic.Const(2)

	sq := func(e *symbolic.Expr) *symbolic.Expr { return symbolic.Pow(e, 2) }
	m := symbolic.Matrix{
		{
			symbolic.Add(sq(w), sq(x), symbolic.Neg(sq(y)), symbolic.Neg(sq(z))),
			symbolic.Mul(two, symbolic.Sub(symbolic.Mul(x, y), symbolic.Mul(w, z))),
			symbolic.Mul(two, symbolic.Add(symbolic.Mul(x, z), symbolic.Mul(w, y))),
		},
		{
			symbolic.Mul(two, symbolic.Add(symbolic.Mul(x, y), symbolic.Mul(w, z))),
			symbolic.Add(sq(w), sq(y), symbolic.Neg(sq(x)), symbolic.Neg(sq(z))),
			symbolic.Mul(two, symbolic.Sub(symbolic.Mul(y, z), symbolic.Mul(w, x))),
		},
		{
			symbolic.Mul(two, symbolic.Sub(symbolic.Mul(x, z), symbolic.Mul(w, y))),
			symbolic.Mul(two, symbolic.Add(symbolic.Mul(y, z), symbolic.Mul(w, x))),
			symbolic.Add(sq(w), sq(z), symbolic.Neg(sq(x)), symbolic.Neg(sq(y))),
		},
	}

	return m, nil
}
