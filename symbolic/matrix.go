package symbolic

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// IncompatibleDimensionError is returned when expression vector or
// matrix operands have inconsistent shapes. It indicates a structurally
// invalid model and is fatal at configuration time.
type IncompatibleDimensionError struct {
	// Op names the failing operation
	Op string
	// Want is the expected dimension
	Want int
	// Got is the actual dimension
	Got int
}

// Error implements the error interface.
func (e *IncompatibleDimensionError) Error() string {
	return fmt.Sprintf("symbolic: incompatible dimensions in %s: want %d, got %d", e.Op, e.Want, e.Got)
}

// Vector is a column vector of scalar expressions.
type Vector []*Expr

// ConstVector returns a vector of constants.
func ConstVector(vals []float64) Vector {
	v := make(Vector, len(vals))
	for i, c := range vals {
		v[i] = Const(c)
	}
	return v
}

// ZeroVector returns an all-zero vector of length n.
func ZeroVector(n int) Vector {
	v := make(Vector, n)
	for i := range v {
		v[i] = zero
	}
	return v
}

// Concat stacks the given vectors into one.
func Concat(vs ...Vector) Vector {
	n := 0
	for _, v := range vs {
		n += len(v)
	}
	out := make(Vector, 0, n)
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}

// Add returns the element-wise sum of v and o.
func (v Vector) Add(o Vector) (Vector, error) {
	if len(v) != len(o) {
		return nil, &IncompatibleDimensionError{Op: "vector add", Want: len(v), Got: len(o)}
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = Add(v[i], o[i])
	}
	return out, nil
}

// Sub returns the element-wise difference of v and o.
func (v Vector) Sub(o Vector) (Vector, error) {
	if len(v) != len(o) {
		return nil, &IncompatibleDimensionError{Op: "vector sub", Want: len(v), Got: len(o)}
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = Sub(v[i], o[i])
	}
	return out, nil
}

// Scale returns v scaled by the scalar expression c.
func (v Vector) Scale(c *Expr) Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = Mul(c, v[i])
	}
	return out
}

// Dot returns the inner product of v and o.
func (v Vector) Dot(o Vector) (*Expr, error) {
	if len(v) != len(o) {
		return nil, &IncompatibleDimensionError{Op: "vector dot", Want: len(v), Got: len(o)}
	}
	terms := make([]*Expr, len(v))
	for i := range v {
		terms[i] = Mul(v[i], o[i])
	}
	return Add(terms...), nil
}

// Simplify returns the element-wise canonical form of v.
func (v Vector) Simplify() Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = Simplify(v[i])
	}
	return out
}

// Substitute replaces symbol s with vals in every element of v.
func (v Vector) Substitute(s *Symbol, vals Vector) (Vector, error) {
	out := make(Vector, len(v))
	for i := range v {
		e, err := Substitute(v[i], s, vals)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// Hash returns a structural hash of the whole vector.
func (v Vector) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, e := range v {
		binary.LittleEndian.PutUint64(buf[:], e.hash)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Matrix is a dense row-major matrix of scalar expressions.
type Matrix []Vector

// NewMatrix returns an all-zero r x c matrix.
func NewMatrix(r, c int) Matrix {
	m := make(Matrix, r)
	for i := range m {
		m[i] = ZeroVector(c)
	}
	return m
}

// Identity returns the n x n identity matrix.
func Identity(n int) Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m[i][i] = one
	}
	return m
}

// Dims returns the matrix dimensions.
func (m Matrix) Dims() (r, c int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// T returns the transpose of m.
func (m Matrix) T() Matrix {
	r, c := m.Dims()
	out := NewMatrix(c, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// Mul returns the matrix product m * o.
func (m Matrix) Mul(o Matrix) (Matrix, error) {
	mr, mc := m.Dims()
	or, oc := o.Dims()
	if mc != or {
		return nil, &IncompatibleDimensionError{Op: "matrix mul", Want: mc, Got: or}
	}
	out := make(Matrix, mr)
	for i := 0; i < mr; i++ {
		out[i] = make(Vector, oc)
		for j := 0; j < oc; j++ {
			terms := make([]*Expr, mc)
			for k := 0; k < mc; k++ {
				terms[k] = Mul(m[i][k], o[k][j])
			}
			out[i][j] = Add(terms...)
		}
	}
	return out, nil
}

// MulVec returns the matrix-vector product m * v.
func (m Matrix) MulVec(v Vector) (Vector, error) {
	mr, mc := m.Dims()
	if mc != len(v) {
		return nil, &IncompatibleDimensionError{Op: "matrix mulvec", Want: mc, Got: len(v)}
	}
	out := make(Vector, mr)
	for i := 0; i < mr; i++ {
		terms := make([]*Expr, mc)
		for k := 0; k < mc; k++ {
			terms[k] = Mul(m[i][k], v[k])
		}
		out[i] = Add(terms...)
	}
	return out, nil
}

// Add returns the element-wise sum of m and o.
func (m Matrix) Add(o Matrix) (Matrix, error) {
	mr, mc := m.Dims()
	or, oc := o.Dims()
	if mr != or || mc != oc {
		return nil, &IncompatibleDimensionError{Op: "matrix add", Want: mr * mc, Got: or * oc}
	}
	out := make(Matrix, mr)
	for i := range m {
		v, err := m[i].Add(o[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Scale returns m scaled by the scalar expression c.
func (m Matrix) Scale(c *Expr) Matrix {
	out := make(Matrix, len(m))
	for i := range m {
		out[i] = m[i].Scale(c)
	}
	return out
}

// Simplify returns the element-wise canonical form of m.
func (m Matrix) Simplify() Matrix {
	out := make(Matrix, len(m))
	for i := range m {
		out[i] = m[i].Simplify()
	}
	return out
}

// Substitute replaces symbol s with vals in every element of m.
func (m Matrix) Substitute(s *Symbol, vals Vector) (Matrix, error) {
	out := make(Matrix, len(m))
	for i := range m {
		v, err := m[i].Substitute(s, vals)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Hash returns a structural hash of the whole matrix including its shape.
func (m Matrix) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	r, c := m.Dims()
	binary.LittleEndian.PutUint64(buf[:], uint64(r))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(c))
	h.Write(buf[:])
	for _, row := range m {
		binary.LittleEndian.PutUint64(buf[:], row.Hash())
		h.Write(buf[:])
	}
	return h.Sum64()
}

// BlockDiag assembles the given square blocks into one block-diagonal
// matrix.
func BlockDiag(blocks ...Matrix) Matrix {
	n, c := 0, 0
	for _, b := range blocks {
		br, bc := b.Dims()
		n += br
		c += bc
	}
	out := NewMatrix(n, c)
	ro, co := 0, 0
	for _, b := range blocks {
		br, bc := b.Dims()
		for i := 0; i < br; i++ {
			for j := 0; j < bc; j++ {
				out[ro+i][co+j] = b[i][j]
			}
		}
		ro += br
		co += bc
	}
	return out
}
