package sim

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Continuous is a linear continuous-time reference model:
//
//	dx/dt = A*x + B*u + wd
//	y     = C*x + D*u + wn
type Continuous struct {
	System
}

// NewContinuous creates a new linear continuous-time model. The system
// matrix A must be set; the remaining matrices are optional.
func NewContinuous(A, B, C, D, E *mat.Dense) (*Continuous, error) {
	if A == nil {
		return nil, fmt.Errorf("system matrix must be defined for a model")
	}
	return &Continuous{System: newSystem(A, B, C, D, E)}, nil
}

// ToDiscrete converts the continuous-time model to a discrete-time
// model with sampling time Ts using the matrix exponential:
//
//	Ad = exp(A*Ts)
//	Bd = (Ad - I)*inv(A)*B
//
// When A is singular, Bd falls back to numerically integrating
// exp(A*t)*B over [0, Ts].
func (ct *Continuous) ToDiscrete(Ts float64) (*Discrete, error) {
	nx, _, _, _ := ct.SystemDims()
	dsys := newSystem(ct.A, ct.B, ct.C, ct.D, ct.E)

	dsys.A.Scale(Ts, dsys.A)
	dsys.A.Exp(dsys.A)

	if dsys.B == nil {
		return &Discrete{dsys}, nil
	}

	eye, err := matrix.NewDenseValIdentity(nx, 1.0)
	if err != nil {
		return nil, err
	}

	aAux := mat.NewDense(nx, nx, nil)
	aAux.Sub(dsys.A, eye)

	aInv := mat.NewDense(nx, nx, nil)
	if err := aInv.Inverse(ct.A); err == nil {
		aAux.Mul(aAux, aInv)
		dsys.B.Mul(aAux, ct.B)
		return &Discrete{dsys}, nil
	}

	// A is singular: Bd = integrate(exp(A*t)dt, 0, Ts) * B
	aSum := mat.NewDense(nx, nx, nil)
	const n = 100
	dt := Ts / float64(n-1)
	for i := 0; i < n; i++ {
		aAux.Scale(dt*float64(i), ct.A)
		aAux.Exp(aAux)
		aAux.Scale(dt, aAux)
		aSum.Add(aSum, aAux)
	}
	dsys.B.Mul(aSum, ct.B)

	return &Discrete{dsys}, nil
}

// Propagate advances the model state by one timestep dt for state x and
// input u using Euler integration of the state derivative. The process
// noise vector wd perturbs the derivative when it has the state
// dimension.
func (ct *Continuous) Propagate(x, u, wd mat.Vector, dt float64) (mat.Vector, error) {
	if err := ct.checkDims(x, u); err != nil {
		return nil, err
	}

	nx, _, _, _ := ct.SystemDims()

	out := new(mat.Dense)
	out.Mul(ct.A, x)
	if u != nil && ct.B != nil {
		outU := new(mat.Dense)
		outU.Mul(ct.B, u)
		out.Add(out, outU)
	}

	if wd != nil && wd.Len() == nx {
		out.Add(out, wd)
	}

	out.Scale(dt, out)
	out.Add(x, out)

	return out.ColView(0), nil
}
