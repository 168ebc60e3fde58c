package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/goecca/ecca"
)

// Discrete is a linear discrete-time reference model:
//
//	x[n+1] = A*x[n] + B*u[n] + wd[n]
//	y[n]   = C*x[n] + D*u[n] + wn[n]
type Discrete struct {
	System
}

// NewDiscrete creates a new linear discrete-time model. The system
// matrix A must be set; the remaining matrices are optional.
func NewDiscrete(A, B, C, D, E *mat.Dense) (*Discrete, error) {
	if A == nil {
		return nil, fmt.Errorf("system matrix must be defined for a model")
	}
	return &Discrete{System: newSystem(A, B, C, D, E)}, nil
}

// Propagate returns the next state of the model for state x and input
// u, with the process noise vector wd added when it has the state
// dimension.
func (d *Discrete) Propagate(x, u, wd mat.Vector) (mat.Vector, error) {
	if err := d.checkDims(x, u); err != nil {
		return nil, err
	}

	nx, _, _, _ := d.SystemDims()

	out := new(mat.Dense)
	out.Mul(d.A, x)
	if u != nil && d.B != nil {
		outU := new(mat.Dense)
		outU.Mul(d.B, u)
		out.Add(out, outU)
	}

	if wd != nil && wd.Len() == nx {
		out.Add(out, wd)
	}

	return out.ColView(0), nil
}

// Trajectory rolls the model out over n steps starting from x0 under
// constant input u, perturbing each state transition with process noise
// wd and each output with measurement noise wn. It returns the true
// states and the noisy measurements stored in rows, together with the
// harness samples built from them at timestamps dt, 2*dt, ...
func (d *Discrete) Trajectory(x0, u mat.Vector, wd, wn ecca.Noise, dt float64, n int) (*mat.Dense, *mat.Dense, []Sample, error) {
	if n <= 0 {
		return nil, nil, nil, fmt.Errorf("invalid number of steps: %d", n)
	}
	if err := d.checkDims(x0, u); err != nil {
		return nil, nil, nil, err
	}
	if d.C == nil {
		return nil, nil, nil, fmt.Errorf("system has no output matrix")
	}

	nx, _, ny, _ := d.SystemDims()

	states := mat.NewDense(n, nx, nil)
	meas := mat.NewDense(n, ny, nil)
	samples := make([]Sample, n)

	x := &mat.VecDense{}
	x.CloneFromVec(x0)

	for i := 0; i < n; i++ {
		var wdi, wni mat.Vector
		if wd != nil {
			wdi = wd.Sample()
		}
		if wn != nil {
			wni = wn.Sample()
		}

		xNext, err := d.Propagate(x, u, wdi)
		if err != nil {
			return nil, nil, nil, err
		}
		x.CloneFromVec(xNext)

		z, err := d.Observe(x, u, wni)
		if err != nil {
			return nil, nil, nil, err
		}

		for j := 0; j < nx; j++ {
			states.Set(i, j, x.AtVec(j))
		}
		for j := 0; j < ny; j++ {
			meas.Set(i, j, z.AtVec(j))
		}

		zc := &mat.VecDense{}
		zc.CloneFromVec(z)
		samples[i] = Sample{T: dt * float64(i+1), U: u, Z: zc}
	}

	return states, meas, samples, nil
}
