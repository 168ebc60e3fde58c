// Package sim provides the simulation and validation harness: it feeds
// timestamped input/measurement samples through a filter, fails fast
// when the filter diverges, and generates synthetic trajectories from
// linear reference models.
package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/goecca/ecca"
	"github.com/goecca/ecca/internal/matutil"
)

// DefaultPSDTol is the tolerance used by the Runner when checking that
// the filter covariance has remained positive semi-definite.
const DefaultPSDTol = 1e-9

// InitCond implements ecca.InitCond
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CloneFromVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}

// Sample is one timestamped harness input. U is the control input
// applied over the step ending at T. Z is the measurement received at
// T; a nil Z means the step is prediction only. Meas names the
// measurement model Z belongs to; when empty the filter's first
// declared measurement model is used.
type Sample struct {
	T    float64
	U    mat.Vector
	Z    mat.Vector
	Meas string
}

// DivergenceError is returned by the Runner when the filter state can
// no longer be trusted: the covariance has lost positive
// semi-definiteness beyond tolerance, or the sample timestamps are not
// strictly increasing. The harness stops instead of continuing with a
// corrupted state.
type DivergenceError struct {
	// T is the timestamp of the offending sample
	T float64
	// Reason describes what went wrong
	Reason string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("filter diverged at t=%v: %s", e.T, e.Reason)
}

// measUpdater is implemented by filters that support multiple named
// measurement models.
type measUpdater interface {
	UpdateMeasurement(x, u, z mat.Vector, name string) (ecca.Estimate, error)
}

// Runner drives a filter over a sequence of samples. Each sample
// triggers a predict step; samples carrying a measurement additionally
// trigger an update step.
type Runner struct {
	// f is the filter under test
	f ecca.Filter
	// x is the current state estimate
	x *mat.VecDense
	// t is the timestamp of the last accepted sample
	t float64
	// stepped tells whether any sample has been accepted yet
	stepped bool
	// tol is the PSD check tolerance
	tol float64
}

// RunnerOption configures the Runner.
type RunnerOption func(*Runner)

// WithPSDTol overrides the covariance PSD check tolerance.
func WithPSDTol(tol float64) RunnerOption {
	return func(r *Runner) { r.tol = tol }
}

// NewRunner creates a new harness Runner for the given filter starting
// from the given initial condition.
func NewRunner(f ecca.Filter, init ecca.InitCond, opts ...RunnerOption) (*Runner, error) {
	if f == nil {
		return nil, fmt.Errorf("invalid filter: %v", f)
	}
	if init == nil {
		return nil, fmt.Errorf("invalid initial condition: %v", init)
	}

	x := &mat.VecDense{}
	x.CloneFromVec(init.State())

	r := &Runner{
		f:   f,
		x:   x,
		tol: DefaultPSDTol,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Step advances the filter by one sample and returns the resulting
// estimate. It returns DivergenceError if the sample timestamp does not
// strictly increase or the estimate covariance is no longer positive
// semi-definite within tolerance.
func (r *Runner) Step(s Sample) (ecca.Estimate, error) {
	if r.stepped && s.T <= r.t {
		return nil, &DivergenceError{T: s.T, Reason: fmt.Sprintf("timestamp not strictly increasing: %v <= %v", s.T, r.t)}
	}

	est, err := r.f.Predict(r.x, s.U)
	if err != nil {
		return nil, err
	}

	if s.Z != nil {
		if s.Meas != "" {
			mu, ok := r.f.(measUpdater)
			if !ok {
				return nil, fmt.Errorf("filter does not support named measurement models")
			}
			est, err = mu.UpdateMeasurement(est.Val(), s.U, s.Z, s.Meas)
		} else {
			est, err = r.f.Update(est.Val(), s.U, s.Z)
		}
		if err != nil {
			return nil, err
		}
	}

	if !matutil.IsPSD(est.Cov(), r.tol) {
		return nil, &DivergenceError{T: s.T, Reason: "covariance is not positive semi-definite"}
	}

	r.x.CloneFromVec(est.Val())
	r.t = s.T
	r.stepped = true

	return est, nil
}

// Run advances the filter over all samples in order and returns the
// estimates produced. It stops at the first failing step and returns
// the estimates accepted so far together with the error.
func (r *Runner) Run(samples []Sample) ([]ecca.Estimate, error) {
	estimates := make([]ecca.Estimate, 0, len(samples))
	for _, s := range samples {
		est, err := r.Step(s)
		if err != nil {
			return estimates, err
		}
		estimates = append(estimates, est)
	}

	return estimates, nil
}

// State returns the current state estimate of the harness.
func (r *Runner) State() mat.Vector {
	x := &mat.VecDense{}
	x.CloneFromVec(r.x)

	return x
}
