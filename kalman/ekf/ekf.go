// Package ekf implements the runtime error-state extended Kalman filter
// driven by symbolically derived, compiled model artifacts.
package ekf

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	"github.com/goecca/ecca"
	"github.com/goecca/ecca/derive"
	"github.com/goecca/ecca/estimate"
	"github.com/goecca/ecca/internal/matutil"
)

// EKF is an error-state extended Kalman filter. Its Jacobians are exact
// compiled symbolic derivatives, not finite differences, and state
// corrections are applied through the manifold retraction of the
// underlying model, so the covariance always lives in the tangent
// space.
type EKF struct {
	// d holds the derived, compiled filter artifacts
	d *derive.Derived
	// p is the EKF error-state covariance matrix
	p *mat.SymDense
	// pNext is the EKF predicted error-state covariance matrix
	pNext *mat.SymDense
	// inn is the innovation vector
	inn *mat.VecDense
	// k is the Kalman gain
	k *mat.Dense
}

// New creates a new EKF from the derived filter artifacts and the
// initial condition and returns it. The initial covariance must have
// the model's tangent-space dimension and the initial state the model's
// state dimension.
func New(d *derive.Derived, init ecca.InitCond) (*EKF, error) {
	if d == nil {
		return nil, fmt.Errorf("ekf: no derived filter artifacts")
	}

	p := d.Spec().Process
	if init.State().Len() != p.StateDim() {
		return nil, fmt.Errorf("ekf: invalid initial state dimension: %d", init.State().Len())
	}
	nt := p.TangentDim()
	if init.Cov().SymmetricDim() != nt {
		return nil, fmt.Errorf("ekf: invalid initial covariance dimension: %d", init.Cov().SymmetricDim())
	}

	cov := mat.NewSymDense(nt, nil)
	cov.CopySym(init.Cov())

	return &EKF{
		d:     d,
		p:     cov,
		pNext: mat.NewSymDense(nt, nil),
		inn:   &mat.VecDense{},
		k:     &mat.Dense{},
	}, nil
}

// propArgs assembles the compiled function arguments for the process
// artifacts, which take the input vector only when the model has one.
func (k *EKF) propArgs(x, u mat.Vector) []mat.Vector {
	if k.d.Spec().Process.InputDim() > 0 {
		return []mat.Vector{x, u}
	}
	return []mat.Vector{x}
}

// Predict propagates the state x under input u and returns the
// predicted estimate. The covariance is propagated in the error state
// as F*P*F' + G*Q*G' and becomes the filter covariance, so consecutive
// predictions without a correction keep accumulating process noise.
func (k *EKF) Predict(x, u mat.Vector) (ecca.Estimate, error) {
	args := k.propArgs(x, u)

	xNext, err := k.d.Predict.EvalVec(args...)
	if err != nil {
		return nil, fmt.Errorf("system state propagation failed: %w", err)
	}

	f, err := k.d.F.Eval(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate process Jacobian: %w", err)
	}

	cov := &mat.Dense{}
	cov.Mul(f, k.p)
	cov.Mul(cov, f.T())

	if k.d.G != nil {
		g, err := k.d.G.Eval(args...)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate noise Jacobian: %w", err)
		}
		gq := &mat.Dense{}
		gq.Mul(g, k.d.Spec().Q)
		gqg := &mat.Dense{}
		gqg.Mul(gq, g.T())
		cov.Add(cov, gqg)
	}

	matutil.Symmetrize(k.pNext, cov)
	k.p.CopySym(k.pNext)

	return estimate.NewBaseWithCov(xNext, k.pNext)
}

// Update corrects the predicted state x using the measurement z for the
// first declared measurement model and returns the corrected estimate.
func (k *EKF) Update(x, u, z mat.Vector) (ecca.Estimate, error) {
	names := k.d.Measurements()
	if len(names) == 0 {
		return nil, fmt.Errorf("ekf: filter has no measurement models")
	}
	return k.UpdateMeasurement(x, u, z, names[0])
}

// UpdateMeasurement corrects the predicted state x using the
// measurement z of the named measurement model and returns the
// corrected estimate. The correction is computed in the tangent space
// and applied through the model retraction; the covariance is corrected
// in Joseph form and transported through the retraction with the right
// Jacobian at the applied correction.
func (k *EKF) UpdateMeasurement(x, u, z mat.Vector, name string) (ecca.Estimate, error) {
	m, err := k.d.Measurement(name)
	if err != nil {
		return nil, err
	}

	if z == nil || z.Len() != m.Dim {
		return nil, fmt.Errorf("invalid measurement supplied: %v", z)
	}

	y, err := m.Observe.EvalVec(x)
	if err != nil {
		return nil, fmt.Errorf("failed to observe system output: %w", err)
	}

	h, err := m.H.Eval(x)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate measurement Jacobian: %w", err)
	}

	// effective measurement noise covariance M*R*M'
	r := &mat.Dense{}
	if m.M != nil {
		mj, err := m.M.Eval(x)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate measurement noise Jacobian: %w", err)
		}
		mr := &mat.Dense{}
		mr.Mul(mj, m.R)
		r.Mul(mr, mj.T())
	} else {
		r.CloneFrom(m.R)
	}

	nt := k.p.SymmetricDim()

	// P*H'
	pxy := &mat.Dense{}
	pxy.Mul(k.p, h.T())

	// H*P*H' + R
	pyy := &mat.Dense{}
	pyy.Mul(h, pxy)
	pyy.Add(pyy, r)

	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return nil, fmt.Errorf("failed to calculate innovation covariance inverse: %v", err)
	}
	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	// innovation vector
	inn := &mat.VecDense{}
	inn.SubVec(z, y)

	// tangent-space correction applied through the retraction
	corr := &mat.VecDense{}
	corr.MulVec(gain, inn)
	xNext, err := k.d.Retract.EvalVec(x, corr)
	if err != nil {
		return nil, fmt.Errorf("failed to apply state correction: %w", err)
	}

	// Joseph form update
	eye, err := matrix.NewDenseValIdentity(nt, 1.0)
	if err != nil {
		return nil, err
	}
	a := &mat.Dense{}
	a.Mul(gain, h)
	a.Sub(eye, a)

	ap := &mat.Dense{}
	ap.Mul(a, k.p)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	kr := &mat.Dense{}
	kr.Mul(gain, r)
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	pCorr := &mat.Dense{}
	pCorr.Add(apa, krk)

	// transport the covariance through the retraction
	jr, err := k.d.ResetJac.Eval(corr)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate reset Jacobian: %w", err)
	}
	jp := &mat.Dense{}
	jp.Mul(jr, pCorr)
	pCorr.Mul(jp, jr.T())

	k.inn.CloneFromVec(inn)
	k.k.CloneFrom(gain)
	matutil.Symmetrize(k.p, pCorr)

	return estimate.NewBaseWithInnovation(xNext, k.p, inn)
}

// Run runs one step of the EKF for given state x, input u and
// measurement z: it predicts the next state and corrects it with z.
func (k *EKF) Run(x, u, z mat.Vector) (ecca.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}

	est, err := k.Update(pred.Val(), u, z)
	if err != nil {
		return nil, err
	}

	return est, nil
}

// Derived returns the derived artifacts the filter runs on.
func (k *EKF) Derived() *derive.Derived {
	return k.d
}

// Cov returns EKF error-state covariance.
func (k *EKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets EKF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions differ from
// the EKF covariance dimensions.
func (k *EKF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return fmt.Errorf("invalid covariance matrix dims: [%d x %d]", cov.SymmetricDim(), cov.SymmetricDim())
	}

	k.p.CopySym(cov)

	return nil
}

// Gain returns Kalman gain.
func (k *EKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}
