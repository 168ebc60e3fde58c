// Package derive turns symbolic process/measurement models into the
// compiled artifacts of an error-state (extended/invariant style)
// Kalman filter.
//
// The linearization point is symbolic, not numeric: Jacobians are
// derived against a tangent-space perturbation of the reference state
// and evaluated at a zero perturbation, so one derivation is reusable
// across all operating points. For manifold state blocks the error
// state lives in the tangent space, which may be smaller than the state
// parameterization (3 tangent dimensions for a 4 parameter rotation).
package derive

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/goecca/ecca/compile"
	"github.com/goecca/ecca/model"
	"github.com/goecca/ecca/symbolic"
)

// FilterSpec is a named estimator configuration binding one process
// model, one or more measurement models and their noise covariances.
// Derived artifacts are cached per FilterSpec identity: deriving the
// same spec value twice returns the same artifacts.
type FilterSpec struct {
	// Name identifies the estimator
	Name string
	// Process is the process model
	Process *model.Process
	// Measurements are the bound measurement models
	Measurements []*model.Measurement
	// Q is the process noise covariance; nil only for noise-free models
	Q mat.Symmetric
	// R maps measurement names to their noise covariances
	R map[string]mat.Symmetric
	// Params assigns numeric values to the scalar session parameter
	// symbols referenced by the models
	Params map[*symbolic.Symbol]float64
}

// Measurement holds the derived artifacts of one measurement model.
type Measurement struct {
	// Name is the measurement name
	Name string
	// Dim is the observation dimension
	Dim int
	// Observe predicts the measurement: inputs (x), output [dim x 1]
	Observe *compile.Func
	// H is the error-state measurement Jacobian: inputs (x),
	// output [dim x tangentDim]
	H *compile.Func
	// M is the measurement noise Jacobian dh/dv at v=0: inputs (x),
	// output [dim x noiseDim]; nil for noise-free measurements
	M *compile.Func
	// R is the measurement noise covariance
	R mat.Symmetric
}

// Derived holds the compiled artifacts of one derived filter.
type Derived struct {
	spec *FilterSpec

	// Predict propagates the state with zero noise: inputs (x[, u]),
	// output [stateDim x 1]
	Predict *compile.Func
	// F is the error-state transition Jacobian: inputs (x[, u]),
	// output [tangentDim x tangentDim]
	F *compile.Func
	// G is the process noise Jacobian: inputs (x[, u]),
	// output [tangentDim x noiseDim]; nil for noise-free models
	G *compile.Func
	// Retract applies a tangent correction to the state: inputs
	// (x, dx), output [stateDim x 1]
	Retract *compile.Func
	// ResetJac is the block-diagonal right Jacobian at the applied
	// correction, used to transport covariance through the
	// retraction: inputs (dx), output [tangentDim x tangentDim]
	ResetJac *compile.Func

	meas map[string]*Measurement
}

// Spec returns the FilterSpec the artifacts were derived from.
func (d *Derived) Spec() *FilterSpec { return d.spec }

// Measurement returns the derived artifacts of the named measurement.
func (d *Derived) Measurement(name string) (*Measurement, error) {
	m, ok := d.meas[name]
	if !ok {
		return nil, &model.UnboundSymbolError{Name: name}
	}
	return m, nil
}

// Measurements returns the names of all derived measurements in spec
// order.
func (d *Derived) Measurements() []string {
	names := make([]string, 0, len(d.meas))
	for _, m := range d.spec.Measurements {
		names = append(names, m.Name())
	}
	return names
}

var derived = struct {
	sync.Mutex
	m map[*FilterSpec]*Derived
}{m: make(map[*FilterSpec]*Derived)}

// EKF derives the error-state extended Kalman filter equations for the
// given spec, compiles them and returns the artifacts. Results are
// cached against the FilterSpec identity.
//
// It returns IncompatibleDimensionError for covariance or Jacobian
// shape inconsistencies; these are fatal configuration errors. Whether
// an innovation covariance is numerically invertible is deliberately
// not decided here: no symbolic invertibility proof is attempted and no
// regularization is inserted, so a well-conditioned R remains the
// caller's responsibility.
func EKF(spec *FilterSpec) (*Derived, error) {
	derived.Lock()
	if d, ok := derived.m[spec]; ok {
		derived.Unlock()
		return d, nil
	}
	derived.Unlock()

	d, err := deriveEKF(spec)
	if err != nil {
		return nil, err
	}

	derived.Lock()
	if prev, ok := derived.m[spec]; ok {
		d = prev
	} else {
		derived.m[spec] = d
	}
	derived.Unlock()

	return d, nil
}

func deriveEKF(spec *FilterSpec) (*Derived, error) {
	p := spec.Process
	if p == nil {
		return nil, fmt.Errorf("derive: filter spec %q has no process model", spec.Name)
	}
	if p.NoiseDim() > 0 {
		if spec.Q == nil || spec.Q.SymmetricDim() != p.NoiseDim() {
			got := 0
			if spec.Q != nil {
				got = spec.Q.SymmetricDim()
			}
			return nil, &symbolic.IncompatibleDimensionError{Op: "process noise covariance", Want: p.NoiseDim(), Got: got}
		}
	}

	x := p.State()
	u := p.Input()
	w := p.NoiseSym()
	blocks := p.Blocks()
	nt := p.TangentDim()

	f, err := bindParams(p.Transition(), p.Params(), spec.Params)
	if err != nil {
		return nil, err
	}

	propSig := compile.Signature{x}
	if u != nil {
		propSig = append(propSig, u)
	}

	// nominal propagation with zero noise
	f0 := f
	if w != nil {
		f0 = substituteZeroVec(f, w)
	}
	predict, err := compile.CompileVector(f0.Simplify(), propSig)
	if err != nil {
		return nil, err
	}

	// retraction x' = x (+) dx, blockwise through each group's exp map
	dx := symbolic.Scratch(p.Name()+".dx", nt)
	xRetr, err := retractExpr(blocks, x, dx)
	if err != nil {
		return nil, err
	}
	retract, err := compile.CompileVector(xRetr.Simplify(), compile.Signature{x, dx})
	if err != nil {
		return nil, err
	}

	// error-state dynamics: e' = Log(f(x)^-1 o f(x (+) eta)) blockwise,
	// linearized at eta = 0, w = 0
	eta := symbolic.Scratch(p.Name()+".eta", nt)
	xPert, err := retractExpr(blocks, x, eta)
	if err != nil {
		return nil, err
	}
	fPert, err := f.Substitute(x, xPert)
	if err != nil {
		return nil, err
	}
	eNext, err := logError(blocks, f0, fPert, w)
	if err != nil {
		return nil, err
	}

	fJac, err := linearize(symbolic.Jacobian(eNext, eta), eta, w)
	if err != nil {
		return nil, err
	}
	if err := checkShape("process Jacobian F", fJac, nt, nt); err != nil {
		return nil, err
	}
	fFn, err := compile.Compile(fJac.Simplify(), propSig)
	if err != nil {
		return nil, err
	}

	var gFn *compile.Func
	if w != nil {
		gJac, err := linearize(symbolic.Jacobian(eNext, w), eta, w)
		if err != nil {
			return nil, err
		}
		if err := checkShape("noise Jacobian G", gJac, nt, w.Dim()); err != nil {
			return nil, err
		}
		if gFn, err = compile.Compile(gJac.Simplify(), propSig); err != nil {
			return nil, err
		}
	}

	// covariance transport through the retraction
	jr := make([]symbolic.Matrix, len(blocks))
	for i, b := range blocks {
		j, err := b.Group.RightJacobian(dx.Vector()[b.TangentOff : b.TangentOff+b.TangentDim])
		if err != nil {
			return nil, err
		}
		jr[i] = j
	}
	resetJac, err := compile.Compile(symbolic.BlockDiag(jr...).Simplify(), compile.Signature{dx})
	if err != nil {
		return nil, err
	}

	d := &Derived{
		spec:     spec,
		Predict:  predict,
		F:        fFn,
		G:        gFn,
		Retract:  retract,
		ResetJac: resetJac,
		meas:     make(map[string]*Measurement),
	}

	for _, m := range spec.Measurements {
		if m.Process() != p {
			return nil, fmt.Errorf("derive: measurement %q is bound to a different process", m.Name())
		}
		if _, ok := d.meas[m.Name()]; ok {
			return nil, fmt.Errorf("derive: duplicate measurement %q", m.Name())
		}
		dm, err := deriveMeasurement(spec, m, x, xPert, eta, nt)
		if err != nil {
			return nil, err
		}
		d.meas[m.Name()] = dm
	}

	return d, nil
}

func deriveMeasurement(spec *FilterSpec, m *model.Measurement, x *symbolic.Symbol, xPert symbolic.Vector, eta *symbolic.Symbol, nt int) (*Measurement, error) {
	p := spec.Process
	r, ok := spec.R[m.Name()]
	if !ok || r == nil || r.SymmetricDim() != m.Dim() {
		got := 0
		if ok && r != nil {
			got = r.SymmetricDim()
		}
		return nil, &symbolic.IncompatibleDimensionError{
			Op: fmt.Sprintf("measurement %q noise covariance", m.Name()), Want: m.Dim(), Got: got,
		}
	}

	h, err := bindParams(m.Observation(), p.Params(), spec.Params)
	if err != nil {
		return nil, err
	}

	v := m.NoiseSym()
	h0 := h
	if v != nil {
		h0 = substituteZeroVec(h, v)
	}
	observe, err := compile.CompileVector(h0.Simplify(), compile.Signature{x})
	if err != nil {
		return nil, err
	}

	hPert, err := h.Substitute(x, xPert)
	if err != nil {
		return nil, err
	}
	hJac, err := linearize(symbolic.Jacobian(hPert, eta), eta, v)
	if err != nil {
		return nil, err
	}
	if err := checkShape(fmt.Sprintf("measurement %q Jacobian H", m.Name()), hJac, m.Dim(), nt); err != nil {
		return nil, err
	}
	hFn, err := compile.Compile(hJac.Simplify(), compile.Signature{x})
	if err != nil {
		return nil, err
	}

	var mFn *compile.Func
	if v != nil {
		mJac, err := linearize(symbolic.Jacobian(h, v), nil, v)
		if err != nil {
			return nil, err
		}
		if err := checkShape(fmt.Sprintf("measurement %q noise Jacobian", m.Name()), mJac, m.Dim(), v.Dim()); err != nil {
			return nil, err
		}
		if mFn, err = compile.Compile(mJac.Simplify(), compile.Signature{x}); err != nil {
			return nil, err
		}
	}

	return &Measurement{
		Name:    m.Name(),
		Dim:     m.Dim(),
		Observe: observe,
		H:       hFn,
		M:       mFn,
		R:       r,
	}, nil
}

// retractExpr builds the blockwise retraction x (+) d over the state
// symbol and a tangent symbol.
func retractExpr(blocks []model.BlockInfo, x, d *symbolic.Symbol) (symbolic.Vector, error) {
	parts := make([]symbolic.Vector, len(blocks))
	for i, b := range blocks {
		step, err := b.Group.Exp(d.Vector()[b.TangentOff : b.TangentOff+b.TangentDim])
		if err != nil {
			return nil, err
		}
		xb := x.Vector()[b.StateOff : b.StateOff+b.StateDim]
		next, err := b.Group.Compose(xb, step)
		if err != nil {
			return nil, err
		}
		parts[i] = next
	}
	return symbolic.Concat(parts...), nil
}

// logError builds the blockwise tangent-space error between the nominal
// and perturbed next states: Log(f0^-1 o fPert) per block.
func logError(blocks []model.BlockInfo, f0, fPert symbolic.Vector, w *symbolic.Symbol) (symbolic.Vector, error) {
	parts := make([]symbolic.Vector, len(blocks))
	for i, b := range blocks {
		n0 := f0[b.StateOff : b.StateOff+b.StateDim]
		np := fPert[b.StateOff : b.StateOff+b.StateDim]
		inv, err := b.Group.Inverse(n0)
		if err != nil {
			return nil, err
		}
		rel, err := b.Group.Compose(inv, np)
		if err != nil {
			return nil, err
		}
		e, err := b.Group.Log(rel)
		if err != nil {
			return nil, err
		}
		parts[i] = e
	}
	return symbolic.Concat(parts...), nil
}

// linearize evaluates a Jacobian at a zero perturbation and zero noise.
func linearize(m symbolic.Matrix, eta, w *symbolic.Symbol) (symbolic.Matrix, error) {
	var err error
	if eta != nil {
		if m, err = m.Substitute(eta, symbolic.ZeroVector(eta.Dim())); err != nil {
			return nil, err
		}
	}
	if w != nil {
		if m, err = m.Substitute(w, symbolic.ZeroVector(w.Dim())); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func substituteZeroVec(v symbolic.Vector, s *symbolic.Symbol) symbolic.Vector {
	out, err := v.Substitute(s, symbolic.ZeroVector(s.Dim()))
	if err != nil {
		// the zero vector always matches the symbol dimension
		panic(err)
	}
	return out
}

func checkShape(op string, m symbolic.Matrix, rows, cols int) error {
	r, c := m.Dims()
	if r == rows && c == cols {
		return nil
	}
	want, got := rows, r
	if r == rows {
		want, got = cols, c
	}
	return &symbolic.IncompatibleDimensionError{
		Op:   fmt.Sprintf("%s shape [%d x %d], want [%d x %d]", op, r, c, rows, cols),
		Want: want,
		Got:  got,
	}
}

// bindParams substitutes numeric parameter values into the expression.
// Every parameter the model references must be assigned a value.
func bindParams(v symbolic.Vector, params []*symbolic.Symbol, vals map[*symbolic.Symbol]float64) (symbolic.Vector, error) {
	for _, s := range params {
		pv, ok := vals[s]
		if !ok {
			return nil, fmt.Errorf("derive: no value bound for parameter %q", s.Name())
		}
		if s.Dim() != 1 {
			return nil, fmt.Errorf("derive: parameter %q is not scalar", s.Name())
		}
		out, err := v.Substitute(s, symbolic.Vector{symbolic.Const(pv)})
		if err != nil {
			return nil, err
		}
		v = out
	}
	return v, nil
}
