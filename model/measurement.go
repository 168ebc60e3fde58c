package model

import (
	"fmt"

	"github.com/goecca/ecca/lie"
	"github.com/goecca/ecca/symbolic"
)

// MeasArgs is the view of the model a measurement function builds its
// observation expression from.
type MeasArgs struct {
	// X is the full stacked state vector
	X symbolic.Vector
	// V is the measurement noise vector; empty when noiseDim is 0
	V symbolic.Vector
	// Block resolves a block's state parameters by name.
	// It returns UnboundSymbolError for names the process does not own.
	Block func(name string) (symbolic.Vector, error)
}

// MeasFunc returns the observation expression of a measurement model.
type MeasFunc func(a MeasArgs) (symbolic.Vector, error)

// Measurement is a symbolic measurement model bound to a process: a
// mapping from (state, noise) symbols to an observation expression. It
// may observe any subset of the process state.
type Measurement struct {
	name string
	proc *Process
	v    *symbolic.Symbol
	h    symbolic.Vector
}

// Measure builds a measurement model named name with noiseDim noise
// variables from fn and binds it to the process. The observation
// expression must only reference the process state, the measurement
// noise and session parameters; anything else fails with
// UnboundSymbolError before any derivation is attempted.
func (p *Process) Measure(name string, noiseDim int, fn MeasFunc) (*Measurement, error) {
	if name == "" {
		return nil, fmt.Errorf("model: empty measurement name")
	}
	if noiseDim < 0 {
		return nil, fmt.Errorf("model: invalid noise dimension %d for measurement %q", noiseDim, name)
	}
	if fn == nil {
		return nil, fmt.Errorf("model: nil measurement function for %q", name)
	}

	var v *symbolic.Symbol
	var err error
	if noiseDim > 0 {
		v, err = p.sess.Declare(p.name+"."+name+".v", noiseDim, symbolic.DomainNoise)
		if err != nil {
			return nil, err
		}
	}

	a := MeasArgs{X: p.x.Vector(), Block: p.BlockState}
	if v != nil {
		a.V = v.Vector()
	}

	h, err := fn(a)
	if err != nil {
		return nil, fmt.Errorf("model: measurement %q: %w", name, err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("model: measurement %q observes nothing", name)
	}

	m := &Measurement{name: name, proc: p, v: v, h: h.Simplify()}
	extra := []*symbolic.Symbol{}
	if v != nil {
		extra = append(extra, v)
	}
	if err := p.checkBound(m.h, extra); err != nil {
		return nil, err
	}

	return m, nil
}

// MeasureBlock builds a direct observation of the named Euclidean block
// with additive noise: z = x_block + v.
func (p *Process) MeasureBlock(name, block string) (*Measurement, error) {
	xb, err := p.BlockState(block)
	if err != nil {
		return nil, err
	}
	for _, b := range p.blocks {
		if b.Name == block && b.Group.Kind() != lie.Euclidean {
			return nil, fmt.Errorf("model: direct observation of %s block %q is not defined", b.Group.Kind(), block)
		}
	}

	return p.Measure(name, len(xb), func(a MeasArgs) (symbolic.Vector, error) {
		return xb.Add(a.V)
	})
}

// Name returns the measurement name.
func (m *Measurement) Name() string { return m.name }

// Process returns the process the measurement is bound to.
func (m *Measurement) Process() *Process { return m.proc }

// Dim returns the observation dimension.
func (m *Measurement) Dim() int { return len(m.h) }

// NoiseDim returns the measurement noise dimension.
func (m *Measurement) NoiseDim() int {
	if m.v == nil {
		return 0
	}
	return m.v.Dim()
}

// NoiseSym returns the measurement noise symbol, or nil.
func (m *Measurement) NoiseSym() *symbolic.Symbol { return m.v }

// Observation returns the observation expression vector over the
// process state and measurement noise symbols.
func (m *Measurement) Observation() symbolic.Vector {
	out := make(symbolic.Vector, len(m.h))
	copy(out, m.h)
	return out
}
