// Package model builds symbolic process and measurement models from
// primitive blocks.
//
// A process model is composed of an ordered sequence of sub-model
// blocks, each carrying a manifold kind, a noise dimension and a
// dynamics hook returning the block's tangent-space velocity. The
// blocks are stacked into one combined state vector and one stacked
// transition expression; the stacking order is part of the model's
// identity, so reordering blocks produces a distinct, incompatible
// model.
package model

import (
	"fmt"

	"github.com/goecca/ecca/lie"
	"github.com/goecca/ecca/symbolic"
)

// UnboundSymbolError is returned when a model expression references a
// block or symbol that is not bound to the process state.
type UnboundSymbolError struct {
	// Name is the unbound block or symbol name
	Name string
}

// Error implements the error interface.
func (e *UnboundSymbolError) Error() string {
	return fmt.Sprintf("model: reference to unbound symbol %q", e.Name)
}

// DynamicsFunc returns the tangent-space velocity of one block given
// the block arguments. A nil DynamicsFunc means zero velocity, which
// together with a nonzero noise dimension yields a random-walk block.
type DynamicsFunc func(a BlockArgs) (symbolic.Vector, error)

// BlockArgs is the view of the model a block dynamics function builds
// its velocity expression from.
type BlockArgs struct {
	// X is this block's state parameter vector
	X symbolic.Vector
	// U is the model input vector; empty when the model has no inputs
	U symbolic.Vector
	// Block resolves another block's state parameters by name.
	// It returns UnboundSymbolError for names the process does not own.
	Block func(name string) (symbolic.Vector, error)
}

// Block is one primitive sub-model of a process: a named state block
// with a manifold kind, a tangent-space noise dimension and optional
// dynamics.
type Block struct {
	// Name identifies the block within the process
	Name string
	// Kind is the manifold variant of the block state
	Kind lie.Kind
	// Dim is the state dimension for Euclidean blocks; Rotation and
	// Pose blocks have fixed dimensions and ignore it
	Dim int
	// NoiseDim is the tangent-space process noise dimension of the
	// block: either 0 or the block's tangent dimension
	NoiseDim int
	// Dynamics returns the block's tangent velocity; nil means zero
	Dynamics DynamicsFunc
}

// BlockInfo describes the placement of one block inside the stacked
// process state, exposed for the derivation engine.
type BlockInfo struct {
	// Name is the block name
	Name string
	// Group is the block's manifold variant
	Group lie.Group
	// StateOff and StateDim locate the block's parameters in the
	// stacked state vector
	StateOff, StateDim int
	// TangentOff and TangentDim locate the block in the stacked
	// tangent (error-state) vector
	TangentOff, TangentDim int
	// NoiseOff and NoiseDim locate the block in the stacked process
	// noise vector
	NoiseOff, NoiseDim int
}

// Process is a symbolic process model: a mapping from (state, input,
// noise) symbols to the next-state expression. The expression dimension
// always matches the state dimension.
type Process struct {
	name   string
	dt     float64
	blocks []BlockInfo
	x      *symbolic.Symbol
	u      *symbolic.Symbol
	w      *symbolic.Symbol
	params []*symbolic.Symbol
	f      symbolic.Vector
	sess   *symbolic.Session
}

// Option configures process building.
type Option func(*options)

type options struct {
	rk4 bool
}

// WithRK4 selects 4th order Runge-Kutta integration of the block
// velocities instead of the default forward Euler step. RK4 is only
// available for fully Euclidean state vectors.
func WithRK4() Option {
	return func(o *options) { o.rk4 = true }
}

// NewProcess composes the ordered blocks into one process model with
// sample time dt and the given input dimension, registering the stacked
// state/input/noise symbols with the session under the process name.
//
// It returns UnsupportedManifoldError for an unknown block kind,
// DuplicateSymbolError if the process name collides within the session
// and IncompatibleDimensionError if a block's dynamics expression does
// not match its tangent dimension.
func NewProcess(sess *symbolic.Session, name string, dt float64, inputDim int, blocks []Block, opts ...Option) (*Process, error) {
	if name == "" {
		return nil, fmt.Errorf("model: empty process name")
	}
	if dt <= 0 {
		return nil, fmt.Errorf("model: invalid sample time %v", dt)
	}
	if inputDim < 0 {
		return nil, fmt.Errorf("model: invalid input dimension %d", inputDim)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("model: process %q has no blocks", name)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	infos := make([]BlockInfo, len(blocks))
	seen := make(map[string]bool)
	stateDim, tangentDim, noiseDim := 0, 0, 0
	for i, b := range blocks {
		if b.Name == "" {
			return nil, fmt.Errorf("model: process %q block %d has no name", name, i)
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("model: process %q has duplicate block %q", name, b.Name)
		}
		seen[b.Name] = true

		g, err := lie.For(b.Kind, b.Dim)
		if err != nil {
			return nil, err
		}
		if b.NoiseDim != 0 && b.NoiseDim != g.TangentDim() {
			return nil, &symbolic.IncompatibleDimensionError{
				Op: fmt.Sprintf("block %q noise", b.Name), Want: g.TangentDim(), Got: b.NoiseDim,
			}
		}
		if o.rk4 && g.Kind() != lie.Euclidean {
			return nil, fmt.Errorf("model: RK4 integration requires Euclidean state, block %q is %s", b.Name, g.Kind())
		}

		infos[i] = BlockInfo{
			Name:       b.Name,
			Group:      g,
			StateOff:   stateDim,
			StateDim:   g.Dim(),
			TangentOff: tangentDim,
			TangentDim: g.TangentDim(),
			NoiseOff:   noiseDim,
			NoiseDim:   b.NoiseDim,
		}
		stateDim += g.Dim()
		tangentDim += g.TangentDim()
		noiseDim += b.NoiseDim
	}

	x, err := sess.Declare(name+".x", stateDim, symbolic.DomainState)
	if err != nil {
		return nil, err
	}
	var u *symbolic.Symbol
	if inputDim > 0 {
		if u, err = sess.Declare(name+".u", inputDim, symbolic.DomainInput); err != nil {
			return nil, err
		}
	}
	var w *symbolic.Symbol
	if noiseDim > 0 {
		if w, err = sess.Declare(name+".w", noiseDim, symbolic.DomainNoise); err != nil {
			return nil, err
		}
	}

	p := &Process{
		name:   name,
		dt:     dt,
		blocks: infos,
		x:      x,
		u:      u,
		w:      w,
		sess:   sess,
	}

	vels := make([]symbolic.Vector, len(blocks))
	for i, b := range blocks {
		info := infos[i]
		vel := symbolic.ZeroVector(info.TangentDim)
		if b.Dynamics != nil {
			v, err := b.Dynamics(p.blockArgs(info))
			if err != nil {
				return nil, fmt.Errorf("model: block %q dynamics: %w", b.Name, err)
			}
			if len(v) != info.TangentDim {
				return nil, &symbolic.IncompatibleDimensionError{
					Op: fmt.Sprintf("block %q dynamics", b.Name), Want: info.TangentDim, Got: len(v),
				}
			}
			vel = v
		}
		vels[i] = vel
	}

	f, err := p.integrate(vels, o.rk4)
	if err != nil {
		return nil, err
	}
	p.f = f.Simplify()

	if err := p.checkBound(p.f, nil); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Process) blockArgs(info BlockInfo) BlockArgs {
	a := BlockArgs{
		X:     p.x.Vector()[info.StateOff : info.StateOff+info.StateDim],
		Block: p.BlockState,
	}
	if p.u != nil {
		a.U = p.u.Vector()
	}
	return a
}

// integrate turns block tangent velocities into the discrete next-state
// expression. The default step retracts each block along its scaled
// velocity plus tangent noise: x' = x o Exp(dt*v + w).
func (p *Process) integrate(vels []symbolic.Vector, rk4 bool) (symbolic.Vector, error) {
	if rk4 {
		return p.integrateRK4(vels)
	}

	dt := symbolic.Const(p.dt)
	parts := make([]symbolic.Vector, len(p.blocks))
	for i, info := range p.blocks {
		delta := vels[i].Scale(dt)
		if info.NoiseDim > 0 {
			wb := p.w.Vector()[info.NoiseOff : info.NoiseOff+info.NoiseDim]
			d, err := delta.Add(wb)
			if err != nil {
				return nil, err
			}
			delta = d
		}

		step, err := info.Group.Exp(delta)
		if err != nil {
			return nil, err
		}
		xb := p.x.Vector()[info.StateOff : info.StateOff+info.StateDim]
		next, err := info.Group.Compose(xb, step)
		if err != nil {
			return nil, err
		}
		parts[i] = next
	}

	return symbolic.Concat(parts...), nil
}

// integrateRK4 integrates the stacked Euclidean velocity field with a
// classic RK4 step and adds the stacked tangent noise afterwards.
func (p *Process) integrateRK4(vels []symbolic.Vector) (symbolic.Vector, error) {
	xdot := symbolic.Concat(vels...)

	shift := func(k symbolic.Vector, h float64) (symbolic.Vector, error) {
		xs, err := p.x.Vector().Add(k.Scale(symbolic.Const(h)))
		if err != nil {
			return nil, err
		}
		return xdot.Substitute(p.x, xs)
	}

	k1 := xdot
	k2, err := shift(k1, p.dt/2)
	if err != nil {
		return nil, err
	}
	k3, err := shift(k2, p.dt/2)
	if err != nil {
		return nil, err
	}
	k4, err := shift(k3, p.dt)
	if err != nil {
		return nil, err
	}

	sum := k1
	for _, k := range []symbolic.Vector{k2.Scale(symbolic.Const(2)), k3.Scale(symbolic.Const(2)), k4} {
		if sum, err = sum.Add(k); err != nil {
			return nil, err
		}
	}

	next, err := p.x.Vector().Add(sum.Scale(symbolic.Const(p.dt / 6)))
	if err != nil {
		return nil, err
	}

	if p.w != nil {
		noise := symbolic.ZeroVector(p.x.Dim())
		for _, info := range p.blocks {
			for i := 0; i < info.NoiseDim; i++ {
				noise[info.StateOff+i] = p.w.At(info.NoiseOff + i)
			}
		}
		if next, err = next.Add(noise); err != nil {
			return nil, err
		}
	}

	return next, nil
}

// checkBound verifies that every free symbol of the given expressions is
// owned by the process (state, input, noise, the extra allowed symbols,
// or a session parameter). Parameters are collected as they are seen.
func (p *Process) checkBound(exprs symbolic.Vector, extra []*symbolic.Symbol) error {
	allowed := map[*symbolic.Symbol]bool{p.x: true}
	if p.u != nil {
		allowed[p.u] = true
	}
	if p.w != nil {
		allowed[p.w] = true
	}
	for _, s := range extra {
		allowed[s] = true
	}

	known := make(map[*symbolic.Symbol]bool)
	for _, s := range p.params {
		known[s] = true
	}

	for _, s := range symbolic.FreeSymbols(exprs...) {
		if allowed[s] || known[s] {
			continue
		}
		if s.Domain() == symbolic.DomainParam && p.sess.Lookup(s.Name()) == s {
			p.params = append(p.params, s)
			known[s] = true
			continue
		}
		return &UnboundSymbolError{Name: s.Name()}
	}

	return nil
}

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// Dt returns the process sample time.
func (p *Process) Dt() float64 { return p.dt }

// StateDim returns the stacked state parameter dimension.
func (p *Process) StateDim() int { return p.x.Dim() }

// TangentDim returns the stacked tangent (error-state) dimension.
func (p *Process) TangentDim() int {
	n := 0
	for _, b := range p.blocks {
		n += b.TangentDim
	}
	return n
}

// NoiseDim returns the stacked process noise dimension.
func (p *Process) NoiseDim() int {
	if p.w == nil {
		return 0
	}
	return p.w.Dim()
}

// InputDim returns the input dimension.
func (p *Process) InputDim() int {
	if p.u == nil {
		return 0
	}
	return p.u.Dim()
}

// State returns the stacked state symbol.
func (p *Process) State() *symbolic.Symbol { return p.x }

// Input returns the input symbol, or nil if the model has no inputs.
func (p *Process) Input() *symbolic.Symbol { return p.u }

// NoiseSym returns the stacked process noise symbol, or nil.
func (p *Process) NoiseSym() *symbolic.Symbol { return p.w }

// Params returns the session parameter symbols the model references.
func (p *Process) Params() []*symbolic.Symbol {
	out := make([]*symbolic.Symbol, len(p.params))
	copy(out, p.params)
	return out
}

// Transition returns the next-state expression vector over the process
// symbols. Its length always equals StateDim.
func (p *Process) Transition() symbolic.Vector {
	out := make(symbolic.Vector, len(p.f))
	copy(out, p.f)
	return out
}

// Blocks returns the block placement table in composition order.
func (p *Process) Blocks() []BlockInfo {
	out := make([]BlockInfo, len(p.blocks))
	copy(out, p.blocks)
	return out
}

// BlockState resolves a block's state parameter vector by name.
// It returns UnboundSymbolError for names the process does not own.
func (p *Process) BlockState(name string) (symbolic.Vector, error) {
	for _, b := range p.blocks {
		if b.Name == name {
			return p.x.Vector()[b.StateOff : b.StateOff+b.StateDim], nil
		}
	}
	return nil, &UnboundSymbolError{Name: name}
}

// Identity returns the structural hash of the transition expression.
// Two processes with identical blocks in identical order share it;
// reordering blocks changes it.
func (p *Process) Identity() uint64 {
	return p.f.Hash()
}
