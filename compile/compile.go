// Package compile lowers finalized symbolic expressions into fast
// numeric functions with fixed positional array signatures.
//
// Compilation happens through a process-wide cache keyed by the
// structural hash of the expression and its input signature: functions
// are built lazily on first request, population of a given key is
// serialized, entries are never evicted within the process lifetime and
// the cache is safe for concurrent readers once populated.
//
// Expressions must be in canonical (simplified) form before compilation;
// the canonical operand order fixes the evaluation order of the emitted
// instruction tape, so compiling the same expression twice yields
// functions whose outputs are bit-identical, not merely equivalent up to
// floating point reordering.
package compile

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/goecca/ecca/symbolic"
)

// Signature is the ordered list of input symbols of a compiled function.
// The compiled callable accepts exactly one numeric vector per symbol,
// in this order, each of the symbol's declared dimension.
type Signature []*symbolic.Symbol

// ShapeMismatchError is returned when a compiled function is called with
// inputs that do not match its declared signature. Dimensions are
// enforced at the boundary; nothing is silently broadcast or truncated.
type ShapeMismatchError struct {
	// Arg is the offending argument index, or -1 for an argument
	// count mismatch
	Arg int
	// Want is the expected dimension or argument count
	Want int
	// Got is the actual dimension or argument count
	Got int
}

// Error implements the error interface.
func (e *ShapeMismatchError) Error() string {
	if e.Arg < 0 {
		return fmt.Sprintf("compile: invalid argument count: want %d, got %d", e.Want, e.Got)
	}
	return fmt.Sprintf("compile: invalid dimension of argument %d: want %d, got %d", e.Arg, e.Want, e.Got)
}

type opCode uint8

const (
	opLoadConst opCode = iota
	opLoadInput
	opAdd
	opMul
	opPow
	opSin
	opCos
	opTan
)

type instr struct {
	op   opCode
	dst  int32
	a, b int32
	c    float64
}

// Func is a compiled numeric function. It is immutable after
// construction and safe for concurrent use.
type Func struct {
	prog   []instr
	nreg   int
	inDims []int
	out    []int32
	rows   int
	cols   int
}

// Dims returns the output dimensions of the function.
func (f *Func) Dims() (r, c int) { return f.rows, f.cols }

// NumIn returns the number of input vectors the function accepts.
func (f *Func) NumIn() int { return len(f.inDims) }

// Eval evaluates the function on the given input vectors and returns
// the output matrix. It returns ShapeMismatchError if the argument
// count or any argument dimension does not match the signature.
func (f *Func) Eval(args ...mat.Vector) (*mat.Dense, error) {
	if len(args) != len(f.inDims) {
		return nil, &ShapeMismatchError{Arg: -1, Want: len(f.inDims), Got: len(args)}
	}
	for i, a := range args {
		got := 0
		if a != nil {
			got = a.Len()
		}
		if got != f.inDims[i] {
			return nil, &ShapeMismatchError{Arg: i, Want: f.inDims[i], Got: got}
		}
	}

	regs := make([]float64, f.nreg)
	for _, in := range f.prog {
		switch in.op {
		case opLoadConst:
			regs[in.dst] = in.c
		case opLoadInput:
			regs[in.dst] = args[in.a].AtVec(int(in.b))
		case opAdd:
			regs[in.dst] = regs[in.a] + regs[in.b]
		case opMul:
			regs[in.dst] = regs[in.a] * regs[in.b]
		case opPow:
			regs[in.dst] = math.Pow(regs[in.a], in.c)
		case opSin:
			regs[in.dst] = math.Sin(regs[in.a])
		case opCos:
			regs[in.dst] = math.Cos(regs[in.a])
		case opTan:
			regs[in.dst] = math.Tan(regs[in.a])
		}
	}

	data := make([]float64, len(f.out))
	for i, r := range f.out {
		data[i] = regs[r]
	}

	return mat.NewDense(f.rows, f.cols, data), nil
}

// EvalVec evaluates a single-column function and returns the output as
// a vector. It returns an error if the function output is not a single
// column.
func (f *Func) EvalVec(args ...mat.Vector) (*mat.VecDense, error) {
	if f.cols != 1 {
		return nil, fmt.Errorf("compile: function output is [%d x %d], not a vector", f.rows, f.cols)
	}
	out, err := f.Eval(args...)
	if err != nil {
		return nil, err
	}
	v := mat.NewVecDense(f.rows, nil)
	v.CopyVec(out.ColView(0))

	return v, nil
}

type builder struct {
	prog   []instr
	nreg   int32
	cse    map[uint64][]cseEntry
	inputs map[*symbolic.Symbol]int32
}

type cseEntry struct {
	e   *symbolic.Expr
	reg int32
}

func build(m symbolic.Matrix, sig Signature) (*Func, error) {
	rows, cols := m.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("compile: empty expression matrix")
	}

	b := &builder{
		cse:    make(map[uint64][]cseEntry),
		inputs: make(map[*symbolic.Symbol]int32),
	}
	inDims := make([]int, len(sig))
	for i, s := range sig {
		if s == nil {
			return nil, fmt.Errorf("compile: nil symbol in input signature")
		}
		if _, ok := b.inputs[s]; ok {
			return nil, fmt.Errorf("compile: symbol %q repeated in input signature", s.Name())
		}
		b.inputs[s] = int32(i)
		inDims[i] = s.Dim()
	}

	for _, e := range symbolic.FreeSymbols(flatten(m)...) {
		if _, ok := b.inputs[e]; !ok {
			return nil, fmt.Errorf("compile: expression references symbol %q missing from input signature", e.Name())
		}
	}

	out := make([]int32, 0, rows*cols)
	for _, row := range m {
		for _, e := range row {
			r, err := b.emit(e)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}

	return &Func{
		prog:   b.prog,
		nreg:   int(b.nreg),
		inDims: inDims,
		out:    out,
		rows:   rows,
		cols:   cols,
	}, nil
}

func flatten(m symbolic.Matrix) []*symbolic.Expr {
	var out []*symbolic.Expr
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}

func (b *builder) emit(e *symbolic.Expr) (int32, error) {
	for _, c := range b.cse[e.Hash()] {
		if c.e.Equal(e) {
			return c.reg, nil
		}
	}

	reg, err := b.emitNew(e)
	if err != nil {
		return 0, err
	}
	b.cse[e.Hash()] = append(b.cse[e.Hash()], cseEntry{e: e, reg: reg})

	return reg, nil
}

func (b *builder) alloc() int32 {
	r := b.nreg
	b.nreg++
	return r
}

func (b *builder) emitNew(e *symbolic.Expr) (int32, error) {
	if v, ok := e.IsConst(); ok {
		dst := b.alloc()
		b.prog = append(b.prog, instr{op: opLoadConst, dst: dst, c: v})
		return dst, nil
	}

	kind, c, sym, idx, args := symbolic.Decompose(e)
	switch kind {
	case symbolic.NodeVar:
		in, ok := b.inputs[sym]
		if !ok {
			return 0, fmt.Errorf("compile: expression references symbol %q missing from input signature", sym.Name())
		}
		dst := b.alloc()
		b.prog = append(b.prog, instr{op: opLoadInput, dst: dst, a: in, b: int32(idx)})
		return dst, nil
	case symbolic.NodeAdd, symbolic.NodeMul:
		op := opAdd
		if kind == symbolic.NodeMul {
			op = opMul
		}
		// fold the n-ary operand list in canonical order so replays
		// of the same expression evaluate identically
		acc, err := b.emit(args[0])
		if err != nil {
			return 0, err
		}
		for _, a := range args[1:] {
			r, err := b.emit(a)
			if err != nil {
				return 0, err
			}
			dst := b.alloc()
			b.prog = append(b.prog, instr{op: op, dst: dst, a: acc, b: r})
			acc = dst
		}
		return acc, nil
	case symbolic.NodePow:
		base, err := b.emit(args[0])
		if err != nil {
			return 0, err
		}
		dst := b.alloc()
		b.prog = append(b.prog, instr{op: opPow, dst: dst, a: base, c: c})
		return dst, nil
	case symbolic.NodeSin, symbolic.NodeCos, symbolic.NodeTan:
		arg, err := b.emit(args[0])
		if err != nil {
			return 0, err
		}
		op := opSin
		switch kind {
		case symbolic.NodeCos:
			op = opCos
		case symbolic.NodeTan:
			op = opTan
		}
		dst := b.alloc()
		b.prog = append(b.prog, instr{op: op, dst: dst, a: arg})
		return dst, nil
	}

	return 0, fmt.Errorf("compile: unsupported expression node")
}
