package symbolic

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"
)

type opKind uint8

const (
	opConst opKind = iota
	opVar
	opAdd
	opMul
	opPow
	opSin
	opCos
	opTan
)

// Expr is an immutable scalar expression node. Expressions form acyclic
// DAGs: nodes are shared by reference and never mutated after
// construction. All constructors produce canonical forms, so Simplify is
// idempotent and structurally equal expressions hash equally.
type Expr struct {
	op   opKind
	val  float64 // constant value for opConst, exponent for opPow
	sym  *Symbol
	idx  int
	args []*Expr
	hash uint64
}

// Hash returns the structural hash of the expression. Two expressions
// with equal canonical structure (including symbol names and dimensions)
// hash equally; the hash is the compilation cache key component.
func (e *Expr) Hash() uint64 { return e.hash }

// IsConst reports whether the expression is a numeric constant and
// returns its value.
func (e *Expr) IsConst() (float64, bool) {
	if e.op == opConst {
		return e.val, true
	}
	return 0, false
}

// Equal reports whether e and o are structurally equal.
func (e *Expr) Equal(o *Expr) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil || e.op != o.op || e.hash != o.hash {
		return false
	}
	switch e.op {
	case opConst:
		return e.val == o.val
	case opVar:
		return e.sym == o.sym && e.idx == o.idx
	case opPow:
		if e.val != o.val {
			return false
		}
	}
	if len(e.args) != len(o.args) {
		return false
	}
	for i := range e.args {
		if !e.args[i].Equal(o.args[i]) {
			return false
		}
	}
	return true
}

// String implements the Stringer interface. The rendering is
// deterministic and doubles as the tie-breaker for canonical ordering.
func (e *Expr) String() string {
	switch e.op {
	case opConst:
		return strconv.FormatFloat(e.val, 'g', -1, 64)
	case opVar:
		if e.sym.dim == 1 {
			return e.sym.name
		}
		return fmt.Sprintf("%s[%d]", e.sym.name, e.idx)
	case opAdd, opMul:
		sep := " + "
		if e.op == opMul {
			sep = "*"
		}
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			parts[i] = a.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	case opPow:
		return fmt.Sprintf("pow(%s, %s)", e.args[0], strconv.FormatFloat(e.val, 'g', -1, 64))
	case opSin:
		return fmt.Sprintf("sin(%s)", e.args[0])
	case opCos:
		return fmt.Sprintf("cos(%s)", e.args[0])
	case opTan:
		return fmt.Sprintf("tan(%s)", e.args[0])
	}
	return "?"
}

func hashNode(op opKind, val float64, sym *Symbol, idx int, args []*Expr) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	buf[0] = byte(op)
	h.Write(buf[:1])
	switch op {
	case opConst, opPow:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(val))
		h.Write(buf[:])
	case opVar:
		h.Write([]byte(sym.name))
		binary.LittleEndian.PutUint64(buf[:], uint64(sym.dim))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(idx))
		h.Write(buf[:])
	}
	for _, a := range args {
		binary.LittleEndian.PutUint64(buf[:], a.hash)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func newNode(op opKind, val float64, sym *Symbol, idx int, args []*Expr) *Expr {
	return &Expr{op: op, val: val, sym: sym, idx: idx, args: args,
		hash: hashNode(op, val, sym, idx, args)}
}

var (
	zero = newNode(opConst, 0, nil, 0, nil)
	one  = newNode(opConst, 1, nil, 0, nil)
)

// Const returns a constant expression.
func Const(v float64) *Expr {
	switch v {
	case 0:
		return zero
	case 1:
		return one
	}
	return newNode(opConst, v, nil, 0, nil)
}

func newVar(s *Symbol, i int) *Expr {
	return newNode(opVar, 0, s, i, nil)
}

// exprLess is the canonical ordering used for n-ary operand lists:
// primarily by structural hash, with the deterministic string rendering
// breaking the rare hash ties.
func exprLess(a, b *Expr) bool {
	if a.hash != b.hash {
		return a.hash < b.hash
	}
	return a.String() < b.String()
}

// Add returns the canonical sum of the given terms: nested sums are
// flattened, constants folded, like terms collected and the result
// ordered canonically.
func Add(terms ...*Expr) *Expr {
	c := 0.0
	type group struct {
		coeff float64
		rest  *Expr
	}
	groups := make(map[uint64][]*group)
	order := []*group{}

	var absorb func(e *Expr)
	absorb = func(e *Expr) {
		switch e.op {
		case opConst:
			c += e.val
			return
		case opAdd:
			for _, a := range e.args {
				absorb(a)
			}
			return
		}
		coeff, rest := splitCoeff(e)
		for _, g := range groups[rest.hash] {
			if g.rest.Equal(rest) {
				g.coeff += coeff
				return
			}
		}
		g := &group{coeff: coeff, rest: rest}
		groups[rest.hash] = append(groups[rest.hash], g)
		order = append(order, g)
	}
	for _, t := range terms {
		absorb(t)
	}

	out := make([]*Expr, 0, len(order)+1)
	for _, g := range order {
		if g.coeff == 0 {
			continue
		}
		if g.coeff == 1 {
			out = append(out, g.rest)
			continue
		}
		out = append(out, Mul(Const(g.coeff), g.rest))
	}
	sort.Slice(out, func(i, j int) bool { return exprLess(out[i], out[j]) })
	if c != 0 {
		out = append([]*Expr{Const(c)}, out...)
	}

	switch len(out) {
	case 0:
		return zero
	case 1:
		return out[0]
	}
	return newNode(opAdd, 0, nil, 0, out)
}

// splitCoeff splits a non-constant canonical term into its numeric
// coefficient and the remaining factor.
func splitCoeff(e *Expr) (float64, *Expr) {
	if e.op != opMul {
		return 1, e
	}
	if v, ok := e.args[0].IsConst(); ok {
		rest := e.args[1:]
		if len(rest) == 1 {
			return v, rest[0]
		}
		return v, newNode(opMul, 0, nil, 0, rest)
	}
	return 1, e
}

// Mul returns the canonical product of the given factors: nested
// products are flattened, constants folded, repeated bases merged into
// powers and the result ordered canonically.
func Mul(factors ...*Expr) *Expr {
	c := 1.0
	type group struct {
		exp  float64
		base *Expr
	}
	groups := make(map[uint64][]*group)
	order := []*group{}

	var absorb func(e *Expr)
	absorb = func(e *Expr) {
		switch e.op {
		case opConst:
			c *= e.val
			return
		case opMul:
			for _, a := range e.args {
				absorb(a)
			}
			return
		}
		exp, base := 1.0, e
		if e.op == opPow {
			exp, base = e.val, e.args[0]
		}
		for _, g := range groups[base.hash] {
			if g.base.Equal(base) {
				g.exp += exp
				return
			}
		}
		g := &group{exp: exp, base: base}
		groups[base.hash] = append(groups[base.hash], g)
		order = append(order, g)
	}
	for _, f := range factors {
		absorb(f)
	}

	if c == 0 {
		return zero
	}

	out := make([]*Expr, 0, len(order)+1)
	for _, g := range order {
		if g.exp == 0 {
			continue
		}
		if g.exp == 1 {
			out = append(out, g.base)
			continue
		}
		out = append(out, Pow(g.base, g.exp))
	}
	sort.Slice(out, func(i, j int) bool { return exprLess(out[i], out[j]) })
	if c != 1 {
		out = append([]*Expr{Const(c)}, out...)
	}

	switch len(out) {
	case 0:
		return one
	case 1:
		return out[0]
	}
	return newNode(opMul, 0, nil, 0, out)
}

// Pow returns base raised to the constant power p.
func Pow(base *Expr, p float64) *Expr {
	if p == 0 {
		return one
	}
	if p == 1 {
		return base
	}
	if v, ok := base.IsConst(); ok {
		return Const(math.Pow(v, p))
	}
	// (b^a)^p = b^(a*p) holds for all real b only when p is an integer:
	// (b^2)^0.5 is |b|, not b
	if base.op == opPow && p == math.Trunc(p) {
		return Pow(base.args[0], base.val*p)
	}
	return newNode(opPow, p, nil, 0, []*Expr{base})
}

// Neg returns the negation of e.
func Neg(e *Expr) *Expr { return Mul(Const(-1), e) }

// Sub returns a - b.
func Sub(a, b *Expr) *Expr { return Add(a, Neg(b)) }

// Div returns a / b.
func Div(a, b *Expr) *Expr { return Mul(a, Pow(b, -1)) }

// Sqrt returns the square root of e.
func Sqrt(e *Expr) *Expr { return Pow(e, 0.5) }

// Sin returns the sine of e.
func Sin(e *Expr) *Expr {
	if v, ok := e.IsConst(); ok {
		return Const(math.Sin(v))
	}
	return newNode(opSin, 0, nil, 0, []*Expr{e})
}

// Cos returns the cosine of e.
func Cos(e *Expr) *Expr {
	if v, ok := e.IsConst(); ok {
		return Const(math.Cos(v))
	}
	return newNode(opCos, 0, nil, 0, []*Expr{e})
}

// Tan returns the tangent of e.
func Tan(e *Expr) *Expr {
	if v, ok := e.IsConst(); ok {
		return Const(math.Tan(v))
	}
	return newNode(opTan, 0, nil, 0, []*Expr{e})
}

// Simplify returns the canonical form of e. Constructors already
// canonicalize, so Simplify is idempotent: Simplify(Simplify(e)) is
// structurally equal to Simplify(e). It is pure and deterministic.
func Simplify(e *Expr) *Expr {
	switch e.op {
	case opConst, opVar:
		return e
	case opAdd:
		return Add(simplifyAll(e.args)...)
	case opMul:
		return Mul(simplifyAll(e.args)...)
	case opPow:
		return Pow(Simplify(e.args[0]), e.val)
	case opSin:
		return Sin(Simplify(e.args[0]))
	case opCos:
		return Cos(Simplify(e.args[0]))
	case opTan:
		return Tan(Simplify(e.args[0]))
	}
	return e
}

func simplifyAll(args []*Expr) []*Expr {
	out := make([]*Expr, len(args))
	for i, a := range args {
		out[i] = Simplify(a)
	}
	return out
}

// NodeKind identifies the structural variant of an expression node.
type NodeKind int

const (
	// NodeConst is a numeric constant
	NodeConst NodeKind = iota
	// NodeVar is a symbol element
	NodeVar
	// NodeAdd is an n-ary sum
	NodeAdd
	// NodeMul is an n-ary product
	NodeMul
	// NodePow is a power with constant exponent
	NodePow
	// NodeSin is the sine function
	NodeSin
	// NodeCos is the cosine function
	NodeCos
	// NodeTan is the tangent function
	NodeTan
)

// Decompose exposes the structure of a node for consumers that lower
// expressions, such as the numeric compiler. val holds the constant
// value for NodeConst and the exponent for NodePow; sym and idx identify
// the symbol element for NodeVar. The returned operand slice is shared
// with the node and must not be modified.
func Decompose(e *Expr) (kind NodeKind, val float64, sym *Symbol, idx int, args []*Expr) {
	kinds := [...]NodeKind{
		opConst: NodeConst,
		opVar:   NodeVar,
		opAdd:   NodeAdd,
		opMul:   NodeMul,
		opPow:   NodePow,
		opSin:   NodeSin,
		opCos:   NodeCos,
		opTan:   NodeTan,
	}
	return kinds[e.op], e.val, e.sym, e.idx, e.args
}

// FreeSymbols returns the symbols the expression depends on, sorted by
// name.
func FreeSymbols(exprs ...*Expr) []*Symbol {
	seen := make(map[*Symbol]bool)
	visited := make(map[*Expr]bool)
	var walk func(e *Expr)
	walk = func(e *Expr) {
		if visited[e] {
			return
		}
		visited[e] = true
		if e.op == opVar {
			seen[e.sym] = true
		}
		for _, a := range e.args {
			walk(a)
		}
	}
	for _, e := range exprs {
		walk(e)
	}

	out := make([]*Symbol, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })

	return out
}
