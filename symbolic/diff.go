package symbolic

// Diff returns the partial derivative of e with respect to the i-th
// element of symbol s. The result is canonical (simplified) and shares
// subexpression nodes with e. Diff is free of side effects.
func Diff(e *Expr, s *Symbol, i int) *Expr {
	d := &differ{sym: s, idx: i, memo: make(map[*Expr]*Expr)}
	return d.diff(e)
}

type differ struct {
	sym  *Symbol
	idx  int
	memo map[*Expr]*Expr
}

func (d *differ) diff(e *Expr) *Expr {
	if de, ok := d.memo[e]; ok {
		return de
	}

	var de *Expr
	switch e.op {
	case opConst:
		de = zero
	case opVar:
		if e.sym == d.sym && e.idx == d.idx {
			de = one
		} else {
			de = zero
		}
	case opAdd:
		terms := make([]*Expr, len(e.args))
		for i, a := range e.args {
			terms[i] = d.diff(a)
		}
		de = Add(terms...)
	case opMul:
		// product rule over the n-ary factor list
		terms := make([]*Expr, 0, len(e.args))
		for i := range e.args {
			da := d.diff(e.args[i])
			if da == zero {
				continue
			}
			rest := make([]*Expr, 0, len(e.args))
			rest = append(rest, da)
			for j, a := range e.args {
				if j != i {
					rest = append(rest, a)
				}
			}
			terms = append(terms, Mul(rest...))
		}
		de = Add(terms...)
	case opPow:
		// d(b^p) = p * b^(p-1) * db
		base := e.args[0]
		de = Mul(Const(e.val), Pow(base, e.val-1), d.diff(base))
	case opSin:
		de = Mul(Cos(e.args[0]), d.diff(e.args[0]))
	case opCos:
		de = Mul(Const(-1), Sin(e.args[0]), d.diff(e.args[0]))
	case opTan:
		// d(tan u) = (1 + tan^2 u) du
		de = Mul(Add(one, Pow(Tan(e.args[0]), 2)), d.diff(e.args[0]))
	}

	d.memo[e] = de
	return de
}

// Jacobian returns the matrix of partial derivatives of the vector
// expression f with respect to all elements of symbol s: the result has
// len(f) rows and s.Dim() columns.
func Jacobian(f Vector, s *Symbol) Matrix {
	m := make(Matrix, len(f))
	for r, e := range f {
		d := &differ{sym: s, memo: make(map[*Expr]*Expr)}
		m[r] = make(Vector, s.dim)
		for c := 0; c < s.dim; c++ {
			d.idx = c
			d.memo = make(map[*Expr]*Expr)
			m[r][c] = d.diff(e)
		}
	}
	return m
}
