package symbolic

// Substitute replaces every element of symbol s in e with the
// corresponding expression from vals and returns the canonicalized
// result. It returns IncompatibleDimensionError if len(vals) does not
// match the symbol dimension.
func Substitute(e *Expr, s *Symbol, vals Vector) (*Expr, error) {
	if len(vals) != s.dim {
		return nil, &IncompatibleDimensionError{Op: "substitute " + s.name, Want: s.dim, Got: len(vals)}
	}
	sub := &subst{sym: s, vals: vals, memo: make(map[*Expr]*Expr)}
	return sub.apply(e), nil
}

// SubstituteZero replaces every element of the given symbols with zero.
func SubstituteZero(e *Expr, syms ...*Symbol) *Expr {
	for _, s := range syms {
		sub := &subst{sym: s, vals: ZeroVector(s.dim), memo: make(map[*Expr]*Expr)}
		e = sub.apply(e)
	}
	return e
}

type subst struct {
	sym  *Symbol
	vals Vector
	memo map[*Expr]*Expr
}

func (s *subst) apply(e *Expr) *Expr {
	if se, ok := s.memo[e]; ok {
		return se
	}

	var se *Expr
	switch e.op {
	case opConst:
		se = e
	case opVar:
		if e.sym == s.sym {
			se = s.vals[e.idx]
		} else {
			se = e
		}
	case opAdd:
		se = Add(s.applyAll(e.args)...)
	case opMul:
		se = Mul(s.applyAll(e.args)...)
	case opPow:
		se = Pow(s.apply(e.args[0]), e.val)
	case opSin:
		se = Sin(s.apply(e.args[0]))
	case opCos:
		se = Cos(s.apply(e.args[0]))
	case opTan:
		se = Tan(s.apply(e.args[0]))
	}

	s.memo[e] = se
	return se
}

func (s *subst) applyAll(args []*Expr) []*Expr {
	out := make([]*Expr, len(args))
	for i, a := range args {
		out[i] = s.apply(a)
	}
	return out
}
