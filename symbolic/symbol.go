// Package symbolic implements the expression algebra the estimator
// derivation is built on: session-scoped symbol declaration, immutable
// expression DAGs with canonical deterministic simplification, partial
// differentiation and substitution, and expression vectors/matrices.
//
// Expressions are immutable and safely shared by reference: derived
// artifacts such as Jacobians share subexpression nodes with the models
// they were derived from. Every node carries a structural hash which is
// used both for canonical term ordering and as a compilation cache key.
package symbolic

import "fmt"

// Domain tags the role a declared symbol plays in a model.
type Domain int

const (
	// DomainState marks state variables
	DomainState Domain = iota
	// DomainInput marks control input variables
	DomainInput
	// DomainNoise marks process/measurement noise variables
	DomainNoise
	// DomainParam marks static model parameters
	DomainParam
)

// String implements the Stringer interface.
func (d Domain) String() string {
	switch d {
	case DomainState:
		return "state"
	case DomainInput:
		return "input"
	case DomainNoise:
		return "noise"
	case DomainParam:
		return "param"
	}
	return "unknown"
}

// Symbol is a named vector-valued algebraic unknown.
// Symbols are immutable once declared; they are created through
// Session.Declare which guarantees name uniqueness within one session.
type Symbol struct {
	name   string
	dim    int
	domain Domain
}

// Name returns the symbol name.
func (s *Symbol) Name() string { return s.name }

// Dim returns the symbol dimension.
func (s *Symbol) Dim() int { return s.dim }

// Domain returns the symbol domain tag.
func (s *Symbol) Domain() Domain { return s.domain }

// At returns the expression for the i-th element of the symbol.
// It panics if i is out of range, in line with gonum's index handling.
func (s *Symbol) At(i int) *Expr {
	if i < 0 || i >= s.dim {
		panic(fmt.Sprintf("symbolic: index %d out of range for symbol %s[%d]", i, s.name, s.dim))
	}
	return newVar(s, i)
}

// Vector returns all elements of the symbol as an expression vector.
func (s *Symbol) Vector() Vector {
	v := make(Vector, s.dim)
	for i := 0; i < s.dim; i++ {
		v[i] = s.At(i)
	}
	return v
}

// Session owns the symbol table of one model-build session.
// It is the only mutable object in the package; all expression
// operations are free of side effects.
type Session struct {
	symbols map[string]*Symbol
}

// NewSession creates a new empty session and returns it.
func NewSession() *Session {
	return &Session{symbols: make(map[string]*Symbol)}
}

// Declare registers a new symbol with the given name, dimension and
// domain and returns it. It returns DuplicateSymbolError if a symbol of
// the same name is already registered with the session, and an error if
// the dimension is not positive.
func (ss *Session) Declare(name string, dim int, domain Domain) (*Symbol, error) {
	if name == "" {
		return nil, fmt.Errorf("symbolic: empty symbol name")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("symbolic: invalid dimension %d for symbol %s", dim, name)
	}
	if _, ok := ss.symbols[name]; ok {
		return nil, &DuplicateSymbolError{Name: name}
	}

	s := &Symbol{name: name, dim: dim, domain: domain}
	ss.symbols[name] = s

	return s, nil
}

// Lookup returns the symbol registered under name, or nil if there is none.
func (ss *Session) Lookup(name string) *Symbol {
	return ss.symbols[name]
}

// Scratch creates a symbol that is not registered with any session.
// It is meant for derivation intermediates, such as tangent-space
// perturbation variables, which are substituted away before any
// expression leaves the deriving code.
func Scratch(name string, dim int) *Symbol {
	if dim <= 0 {
		panic(fmt.Sprintf("symbolic: invalid scratch dimension %d", dim))
	}
	return &Symbol{name: name, dim: dim, domain: DomainState}
}

// DuplicateSymbolError is returned when a symbol name collides with one
// already declared in the session.
type DuplicateSymbolError struct {
	// Name is the colliding symbol name
	Name string
}

// Error implements the error interface.
func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("symbolic: symbol %q already declared in session", e.Name)
}
