package compile

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/goecca/ecca/symbolic"
)

type cacheKey struct {
	expr uint64
	sig  uint64
}

type cacheEntry struct {
	once sync.Once
	fn   *Func
	err  error
}

// registry is the process-wide compiled function cache. Entries are
// populated lazily and never evicted: the number of distinct keys is
// bounded by the finite set of filter specifications a process derives.
var registry = struct {
	sync.Mutex
	m map[cacheKey]*cacheEntry
}{m: make(map[cacheKey]*cacheEntry)}

func sigHash(sig Signature) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, s := range sig {
		h.Write([]byte(s.Name()))
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Dim()))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Compile lowers the expression matrix to a numeric function with the
// given ordered input signature and returns it. Results are memoized in
// the process-wide cache keyed by the structural hash of the expression
// and the signature: compiling the same canonical expression twice
// returns the same function. Population of a given key runs exactly
// once; concurrent callers of a cached key share the result.
func Compile(m symbolic.Matrix, sig Signature) (*Func, error) {
	key := cacheKey{expr: m.Hash(), sig: sigHash(sig)}

	registry.Lock()
	e, ok := registry.m[key]
	if !ok {
		e = &cacheEntry{}
		registry.m[key] = e
	}
	registry.Unlock()

	e.once.Do(func() {
		e.fn, e.err = build(m, sig)
	})

	return e.fn, e.err
}

// CompileVector lowers a column vector expression; the compiled function
// output has one column.
func CompileVector(v symbolic.Vector, sig Signature) (*Func, error) {
	m := make(symbolic.Matrix, len(v))
	for i, e := range v {
		m[i] = symbolic.Vector{e}
	}
	return Compile(m, sig)
}
