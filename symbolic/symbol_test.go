package symbolic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeclare(t *testing.T) {
	assert := assert.New(t)

	sess := NewSession()

	x, err := sess.Declare("x", 3, DomainState)
	assert.NotNil(x)
	assert.NoError(err)
	assert.Equal("x", x.Name())
	assert.Equal(3, x.Dim())
	assert.Equal(DomainState, x.Domain())

	// redeclaring the same name fails
	dup, err := sess.Declare("x", 2, DomainInput)
	assert.Nil(dup)
	var dupErr *DuplicateSymbolError
	assert.True(errors.As(err, &dupErr))
	assert.Equal("x", dupErr.Name)

	// the original symbol survives the collision
	assert.Equal(x, sess.Lookup("x"))
	assert.Nil(sess.Lookup("y"))

	_, err = sess.Declare("", 1, DomainState)
	assert.Error(err)
	_, err = sess.Declare("y", 0, DomainState)
	assert.Error(err)
}

func TestSymbolAt(t *testing.T) {
	assert := assert.New(t)

	sess := NewSession()
	x, err := sess.Declare("x", 2, DomainState)
	assert.NoError(err)

	e := x.At(1)
	assert.NotNil(e)
	assert.Equal("x[1]", e.String())

	assert.Panics(func() { x.At(2) })
	assert.Panics(func() { x.At(-1) })

	v := x.Vector()
	assert.Len(v, 2)
	assert.True(v[0].Equal(x.At(0)))
}

func TestSessionsIndependent(t *testing.T) {
	assert := assert.New(t)

	s1 := NewSession()
	s2 := NewSession()

	x1, err := s1.Declare("x", 2, DomainState)
	assert.NoError(err)
	x2, err := s2.Declare("x", 2, DomainState)
	assert.NoError(err)

	// same name in different sessions yields distinct symbols with
	// structurally equal expressions
	assert.False(x1 == x2)
	assert.True(x1.At(0).Equal(x2.At(0)))
	assert.Equal(x1.At(0).Hash(), x2.At(0).Hash())
}

func TestScratch(t *testing.T) {
	assert := assert.New(t)

	s := Scratch("tmp", 3)
	assert.NotNil(s)
	assert.Equal(3, s.Dim())

	// scratch symbols are not session-registered
	sess := NewSession()
	assert.Nil(sess.Lookup("tmp"))

	assert.Panics(func() { Scratch("bad", 0) })
}

func TestDomainString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("state", DomainState.String())
	assert.Equal("input", DomainInput.String())
	assert.Equal("noise", DomainNoise.String())
	assert.Equal("param", DomainParam.String())
}
