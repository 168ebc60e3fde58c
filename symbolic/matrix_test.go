package symbolic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorOps(t *testing.T) {
	assert := assert.New(t)

	_, x, y := setup(t)
	xv, yv := x.Vector(), y.Vector()

	sum, err := xv.Add(yv)
	assert.NoError(err)
	assert.Len(sum, 3)
	assert.True(sum[0].Equal(Add(x.At(0), y.At(0))))

	diff, err := xv.Sub(xv)
	assert.NoError(err)
	for _, e := range diff {
		assert.Equal(Const(0), e)
	}

	_, err = xv.Add(yv[:2])
	var dimErr *IncompatibleDimensionError
	assert.ErrorAs(err, &dimErr)

	scaled := xv.Scale(Const(2))
	assert.True(scaled[1].Equal(Mul(Const(2), x.At(1))))

	dot, err := xv.Dot(yv)
	assert.NoError(err)
	assert.True(dot.Equal(Add(Mul(x.At(0), y.At(0)), Mul(x.At(1), y.At(1)), Mul(x.At(2), y.At(2)))))

	cat := Concat(xv[:1], yv[:2])
	assert.Len(cat, 3)
	assert.True(cat[1].Equal(y.At(0)))
}

func TestMatrixOps(t *testing.T) {
	assert := assert.New(t)

	_, x, _ := setup(t)
	a, b := x.At(0), x.At(1)

	m := Matrix{
		{a, b},
		{Const(0), Const(1)},
	}

	r, c := m.Dims()
	assert.Equal(2, r)
	assert.Equal(2, c)

	mt := m.T()
	assert.True(mt[0][1].Equal(Const(0)))
	assert.True(mt[1][0].Equal(b))

	// M * I = M
	prod, err := m.Mul(Identity(2))
	assert.NoError(err)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.True(prod[i][j].Equal(m[i][j]))
		}
	}

	_, err = m.Mul(NewMatrix(3, 2))
	var dimErr *IncompatibleDimensionError
	assert.ErrorAs(err, &dimErr)

	v, err := m.MulVec(Vector{Const(1), Const(2)})
	assert.NoError(err)
	assert.True(v[0].Equal(Add(a, Mul(Const(2), b))))
	assert.True(v[1].Equal(Const(2)))

	sum, err := m.Add(m)
	assert.NoError(err)
	assert.True(sum[0][0].Equal(Mul(Const(2), a)))
}

func TestMatrixHash(t *testing.T) {
	assert := assert.New(t)

	_, x, _ := setup(t)
	a := x.At(0)

	m1 := Matrix{{a, Const(1)}}
	m2 := Matrix{{a, Const(1)}}
	assert.Equal(m1.Hash(), m2.Hash())

	// shape participates in the hash
	flat := Matrix{{a}, {Const(1)}}
	assert.NotEqual(m1.Hash(), flat.Hash())
}

func TestBlockDiag(t *testing.T) {
	assert := assert.New(t)

	_, x, _ := setup(t)
	a := x.At(0)

	m := BlockDiag(Matrix{{a}}, Identity(2))
	r, c := m.Dims()
	assert.Equal(3, r)
	assert.Equal(3, c)
	assert.True(m[0][0].Equal(a))
	assert.Equal(Const(1), m[1][1])
	assert.Equal(Const(1), m[2][2])
	assert.Equal(Const(0), m[0][1])
	assert.Equal(Const(0), m[2][0])
}
