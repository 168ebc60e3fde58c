package rnd

import (
	rand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestWithCovN(t *testing.T) {
	assert := assert.New(t)

	data := []float64{1.0, 0.0, 0.0, 1.0}
	covTest := mat.NewSymDense(2, data)
	covR, _ := covTest.Dims()

	// n must be bigger than 1
	nTest := -3
	res, err := WithCovN(covTest, nTest, nil)
	assert.Error(err)
	assert.Nil(res)

	nTest = 1
	res, err = WithCovN(covTest, nTest, nil)
	assert.NoError(err)
	assert.NotNil(res)

	// 2 samples
	nTest = 2
	res, err = WithCovN(covTest, nTest, nil)
	assert.NoError(err)
	assert.NotNil(res)
	r, c := res.Dims()
	assert.Equal(r, covR)
	assert.Equal(c, nTest)
}

func TestWithCovNSeeded(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{2.0, 0.5, 0.5, 1.0})

	s1, err := WithCovN(cov, 5, rand.New(rand.NewSource(42)))
	assert.NoError(err)
	s2, err := WithCovN(cov, 5, rand.New(rand.NewSource(42)))
	assert.NoError(err)
	assert.True(mat.EqualApprox(s1, s2, 1e-12))
}

func TestWithCov(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	v, err := WithCov(cov, rand.New(rand.NewSource(1)))
	assert.NoError(err)
	assert.NotNil(v)
	assert.Equal(3, v.Len())
}
