package derive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/goecca/ecca/lie"
	"github.com/goecca/ecca/model"
	"github.com/goecca/ecca/symbolic"
)

// pendulum is a planar pendulum: angle integrates rate, rate feels
// gravity through sin(angle) and process noise.
func pendulum(t *testing.T) (*model.Process, *model.Measurement, *symbolic.Symbol) {
	sess := symbolic.NewSession()
	g, err := sess.Declare("g", 1, symbolic.DomainParam)
	if err != nil {
		t.Fatal(err)
	}

	p, err := model.NewProcess(sess, "pend", 0.01, 0, []model.Block{
		{Name: "theta", Kind: lie.Euclidean, Dim: 1, Dynamics: func(a model.BlockArgs) (symbolic.Vector, error) {
			return a.Block("omega")
		}},
		{Name: "omega", Kind: lie.Euclidean, Dim: 1, NoiseDim: 1, Dynamics: func(a model.BlockArgs) (symbolic.Vector, error) {
			th, err := a.Block("theta")
			if err != nil {
				return nil, err
			}
			return symbolic.Vector{symbolic.Mul(symbolic.Neg(g.At(0)), symbolic.Sin(th[0]))}, nil
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	m, err := p.MeasureBlock("angle", "theta")
	if err != nil {
		t.Fatal(err)
	}

	return p, m, g
}

func pendulumSpec(t *testing.T) *FilterSpec {
	p, m, g := pendulum(t)

	q := mat.NewSymDense(1, []float64{0.001})
	r := mat.NewSymDense(1, []float64{0.01})

	return &FilterSpec{
		Name:         "pend",
		Process:      p,
		Measurements: []*model.Measurement{m},
		Q:            q,
		R:            map[string]mat.Symmetric{"angle": r},
		Params:       map[*symbolic.Symbol]float64{g: 9.81},
	}
}

func TestEKF(t *testing.T) {
	assert := assert.New(t)

	spec := pendulumSpec(t)
	d, err := EKF(spec)
	assert.NoError(err)
	assert.NotNil(d)
	assert.Equal(spec, d.Spec())

	// derivation is cached per spec identity
	d2, err := EKF(spec)
	assert.NoError(err)
	assert.True(d == d2)

	assert.Equal([]string{"angle"}, d.Measurements())
	m, err := d.Measurement("angle")
	assert.NoError(err)
	assert.Equal(1, m.Dim)
	_, err = d.Measurement("ghost")
	assert.Error(err)
}

func TestEKFJacobianShapes(t *testing.T) {
	assert := assert.New(t)

	d, err := EKF(pendulumSpec(t))
	assert.NoError(err)

	r, c := d.Predict.Dims()
	assert.Equal(2, r)
	assert.Equal(1, c)
	r, c = d.F.Dims()
	assert.Equal(2, r)
	assert.Equal(2, c)
	r, c = d.G.Dims()
	assert.Equal(2, r)
	assert.Equal(1, c)
	r, c = d.Retract.Dims()
	assert.Equal(2, r)
	assert.Equal(1, c)
	r, c = d.ResetJac.Dims()
	assert.Equal(2, r)
	assert.Equal(2, c)

	m, err := d.Measurement("angle")
	assert.NoError(err)
	r, c = m.H.Dims()
	assert.Equal(1, r)
	assert.Equal(2, c)
	r, c = m.M.Dims()
	assert.Equal(1, r)
	assert.Equal(1, c)
}

func TestSymbolicVsFiniteDifference(t *testing.T) {
	assert := assert.New(t)

	d, err := EKF(pendulumSpec(t))
	assert.NoError(err)

	x0 := []float64{0.7, -0.3}

	// the Euclidean error state coincides with the state, so the
	// symbolic F must match a finite-difference Jacobian of Predict
	fdJac := mat.NewDense(2, 2, nil)
	fd.Jacobian(fdJac, func(y, x []float64) {
		out, err := d.Predict.EvalVec(mat.NewVecDense(len(x), x))
		if err != nil {
			t.Fatal(err)
		}
		copy(y, out.RawVector().Data)
	}, x0, &fd.JacobianSettings{Formula: fd.Central})

	symJac, err := d.F.Eval(mat.NewVecDense(2, x0))
	assert.NoError(err)
	assert.True(mat.EqualApprox(fdJac, symJac, 1e-6))
}

func TestLinearExact(t *testing.T) {
	assert := assert.New(t)

	// a linear model derives the textbook constant Jacobians exactly
	sess := symbolic.NewSession()
	p, err := model.NewProcess(sess, "cv", 0.5, 0, []model.Block{
		{Name: "pos", Kind: lie.Euclidean, Dim: 1, Dynamics: func(a model.BlockArgs) (symbolic.Vector, error) {
			return a.Block("vel")
		}},
		{Name: "vel", Kind: lie.Euclidean, Dim: 1, NoiseDim: 1},
	})
	assert.NoError(err)

	m, err := p.MeasureBlock("gps", "pos")
	assert.NoError(err)

	d, err := EKF(&FilterSpec{
		Name:         "cv",
		Process:      p,
		Measurements: []*model.Measurement{m},
		Q:            mat.NewSymDense(1, []float64{0.1}),
		R:            map[string]mat.Symmetric{"gps": mat.NewSymDense(1, []float64{1})},
	})
	assert.NoError(err)

	x := mat.NewVecDense(2, []float64{3, 2})

	f, err := d.F.Eval(x)
	assert.NoError(err)
	want := mat.NewDense(2, 2, []float64{1, 0.5, 0, 1})
	assert.True(mat.Equal(want, f))

	g, err := d.G.Eval(x)
	assert.NoError(err)
	assert.Equal(0.0, g.At(0, 0))
	assert.Equal(1.0, g.At(1, 0))

	dm, err := d.Measurement("gps")
	assert.NoError(err)
	h, err := dm.H.Eval(x)
	assert.NoError(err)
	assert.Equal(1.0, h.At(0, 0))
	assert.Equal(0.0, h.At(0, 1))

	// predict propagates the constant-velocity state exactly
	xn, err := d.Predict.EvalVec(x)
	assert.NoError(err)
	assert.InDelta(4.0, xn.AtVec(0), 1e-12)
	assert.InDelta(2.0, xn.AtVec(1), 1e-12)

	// retract is plain addition in the Euclidean case
	xr, err := d.Retract.EvalVec(x, mat.NewVecDense(2, []float64{0.1, -0.1}))
	assert.NoError(err)
	assert.InDelta(3.1, xr.AtVec(0), 1e-12)
	assert.InDelta(1.9, xr.AtVec(1), 1e-12)
}

func TestRotationDerivation(t *testing.T) {
	assert := assert.New(t)

	sess := symbolic.NewSession()
	p, err := model.NewProcess(sess, "att", 0.01, 3, []model.Block{
		{Name: "q", Kind: lie.Rotation, NoiseDim: 3, Dynamics: func(a model.BlockArgs) (symbolic.Vector, error) {
			return a.U, nil
		}},
	})
	assert.NoError(err)

	m, err := p.Measure("vec", 3, func(a model.MeasArgs) (symbolic.Vector, error) {
		q, err := a.Block("q")
		if err != nil {
			return nil, err
		}
		r, err := lie.RotationMatrix(q)
		if err != nil {
			return nil, err
		}
		down, err := r.T().MulVec(symbolic.ConstVector([]float64{0, 0, 1}))
		if err != nil {
			return nil, err
		}
		return down.Add(a.V)
	})
	assert.NoError(err)

	q3 := mat.NewSymDense(3, nil)
	r3 := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		q3.SetSym(i, i, 1e-5)
		r3.SetSym(i, i, 1e-2)
	}

	d, err := EKF(&FilterSpec{
		Name:         "att",
		Process:      p,
		Measurements: []*model.Measurement{m},
		Q:            q3,
		R:            map[string]mat.Symmetric{"vec": r3},
	})
	assert.NoError(err)

	// the error state is 3-dimensional for the 4-parameter quaternion
	r, c := d.F.Dims()
	assert.Equal(3, r)
	assert.Equal(3, c)
	r, c = d.Predict.Dims()
	assert.Equal(4, r)
	assert.Equal(1, c)

	// propagating the identity quaternion with zero rates is a no-op
	x := mat.NewVecDense(4, []float64{1, 0, 0, 0})
	u := mat.NewVecDense(3, nil)
	xn, err := d.Predict.EvalVec(x, u)
	assert.NoError(err)
	assert.InDelta(1.0, xn.AtVec(0), 1e-12)
	for i := 1; i < 4; i++ {
		assert.InDelta(0.0, xn.AtVec(i), 1e-12)
	}

	// F at identity with zero rates is the identity matrix
	f, err := d.F.Eval(x, u)
	assert.NoError(err)
	assert.True(mat.EqualApprox(mat.NewDiagDense(3, []float64{1, 1, 1}), f, 1e-9))
}

func TestCheckShape(t *testing.T) {
	assert := assert.New(t)

	m := symbolic.Matrix{
		{symbolic.Const(0), symbolic.Const(0)},
		{symbolic.Const(0), symbolic.Const(0)},
		{symbolic.Const(0), symbolic.Const(0)},
	}

	assert.NoError(checkShape("F", m, 3, 2))

	// a transposed shape reports both axes, not just the element count
	err := checkShape("F", m, 2, 3)
	var dimErr *symbolic.IncompatibleDimensionError
	assert.True(errors.As(err, &dimErr))
	assert.Contains(err.Error(), "[3 x 2]")
	assert.Contains(err.Error(), "[2 x 3]")
}

func TestEKFValidation(t *testing.T) {
	assert := assert.New(t)

	var dimErr *symbolic.IncompatibleDimensionError

	// missing process
	_, err := EKF(&FilterSpec{Name: "none"})
	assert.Error(err)

	// wrong Q dimension
	spec := pendulumSpec(t)
	spec.Q = mat.NewSymDense(2, nil)
	_, err = EKF(spec)
	assert.True(errors.As(err, &dimErr))

	// missing R entry
	spec = pendulumSpec(t)
	spec.R = map[string]mat.Symmetric{}
	_, err = EKF(spec)
	assert.True(errors.As(err, &dimErr))

	// unbound parameter value
	spec = pendulumSpec(t)
	spec.Params = nil
	_, err = EKF(spec)
	assert.Error(err)

	// measurement bound to a foreign process
	spec = pendulumSpec(t)
	_, foreign, _ := pendulum(t)
	spec.Measurements = []*model.Measurement{foreign}
	_, err = EKF(spec)
	assert.Error(err)

	// duplicate measurement names: noise-free models never declare a
	// noise symbol, so the name collision must be caught here
	p, _, g := pendulum(t)
	tacho := func() *model.Measurement {
		m, err := p.Measure("tacho", 0, func(a model.MeasArgs) (symbolic.Vector, error) {
			return a.Block("theta")
		})
		assert.NoError(err)
		return m
	}
	_, err = EKF(&FilterSpec{
		Name:         "dup",
		Process:      p,
		Measurements: []*model.Measurement{tacho(), tacho()},
		Q:            mat.NewSymDense(1, []float64{0.001}),
		R:            map[string]mat.Symmetric{"tacho": mat.NewSymDense(1, []float64{0.01})},
		Params:       map[*symbolic.Symbol]float64{g: 9.81},
	})
	assert.Error(err)
	assert.Contains(err.Error(), "duplicate measurement")
}
