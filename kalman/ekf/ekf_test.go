package ekf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/goecca/ecca/derive"
	"github.com/goecca/ecca/lie"
	"github.com/goecca/ecca/model"
	"github.com/goecca/ecca/symbolic"
)

var dd *derive.Derived

// initCond is a plain initial condition value.
type initCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

func (c *initCond) State() mat.Vector  { return c.state }
func (c *initCond) Cov() mat.Symmetric { return c.cov }

// setup derives a 1D constant-velocity filter with a position
// measurement.
func setup() error {
	sess := symbolic.NewSession()
	p, err := model.NewProcess(sess, "cv", 0.5, 0, []model.Block{
		{Name: "pos", Kind: lie.Euclidean, Dim: 1, Dynamics: func(a model.BlockArgs) (symbolic.Vector, error) {
			return a.Block("vel")
		}},
		{Name: "vel", Kind: lie.Euclidean, Dim: 1, NoiseDim: 1},
	})
	if err != nil {
		return err
	}

	m, err := p.MeasureBlock("gps", "pos")
	if err != nil {
		return err
	}

	dd, err = derive.EKF(&derive.FilterSpec{
		Name:         "cv",
		Process:      p,
		Measurements: []*model.Measurement{m},
		Q:            mat.NewSymDense(1, []float64{0.01}),
		R:            map[string]mat.Symmetric{"gps": mat.NewSymDense(1, []float64{0.25})},
	})
	return err
}

func newFilter(t *testing.T) *EKF {
	f, err := New(dd, &initCond{
		state: mat.NewVecDense(2, []float64{0, 1}),
		cov:   mat.NewSymDense(2, []float64{1, 0, 0, 1}),
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestMain(m *testing.M) {
	if err := setup(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t)
	assert.NotNil(f)
	assert.Equal(dd, f.Derived())

	_, err := New(nil, &initCond{state: mat.NewVecDense(2, nil), cov: mat.NewSymDense(2, nil)})
	assert.Error(err)

	// wrong state dimension
	_, err = New(dd, &initCond{state: mat.NewVecDense(3, nil), cov: mat.NewSymDense(2, nil)})
	assert.Error(err)

	// wrong covariance dimension
	_, err = New(dd, &initCond{state: mat.NewVecDense(2, nil), cov: mat.NewSymDense(3, nil)})
	assert.Error(err)
}

func TestPredict(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t)

	x := mat.NewVecDense(2, []float64{0, 1})
	est, err := f.Predict(x, nil)
	assert.NotNil(est)
	assert.NoError(err)

	// x' = [pos + dt*vel, vel]
	assert.InDelta(0.5, est.Val().AtVec(0), 1e-12)
	assert.InDelta(1.0, est.Val().AtVec(1), 1e-12)

	// P' = F*P*F' + G*Q*G' with F = [1 dt; 0 1], G = [0; 1]
	cov := est.Cov()
	assert.InDelta(1.25, cov.At(0, 0), 1e-12)
	assert.InDelta(0.5, cov.At(0, 1), 1e-12)
	assert.InDelta(1.01, cov.At(1, 1), 1e-12)
}

func TestPredictSequence(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t)

	x := mat.NewVecDense(2, []float64{0, 1})
	est, err := f.Predict(x, nil)
	assert.NoError(err)

	// the propagated covariance becomes the filter covariance
	assert.InDelta(1.25, f.Cov().At(0, 0), 1e-12)

	// a second prediction without a correction propagates the committed
	// covariance further instead of replaying the initial one
	est, err = f.Predict(est.Val(), nil)
	assert.NoError(err)

	cov := est.Cov()
	assert.InDelta(2.0025, cov.At(0, 0), 1e-12)
	assert.InDelta(1.005, cov.At(0, 1), 1e-12)
	assert.InDelta(1.02, cov.At(1, 1), 1e-12)
}

func TestUpdate(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t)

	x := mat.NewVecDense(2, []float64{0, 1})
	pred, err := f.Predict(x, nil)
	assert.NoError(err)

	z := mat.NewVecDense(1, []float64{0.7})
	est, err := f.Update(pred.Val(), nil, z)
	assert.NotNil(est)
	assert.NoError(err)

	// the innovation is z minus the predicted position
	inn := est.(interface{ Innovation() mat.Vector }).Innovation()
	assert.InDelta(0.2, inn.AtVec(0), 1e-12)

	// the update moves the position toward the measurement and
	// contracts the covariance
	assert.Greater(est.Val().AtVec(0), pred.Val().AtVec(0))
	assert.Less(est.Cov().At(0, 0), pred.Cov().At(0, 0))

	// invalid measurement dimension
	_, err = f.Update(pred.Val(), nil, mat.NewVecDense(2, nil))
	assert.Error(err)
	_, err = f.Update(pred.Val(), nil, nil)
	assert.Error(err)

	// unknown measurement model
	_, err = f.UpdateMeasurement(pred.Val(), nil, z, "ghost")
	assert.Error(err)
}

func TestRun(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t)

	x := mat.NewVecDense(2, []float64{0, 1})
	z := mat.NewVecDense(1, []float64{0.5})

	est, err := f.Run(x, nil, z)
	assert.NotNil(est)
	assert.NoError(err)
	assert.Equal(2, est.Val().Len())
}

func TestCovGain(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t)

	cov := f.Cov()
	assert.Equal(2, cov.SymmetricDim())
	assert.InDelta(1.0, cov.At(0, 0), 1e-12)

	newCov := mat.NewSymDense(2, []float64{2, 0, 0, 2})
	assert.NoError(f.SetCov(newCov))
	assert.InDelta(2.0, f.Cov().At(0, 0), 1e-12)

	assert.Error(f.SetCov(nil))
	assert.Error(f.SetCov(mat.NewSymDense(3, nil)))

	// the gain is stored by the update step
	x := mat.NewVecDense(2, []float64{0, 1})
	pred, err := f.Predict(x, nil)
	assert.NoError(err)
	_, err = f.Update(pred.Val(), nil, mat.NewVecDense(1, []float64{0.4}))
	assert.NoError(err)

	gain := f.Gain()
	r, c := gain.Dims()
	assert.Equal(2, r)
	assert.Equal(1, c)
	assert.Greater(gain.At(0, 0), 0.0)
}
