package blocks

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/signal"
)

func TestLinearStateSpaceScalarSystem(t *testing.T) {
	a := mat.NewDense(1, 1, []float64{0.5})
	bm := mat.NewDense(1, 1, []float64{1})
	c := mat.NewDense(1, 1, []float64{2})
	x0 := mat.NewDense(1, 1, []float64{1})

	b, err := NewLinearStateSpace("sys", a, bm, c, x0, 0)
	require.NoError(t, err)
	b.SetInput("u", signal.FromScalar(0))
	require.NoError(t, b.Initialize(0))
	assert.Equal(t, 2.0, scalarOut(t, b, "y"))
	assert.Equal(t, 1.0, scalarOut(t, b, "x"))

	// x decays by half each tick with zero input
	want := []float64{2, 1, 0.5, 0.25}
	for k, w := range want {
		require.NoError(t, b.OutputUpdate(float64(k), 1))
		assert.Equal(t, w, scalarOut(t, b, "y"))
		require.NoError(t, b.StateUpdate(float64(k), 1))
		b.CommitState()
	}
}

func TestLinearStateSpaceDrivenByInput(t *testing.T) {
	a := mat.NewDense(1, 1, []float64{0})
	bm := mat.NewDense(1, 1, []float64{3})
	c := mat.NewDense(1, 1, []float64{1})

	b, err := NewLinearStateSpace("sys", a, bm, c, nil, 0)
	require.NoError(t, err)
	b.SetInput("u", signal.FromScalar(2))
	require.NoError(t, b.Initialize(0))

	tickOnce(t, b, 0, 1)
	require.NoError(t, b.OutputUpdate(1, 1))
	assert.Equal(t, 6.0, scalarOut(t, b, "y"))
}

func TestLinearStateSpaceNoFeedthrough(t *testing.T) {
	a := mat.NewDense(1, 1, []float64{0.5})
	bm := mat.NewDense(1, 1, []float64{1})
	c := mat.NewDense(1, 1, []float64{1})
	b, err := NewLinearStateSpace("sys", a, bm, c, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, b.Feedthrough())
}

func TestLinearStateSpaceDimensionChecks(t *testing.T) {
	square := mat.NewDense(2, 2, nil)
	rect := mat.NewDense(2, 1, nil)

	_, err := NewLinearStateSpace("sys", rect, rect, mat.NewDense(1, 2, nil), nil, 0)
	assert.Error(t, err, "A not square")

	_, err = NewLinearStateSpace("sys", square, mat.NewDense(1, 1, nil), mat.NewDense(1, 2, nil), nil, 0)
	assert.Error(t, err, "B row mismatch")

	_, err = NewLinearStateSpace("sys", square, rect, mat.NewDense(1, 1, nil), nil, 0)
	assert.Error(t, err, "C column mismatch")

	_, err = NewLinearStateSpace("sys", square, rect, mat.NewDense(1, 2, nil), mat.NewDense(3, 1, nil), 0)
	assert.Error(t, err, "x0 length mismatch")
}

func TestLuenbergerTracksMeasurement(t *testing.T) {
	a := mat.NewDense(1, 1, []float64{0.5})
	bm := mat.NewDense(1, 1, []float64{0})
	c := mat.NewDense(1, 1, []float64{1})
	l := mat.NewDense(1, 1, []float64{0.5})

	b, err := NewLuenberger("obs", a, bm, c, l, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, b.Feedthrough())

	b.SetInput("u", signal.FromScalar(0))
	b.SetInput("y", signal.FromScalar(1))
	require.NoError(t, b.Initialize(0))
	assert.Equal(t, 0.0, scalarOut(t, b, "x_hat"))
	assert.Equal(t, 0.0, scalarOut(t, b, "y_hat"))

	// x_hat' = 0.5*x_hat + 0.5*(y - x_hat) = 0.5*y at x_hat = 0
	tickOnce(t, b, 0, 1)
	require.NoError(t, b.OutputUpdate(1, 1))
	assert.Equal(t, 0.5, scalarOut(t, b, "x_hat"))
	assert.Equal(t, 0.5, scalarOut(t, b, "y_hat"))
}

func TestLuenbergerDimensionChecks(t *testing.T) {
	a := mat.NewDense(2, 2, nil)
	bm := mat.NewDense(2, 1, nil)
	c := mat.NewDense(1, 2, nil)

	_, err := NewLuenberger("obs", a, bm, c, mat.NewDense(1, 1, nil), nil, 0)
	assert.Error(t, err, "L must be (2,1)")

	_, err = NewLuenberger("obs", a, bm, c, nil, nil, 0)
	assert.Error(t, err, "L required")
}

func TestPolytopicBlendsVertices(t *testing.T) {
	// two scalar vertices: x' = 1*x and x' = 3*x
	a := mat.NewDense(1, 2, []float64{1, 3})
	bm := mat.NewDense(1, 2, []float64{0, 0})
	c := mat.NewDense(1, 1, []float64{1})
	x0 := mat.NewDense(1, 1, []float64{2})

	b, err := NewPolytopicStateSpace("lpv", a, bm, c, x0, 2, 0)
	require.NoError(t, err)
	b.SetInput("u", signal.FromScalar(0))
	b.SetInput("w", col(0.25, 0.75))
	require.NoError(t, b.Initialize(0))
	assert.Equal(t, 2.0, scalarOut(t, b, "y"))

	// blended dynamics: (0.25*1 + 0.75*3) * 2 = 5
	tickOnce(t, b, 0, 1)
	require.NoError(t, b.OutputUpdate(1, 1))
	assert.Equal(t, 5.0, scalarOut(t, b, "y"))
}

func TestPolytopicWeightsMustSumToOne(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{1, 3})
	bm := mat.NewDense(1, 2, nil)
	c := mat.NewDense(1, 1, []float64{1})

	b, err := NewPolytopicStateSpace("lpv", a, bm, c, nil, 2, 0)
	require.NoError(t, err)
	b.SetInput("u", signal.FromScalar(0))
	b.SetInput("w", col(0.5, 0.6))
	assert.Error(t, b.StateUpdate(0, 1))
}

func TestPolytopicShapeChecks(t *testing.T) {
	_, err := NewPolytopicStateSpace("lpv", mat.NewDense(1, 3, nil), mat.NewDense(1, 2, nil), mat.NewDense(1, 1, nil), nil, 2, 0)
	assert.Error(t, err, "A width must be vertices*nx")
}

func TestNonLinearStateSpace(t *testing.T) {
	f := func(tt, dt float64, x *mat.Dense, inputs map[string]*mat.Dense) (*mat.Dense, error) {
		u := inputs["u"]
		next := mat.NewDense(1, 1, []float64{x.At(0, 0)*x.At(0, 0) + u.At(0, 0)})
		return next, nil
	}
	g := func(tt, dt float64, x *mat.Dense) (map[string]*mat.Dense, error) {
		return map[string]*mat.Dense{"y": signal.FromScalar(2 * x.At(0, 0))}, nil
	}

	b, err := NewNonLinearStateSpace("nl", []string{"u"}, []string{"y"}, f, g,
		mat.NewDense(1, 1, []float64{2}), 0)
	require.NoError(t, err)
	assert.Empty(t, b.Feedthrough())

	b.SetInput("u", signal.FromScalar(1))
	require.NoError(t, b.Initialize(0))
	assert.Equal(t, 4.0, scalarOut(t, b, "y"))

	tickOnce(t, b, 0, 1)
	require.NoError(t, b.OutputUpdate(1, 1))
	assert.Equal(t, 10.0, scalarOut(t, b, "y"), "x' = x^2 + u = 5")
}

func TestNonLinearStateSpaceErrors(t *testing.T) {
	g := func(tt, dt float64, x *mat.Dense) (map[string]*mat.Dense, error) {
		return map[string]*mat.Dense{"y": signal.FromScalar(0)}, nil
	}
	badF := func(tt, dt float64, x *mat.Dense, inputs map[string]*mat.Dense) (*mat.Dense, error) {
		return mat.NewDense(2, 1, nil), nil
	}

	b, err := NewNonLinearStateSpace("nl", nil, []string{"y"}, badF, g, mat.NewDense(1, 1, nil), 0)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(0))
	assert.Error(t, b.StateUpdate(0, 1), "wrong next-state shape")

	failG := func(tt, dt float64, x *mat.Dense) (map[string]*mat.Dense, error) {
		return nil, fmt.Errorf("boom")
	}
	b2, err := NewNonLinearStateSpace("nl", nil, []string{"y"}, badF, failG, mat.NewDense(1, 1, nil), 0)
	require.NoError(t, err)
	assert.Error(t, b2.Initialize(0))

	_, err = NewNonLinearStateSpace("nl", nil, []string{"y"}, nil, g, mat.NewDense(1, 1, nil), 0)
	assert.Error(t, err, "state function required")
}
