package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/signal"
)

func TestSumSignedAccumulation(t *testing.T) {
	b, err := NewSum("s", "+-", 0)
	require.NoError(t, err)
	b.SetInput("in1", signal.FromScalar(5))
	b.SetInput("in2", signal.FromScalar(2))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	assert.Equal(t, 3.0, scalarOut(t, b, "out"))
}

func TestSumBroadcastsScalars(t *testing.T) {
	b, err := NewSum("s", "++", 0)
	require.NoError(t, err)
	b.SetInput("in1", col(1, 2))
	b.SetInput("in2", signal.FromScalar(10))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out := b.Output("out")
	assert.Equal(t, 11.0, out.At(0, 0))
	assert.Equal(t, 12.0, out.At(1, 0))

	// two different non-scalar shapes cannot be reconciled
	b.SetInput("in2", col(1, 2, 3))
	assert.Error(t, b.OutputUpdate(0.1, 0.1))
}

func TestSumRejectsBadSigns(t *testing.T) {
	_, err := NewSum("s", "+x", 0)
	assert.Error(t, err)
}

func TestSumDefersWhenInputMissing(t *testing.T) {
	b, err := NewSum("s", "++", 0)
	require.NoError(t, err)
	b.SetInput("in1", signal.FromScalar(1))
	require.NoError(t, b.Initialize(0))
	assert.Nil(t, b.Output("out"))
}

func TestGainScalarElementwise(t *testing.T) {
	b, err := NewGain("g", signal.FromScalar(2), "", 0)
	require.NoError(t, err)
	b.SetInput("in", col(1, -3))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out := b.Output("out")
	assert.Equal(t, 2.0, out.At(0, 0))
	assert.Equal(t, -6.0, out.At(1, 0))
}

func TestGainColumnScalesRows(t *testing.T) {
	b, err := NewGain("g", col(1, 10), GainElementwise, 0)
	require.NoError(t, err)
	b.SetInput("in", col(3, 4))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out := b.Output("out")
	assert.Equal(t, 3.0, out.At(0, 0))
	assert.Equal(t, 40.0, out.At(1, 0))

	b.SetInput("in", col(1, 2, 3))
	assert.Error(t, b.OutputUpdate(0.1, 0.1))
}

func TestGainMatrixLeftProduct(t *testing.T) {
	k := mat.NewDense(1, 2, []float64{1, 2})
	b, err := NewGain("g", k, "K@u", 0)
	require.NoError(t, err)
	b.SetInput("in", col(3, 4))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	assert.Equal(t, 11.0, scalarOut(t, b, "out"))

	b.SetInput("in", col(1, 2, 3))
	assert.Error(t, b.OutputUpdate(0.1, 0.1))
}

func TestGainMatrixRightProduct(t *testing.T) {
	k := mat.NewDense(2, 1, []float64{1, 2})
	b, err := NewGain("g", k, "u@K", 0)
	require.NoError(t, err)
	b.SetInput("in", mat.NewDense(1, 2, []float64{3, 4}))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	assert.Equal(t, 11.0, scalarOut(t, b, "out"))
}

func TestGainModeValidation(t *testing.T) {
	_, err := NewGain("g", signal.FromScalar(2), "K@u", 0)
	assert.Error(t, err, "matrix mode requires a matrix gain")

	_, err = NewGain("g", signal.FromScalar(2), "bogus", 0)
	assert.Error(t, err)
}

func TestProductMultiplyAndDivide(t *testing.T) {
	b, err := NewProduct("p", "*/", ProductElementwise, 0)
	require.NoError(t, err)
	b.SetInput("in1", signal.FromScalar(8))
	b.SetInput("in2", signal.FromScalar(4))
	b.SetInput("in3", signal.FromScalar(2))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	assert.Equal(t, 16.0, scalarOut(t, b, "out"))
}

func TestProductMatrixChain(t *testing.T) {
	b, err := NewProduct("p", "*", ProductMatrix, 0)
	require.NoError(t, err)
	b.SetInput("in1", mat.NewDense(1, 2, []float64{1, 2}))
	b.SetInput("in2", col(3, 4))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	assert.Equal(t, 11.0, scalarOut(t, b, "out"))
}

func TestProductMatrixScalarScaling(t *testing.T) {
	b, err := NewProduct("p", "*", ProductMatrix, 0)
	require.NoError(t, err)
	b.SetInput("in1", signal.FromScalar(2))
	b.SetInput("in2", col(3, 4))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out := b.Output("out")
	assert.Equal(t, 6.0, out.At(0, 0))
	assert.Equal(t, 8.0, out.At(1, 0))
}

func TestProductValidation(t *testing.T) {
	_, err := NewProduct("p", "*/", ProductMatrix, 0)
	assert.Error(t, err, "division in matrix mode")

	_, err = NewProduct("p", "*%", ProductElementwise, 0)
	assert.Error(t, err, "unknown operator")

	b, err := NewProduct("p", "*", ProductMatrix, 0)
	require.NoError(t, err)
	b.SetInput("in1", col(1, 2))
	b.SetInput("in2", col(3, 4))
	assert.Error(t, b.OutputUpdate(0, 0.1), "incompatible chain dimensions")
}

func TestProductFreezesPortShapes(t *testing.T) {
	b, err := NewProduct("p", "*", ProductElementwise, 0)
	require.NoError(t, err)
	b.SetInput("in1", col(1, 2))
	b.SetInput("in2", col(3, 4))
	require.NoError(t, b.OutputUpdate(0, 0.1))

	b.SetInput("in1", col(1, 2, 3))
	assert.Error(t, b.OutputUpdate(0.1, 0.1))
}
