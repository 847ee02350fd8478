package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/signal"
)

func TestMuxConcatenatesColumns(t *testing.T) {
	b, err := NewMux("m", 3, 0)
	require.NoError(t, err)
	b.SetInput("in1", signal.FromScalar(1))
	b.SetInput("in2", col(2, 3))
	b.SetInput("in3", signal.FromScalar(4))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out := b.Output("out")
	assert.Equal(t, signal.Shape{Rows: 4, Cols: 1}, signal.Of(out))
	for i, want := range []float64{1, 2, 3, 4} {
		assert.Equal(t, want, out.At(i, 0))
	}
}

func TestMuxRejectsMatrices(t *testing.T) {
	b, err := NewMux("m", 2, 0)
	require.NoError(t, err)
	b.SetInput("in1", signal.FromScalar(1))
	b.SetInput("in2", mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	assert.Error(t, b.OutputUpdate(0, 0.1))
}

func TestMuxValidation(t *testing.T) {
	_, err := NewMux("m", 0, 0)
	assert.Error(t, err)
}

func TestDemuxSplitsEvenly(t *testing.T) {
	b, err := NewDemux("d", 2, 0)
	require.NoError(t, err)
	b.SetInput("in", col(1, 2, 3, 4))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out1, out2 := b.Output("out1"), b.Output("out2")
	assert.Equal(t, signal.Shape{Rows: 2, Cols: 1}, signal.Of(out1))
	assert.Equal(t, 1.0, out1.At(0, 0))
	assert.Equal(t, 2.0, out1.At(1, 0))
	assert.Equal(t, 3.0, out2.At(0, 0))
	assert.Equal(t, 4.0, out2.At(1, 0))
}

func TestDemuxUnevenSplitFavorsFirstPorts(t *testing.T) {
	b, err := NewDemux("d", 2, 0)
	require.NoError(t, err)
	b.SetInput("in", col(1, 2, 3, 4, 5))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out1, out2 := b.Output("out1"), b.Output("out2")
	assert.Equal(t, signal.Shape{Rows: 3, Cols: 1}, signal.Of(out1))
	assert.Equal(t, signal.Shape{Rows: 2, Cols: 1}, signal.Of(out2))
	assert.Equal(t, 3.0, out1.At(2, 0))
	assert.Equal(t, 4.0, out2.At(0, 0))
}

func TestDemuxValidation(t *testing.T) {
	b, err := NewDemux("d", 3, 0)
	require.NoError(t, err)

	b.SetInput("in", col(1, 2))
	assert.Error(t, b.OutputUpdate(0, 0.1), "more outputs than rows")

	b.SetInput("in", mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	assert.Error(t, b.OutputUpdate(0, 0.1), "matrix input")
}

func TestDemuxEmitsPlaceholdersBeforeSourceFires(t *testing.T) {
	b, err := NewDemux("d", 2, 0)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(0))
	require.NotNil(t, b.Output("out1"))
	require.NotNil(t, b.Output("out2"))
}
