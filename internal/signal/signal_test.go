package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNormalizeScalar(t *testing.T) {
	v, err := Normalize("k", 2.5)
	require.NoError(t, err)
	assert.Equal(t, Scalar, Of(v))
	assert.Equal(t, 2.5, v.At(0, 0))

	v, err = Normalize("k", 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.At(0, 0))
}

func TestNormalizeSliceBecomesColumn(t *testing.T) {
	v, err := Normalize("x0", []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 1}, Of(v))
	assert.Equal(t, 2.0, v.At(1, 0))
}

func TestNormalizeRowFoldsToColumn(t *testing.T) {
	row := mat.NewDense(1, 3, []float64{1, 2, 3})
	v, err := Normalize("x0", row)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 1}, Of(v))
	assert.Equal(t, 3.0, v.At(2, 0))
}

func TestNormalizeMatrixPreserved(t *testing.T) {
	v, err := Normalize("A", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2}, Of(v))
	assert.Equal(t, 3.0, v.At(1, 0))
}

func TestNormalizeRejectsRaggedAndEmpty(t *testing.T) {
	_, err := Normalize("A", [][]float64{{1, 2}, {3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'A'")

	_, err = Normalize("x", []float64{})
	require.Error(t, err)

	_, err = Normalize("x", "nope")
	require.Error(t, err)
}

func TestNormalizeCopiesInput(t *testing.T) {
	src := mat.NewDense(2, 1, []float64{1, 2})
	v, err := Normalize("x", src)
	require.NoError(t, err)
	src.Set(0, 0, 99)
	assert.Equal(t, 1.0, v.At(0, 0))
}

func TestCommonShapeScalarOnlyBroadcast(t *testing.T) {
	s, err := CommonShape(map[string]*mat.Dense{
		"a": FromScalar(1),
		"b": Column([]float64{1, 2}),
	})
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 1}, s)

	_, err = CommonShape(map[string]*mat.Dense{
		"a": Column([]float64{1, 2}),
		"b": Column([]float64{1, 2, 3}),
	})
	require.Error(t, err)
}

func TestBroadcastScalar(t *testing.T) {
	v, err := BroadcastScalar("gain", FromScalar(2), Shape{3, 1})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 1}, Of(v))
	assert.Equal(t, 2.0, v.At(2, 0))

	_, err = BroadcastScalar("gain", Column([]float64{1, 2}), Shape{3, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only scalar")
}

func TestAsColumn(t *testing.T) {
	v, err := AsColumn("x0", FromScalar(1))
	require.NoError(t, err)
	assert.Equal(t, Scalar, Of(v))

	_, err = AsColumn("x0", mat.NewDense(2, 2, nil))
	require.Error(t, err)
}

func TestCloneIndependence(t *testing.T) {
	a := Column([]float64{1, 2})
	b := Clone(a)
	a.Set(0, 0, 9)
	assert.Equal(t, 1.0, b.At(0, 0))
	assert.Nil(t, Clone(nil))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Column([]float64{1, 2}), Column([]float64{1, 2})))
	assert.False(t, Equal(Column([]float64{1, 2}), Column([]float64{1, 3})))
	assert.False(t, Equal(FromScalar(1), Column([]float64{1, 2})))
}
