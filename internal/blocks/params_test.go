package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstep/blockstep/internal/signal"
)

func TestParamsScalarAccessors(t *testing.T) {
	p := Params{"a": 1.5, "b": 3, "c": "hello", "d": int64(7)}

	f, err := p.Float("a", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	f, err = p.Float("missing", 9)
	require.NoError(t, err)
	assert.Equal(t, 9.0, f)

	_, err = p.Float("c", 0)
	assert.Error(t, err)

	i, err := p.Int("b", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	i, err = p.Int("d", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, i)

	_, err = p.Int("a", 0)
	assert.Error(t, err, "1.5 is not a whole number")

	s, err := p.String("c", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	assert.True(t, p.Has("a"))
	assert.False(t, p.Has("missing"))
}

func TestParamsWholeFloatsReadAsInts(t *testing.T) {
	// YAML decodes bare numbers as float64 in some positions
	p := Params{"n": 3.0}
	n, err := p.Int("n", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestParamsMatrixFoldsToColumns(t *testing.T) {
	p := Params{
		"scalar": 2.0,
		"vector": []any{1, 2.5, 3},
		"row":    [][]float64{{1, 2}},
		"matrix": []any{[]any{1, 2}, []any{3, 4}},
	}

	m, ok, err := p.Matrix("scalar")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, signal.Scalar, signal.Of(m))

	m, _, err = p.Matrix("vector")
	require.NoError(t, err)
	assert.Equal(t, signal.Shape{Rows: 3, Cols: 1}, signal.Of(m))
	assert.Equal(t, 2.5, m.At(1, 0))

	// the signal convention folds single rows into columns
	m, _, err = p.Matrix("row")
	require.NoError(t, err)
	assert.Equal(t, signal.Shape{Rows: 2, Cols: 1}, signal.Of(m))

	m, _, err = p.Matrix("matrix")
	require.NoError(t, err)
	assert.Equal(t, signal.Shape{Rows: 2, Cols: 2}, signal.Of(m))
	assert.Equal(t, 4.0, m.At(1, 1))

	_, ok, err = p.Matrix("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParamsDenseKeepsWrittenShape(t *testing.T) {
	p := Params{
		"flat":   []float64{1, 2},
		"row":    [][]float64{{1, 2}},
		"tall":   []any{[]any{1}, []any{2}},
		"ragged": []any{[]any{1, 2}, []any{3}},
	}

	m, ok, err := p.Dense("flat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, signal.Shape{Rows: 1, Cols: 2}, signal.Of(m))

	m, _, err = p.Dense("row")
	require.NoError(t, err)
	assert.Equal(t, signal.Shape{Rows: 1, Cols: 2}, signal.Of(m))

	m, _, err = p.Dense("tall")
	require.NoError(t, err)
	assert.Equal(t, signal.Shape{Rows: 2, Cols: 1}, signal.Of(m))

	_, _, err = p.Dense("ragged")
	assert.Error(t, err)
}

func TestParamsCoercionErrors(t *testing.T) {
	p := Params{
		"bad":   "not a number",
		"mixed": []any{1, "two"},
		"empty": []any{},
	}
	for _, key := range []string{"bad", "mixed", "empty"} {
		_, _, err := p.Matrix(key)
		assert.Error(t, err, key)
	}
}
