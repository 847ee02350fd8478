package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/signal"
)

func col(values ...float64) *mat.Dense {
	return mat.NewDense(len(values), 1, values)
}

func scalarOut(t *testing.T, b interface{ Output(string) *mat.Dense }, port string) float64 {
	t.Helper()
	v := b.Output(port)
	require.NotNil(t, v)
	require.True(t, signal.IsScalar(v), "expected scalar output on %s", port)
	return v.At(0, 0)
}

func TestConstantEmitsValue(t *testing.T) {
	b, err := NewConstant("c", col(1, 2, 3), 0)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(0))

	out := b.Output("out")
	require.NotNil(t, out)
	assert.Equal(t, signal.Shape{Rows: 3, Cols: 1}, signal.Of(out))
	assert.Equal(t, 2.0, out.At(1, 0))

	_, err = NewConstant("bad", nil, 0)
	assert.Error(t, err)
}

func TestStepSwitchesAtStartTime(t *testing.T) {
	b, err := NewStep("s", signal.FromScalar(-1), signal.FromScalar(4), 0.5, 0)
	require.NoError(t, err)

	require.NoError(t, b.Initialize(0))
	assert.Equal(t, -1.0, scalarOut(t, b, "out"))

	require.NoError(t, b.OutputUpdate(0.4, 0.1))
	assert.Equal(t, -1.0, scalarOut(t, b, "out"))

	require.NoError(t, b.OutputUpdate(0.5, 0.1))
	assert.Equal(t, 4.0, scalarOut(t, b, "out"))

	require.NoError(t, b.OutputUpdate(0.6, 0.1))
	assert.Equal(t, 4.0, scalarOut(t, b, "out"))
}

func TestStepBroadcastsScalarValue(t *testing.T) {
	b, err := NewStep("s", signal.FromScalar(0), col(1, 2), 1, 0)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(0))

	out := b.Output("out")
	assert.Equal(t, signal.Shape{Rows: 2, Cols: 1}, signal.Of(out))
	assert.Equal(t, 0.0, out.At(0, 0))
	assert.Equal(t, 0.0, out.At(1, 0))

	// two different non-scalar shapes cannot be reconciled
	_, err = NewStep("bad", col(1, 2), col(1, 2, 3), 0, 0)
	assert.Error(t, err)
}

func TestRampStartsAtStartTime(t *testing.T) {
	b, err := NewRamp("r", signal.FromScalar(2), signal.FromScalar(1), signal.FromScalar(0.5), 0)
	require.NoError(t, err)

	require.NoError(t, b.Initialize(0))
	assert.Equal(t, 0.5, scalarOut(t, b, "out"))

	require.NoError(t, b.OutputUpdate(1, 0.1))
	assert.Equal(t, 0.5, scalarOut(t, b, "out"))

	require.NoError(t, b.OutputUpdate(2, 0.1))
	assert.Equal(t, 2.5, scalarOut(t, b, "out"))
}

func TestSinusoidalWaveform(t *testing.T) {
	b, err := NewSinusoidal("sin", signal.FromScalar(2), signal.FromScalar(0.25), signal.FromScalar(1), nil, 0)
	require.NoError(t, err)

	require.NoError(t, b.Initialize(0))
	assert.InDelta(t, 1.0, scalarOut(t, b, "out"), 1e-12)

	// quarter period of a 0.25 Hz wave is t=1
	require.NoError(t, b.OutputUpdate(1, 0.1))
	assert.InDelta(t, 3.0, scalarOut(t, b, "out"), 1e-12)
}

func TestChirpPhaseAtStart(t *testing.T) {
	b, err := NewChirp("ch", signal.FromScalar(1), signal.FromScalar(1), signal.FromScalar(2),
		signal.FromScalar(1), nil, nil, nil, ChirpLinear, 0)
	require.NoError(t, err)

	require.NoError(t, b.Initialize(0))
	assert.InDelta(t, 0.0, scalarOut(t, b, "out"), 1e-12)
}

func TestChirpParameterValidation(t *testing.T) {
	one := signal.FromScalar(1)
	_, err := NewChirp("ch", one, one, signal.FromScalar(2), signal.FromScalar(0), nil, nil, nil, ChirpLinear, 0)
	assert.Error(t, err, "non-positive duration")

	_, err = NewChirp("ch", one, one, one, one, nil, nil, nil, ChirpLog, 0)
	assert.Error(t, err, "log mode with f0 == f1")

	_, err = NewChirp("ch", one, signal.FromScalar(-1), one, one, nil, nil, nil, ChirpLog, 0)
	assert.Error(t, err, "log mode with non-positive frequency")

	_, err = NewChirp("ch", one, one, signal.FromScalar(2), one, nil, nil, nil, "bogus", 0)
	assert.Error(t, err, "unknown mode")
}

func TestWhiteNoiseReproducibleBySeed(t *testing.T) {
	mk := func(seed uint64) *WhiteNoise {
		b, err := NewWhiteNoise("n", signal.FromScalar(0), signal.FromScalar(1), seed, 0)
		require.NoError(t, err)
		require.NoError(t, b.Initialize(0))
		return b
	}

	a, b := mk(42), mk(42)
	for i := 0; i < 10; i++ {
		require.NoError(t, a.OutputUpdate(float64(i), 1))
		require.NoError(t, b.OutputUpdate(float64(i), 1))
		assert.Equal(t, a.Output("out").At(0, 0), b.Output("out").At(0, 0))
	}

	other := mk(7)
	require.NoError(t, other.OutputUpdate(0, 1))
	require.NoError(t, a.OutputUpdate(10, 1))
	assert.NotEqual(t, a.Output("out").At(0, 0), other.Output("out").At(0, 0))
}

func TestWhiteNoiseZeroStdIsMean(t *testing.T) {
	b, err := NewWhiteNoise("n", signal.FromScalar(3), signal.FromScalar(0), 1, 0)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(0))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.OutputUpdate(float64(i), 1))
		assert.Equal(t, 3.0, scalarOut(t, b, "out"))
	}

	_, err = NewWhiteNoise("bad", nil, signal.FromScalar(-1), 1, 0)
	assert.Error(t, err)
}

func TestSourcesHaveNoStateOrInputs(t *testing.T) {
	c, err := NewConstant("c", signal.FromScalar(1), 0)
	require.NoError(t, err)
	assert.False(t, c.HasState())
	assert.Empty(t, c.InputNames())
	assert.Empty(t, c.Feedthrough())
}
