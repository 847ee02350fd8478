package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstep/blockstep/internal/signal"
)

func TestSaturationClampsElementwise(t *testing.T) {
	b, err := NewSaturation("sat", signal.FromScalar(-1), signal.FromScalar(1), 0)
	require.NoError(t, err)
	b.SetInput("in", col(-5, 0.5, 5))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out := b.Output("out")
	assert.Equal(t, -1.0, out.At(0, 0))
	assert.Equal(t, 0.5, out.At(1, 0))
	assert.Equal(t, 1.0, out.At(2, 0))
}

func TestSaturationDefaultsAreUnbounded(t *testing.T) {
	b, err := NewSaturation("sat", nil, nil, 0)
	require.NoError(t, err)
	b.SetInput("in", signal.FromScalar(1e12))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	assert.Equal(t, 1e12, scalarOut(t, b, "out"))
}

func TestSaturationPerRowBounds(t *testing.T) {
	b, err := NewSaturation("sat", col(-1, -10), col(1, 10), 0)
	require.NoError(t, err)
	b.SetInput("in", col(5, 5))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out := b.Output("out")
	assert.Equal(t, 1.0, out.At(0, 0))
	assert.Equal(t, 5.0, out.At(1, 0))
}

func TestSaturationRejectsInvertedBounds(t *testing.T) {
	b, err := NewSaturation("sat", signal.FromScalar(1), signal.FromScalar(-1), 0)
	require.NoError(t, err)
	b.SetInput("in", signal.FromScalar(0))
	assert.Error(t, b.OutputUpdate(0, 0.1))
}

func TestDeadZoneShiftsOutsideBand(t *testing.T) {
	b, err := NewDeadZone("dz", signal.FromScalar(-1), signal.FromScalar(1), 0)
	require.NoError(t, err)
	b.SetInput("in", col(2, 0.5, -3, -0.5))

	require.NoError(t, b.OutputUpdate(0, 0.1))
	out := b.Output("out")
	assert.Equal(t, 1.0, out.At(0, 0))
	assert.Equal(t, 0.0, out.At(1, 0))
	assert.Equal(t, -2.0, out.At(2, 0))
	assert.Equal(t, 0.0, out.At(3, 0))
}

func TestDeadZoneBandMustContainZero(t *testing.T) {
	b, err := NewDeadZone("dz", signal.FromScalar(1), signal.FromScalar(2), 0)
	require.NoError(t, err)
	b.SetInput("in", signal.FromScalar(0))
	assert.Error(t, b.OutputUpdate(0, 0.1))
}

func TestRateLimiterBoundsSlew(t *testing.T) {
	b, err := NewRateLimiter("rl", signal.FromScalar(1), signal.FromScalar(-2), signal.FromScalar(0), 0)
	require.NoError(t, err)
	b.SetInput("in", signal.FromScalar(10))
	require.NoError(t, b.Initialize(0))
	assert.Equal(t, 0.0, scalarOut(t, b, "out"))

	// rising limited to 1 per second, dt = 0.5
	require.NoError(t, b.OutputUpdate(0, 0.5))
	assert.Equal(t, 0.5, scalarOut(t, b, "out"))
	require.NoError(t, b.StateUpdate(0, 0.5))
	b.CommitState()

	require.NoError(t, b.OutputUpdate(0.5, 0.5))
	assert.Equal(t, 1.0, scalarOut(t, b, "out"))
	require.NoError(t, b.StateUpdate(0.5, 0.5))
	b.CommitState()

	// falling limited to 2 per second
	b.SetInput("in", signal.FromScalar(-10))
	require.NoError(t, b.OutputUpdate(1, 0.5))
	assert.Equal(t, 0.0, scalarOut(t, b, "out"))
}

func TestRateLimiterTracksSlowSignals(t *testing.T) {
	b, err := NewRateLimiter("rl", signal.FromScalar(100), signal.FromScalar(-100), nil, 0)
	require.NoError(t, err)
	b.SetInput("in", signal.FromScalar(2))
	require.NoError(t, b.Initialize(0))
	// no initial output given: state seeds from the first input
	assert.Equal(t, 2.0, scalarOut(t, b, "out"))

	b.SetInput("in", signal.FromScalar(2.5))
	require.NoError(t, b.OutputUpdate(0, 0.1))
	assert.Equal(t, 2.5, scalarOut(t, b, "out"))
}

func TestRateLimiterSlopeSigns(t *testing.T) {
	_, err := NewRateLimiter("rl", signal.FromScalar(-1), nil, nil, 0)
	assert.Error(t, err, "rising slope must be >= 0")

	_, err = NewRateLimiter("rl", nil, signal.FromScalar(1), nil, 0)
	assert.Error(t, err, "falling slope must be <= 0")
}
