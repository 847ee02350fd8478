package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstep/blockstep/internal/signal"
)

func TestRegistryBuildsEveryDeclarativeType(t *testing.T) {
	cases := map[string]Params{
		"constant":            {"value": 2.0},
		"step":                {"value_before": 0.0, "value_after": 1.0, "start_time": 0.5},
		"ramp":                {"slope": 1.0},
		"sinusoidal":          {"amplitude": 1.0, "frequency": 1.0},
		"chirp":               {"f0": 1.0, "f1": 2.0, "duration": 1.0},
		"white_noise":         {"mean": 0.0, "std": 1.0, "seed": 42},
		"sum":                 {"signs": "+-"},
		"gain":                {"gain": 2.0},
		"product":             {"operations": "*"},
		"mux":                 {"num_inputs": 3},
		"demux":               {"num_outputs": 2},
		"delay":               {"num_delays": 2},
		"discrete_integrator": {"method": "euler forward"},
		"discrete_derivator":  {},
		"saturation":          {"u_min": -1.0, "u_max": 1.0},
		"dead_zone":           {"lower_bound": -0.1, "upper_bound": 0.1},
		"rate_limiter":        {"rising_slope": 1.0, "falling_slope": -1.0},
		"zero_order_hold":     {"sample_time": 0.1},
		"pid":                 {"Kp": 1.0, "Ki": 0.1, "integration_method": "euler backward"},
		"state_feedback":      {"K": []float64{1, 2}},
		"luenberger_observer": {
			"A": [][]float64{{0.5}}, "B": [][]float64{{1}},
			"C": [][]float64{{1}}, "L": [][]float64{{0.5}},
		},
		"linear_state_space": {
			"A": [][]float64{{0.5}}, "B": [][]float64{{1}}, "C": [][]float64{{1}},
		},
		"polytopic_state_space": {
			"A": [][]float64{{1, 2}}, "B": [][]float64{{0, 0}}, "C": [][]float64{{1}},
		},
		"quadratic_program": {},
		"external_input":    {},
		"external_output":   {},
	}

	for tag, params := range cases {
		b, err := New(tag, "blk", params)
		require.NoError(t, err, tag)
		require.NotNil(t, b, tag)
		assert.Equal(t, "blk", b.Name(), tag)
		assert.Equal(t, tag, b.TypeTag(), tag)
	}
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	_, err := New("flux_capacitor", "blk", nil)
	assert.Error(t, err)
}

func TestRegistryFunctionBlocksAreGoOnly(t *testing.T) {
	for _, tag := range []string{"algebraic_function", "non_linear_state_space"} {
		_, err := New(tag, "blk", Params{})
		assert.Error(t, err, tag)
	}
}

func TestRegistryTypesSorted(t *testing.T) {
	types := Types()
	require.NotEmpty(t, types)
	assert.Contains(t, types, "pid")
	assert.Contains(t, types, "constant")
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1], types[i])
	}
}

func TestRegistryPropagatesConstructorErrors(t *testing.T) {
	_, err := New("constant", "blk", Params{})
	assert.Error(t, err, "constant requires a value")

	_, err = New("zero_order_hold", "blk", Params{})
	assert.Error(t, err, "zoh requires a positive sample time")

	_, err = New("sum", "blk", Params{"signs": "+x"})
	assert.Error(t, err)
}

func TestStateFeedbackShorthandVectorParam(t *testing.T) {
	// a flat K reads as a (1,2) row: one command, two states
	b, err := New("state_feedback", "sf", Params{"K": []float64{1, 2}})
	require.NoError(t, err)
	sf := b.(*StateFeedback)
	sf.SetInput("r", signal.FromScalar(5))
	sf.SetInput("x", col(1, 1))
	require.NoError(t, sf.OutputUpdate(0, 0.1))
	assert.Equal(t, 2.0, scalarOut(t, sf, "u"))

	sf.SetInput("x", signal.FromScalar(1))
	assert.Error(t, sf.OutputUpdate(0.1, 0.1), "state length mismatch")
}
