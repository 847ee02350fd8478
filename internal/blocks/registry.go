package blocks

import (
	"fmt"
	"math"
	"sort"

	"github.com/blockstep/blockstep/internal/model"
)

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// Factory constructs a block of one type from its declarative
// parameters.
type Factory func(name string, p Params) (model.Block, error)

// registry maps type tags to factories. Function-parameterized blocks
// (algebraic_function, non_linear_state_space) and the QP block with a
// custom solver are Go-only: their constructors take func values the
// declarative form cannot express, so they have no factory here.
var registry = map[string]Factory{
	"constant":              newConstantFromParams,
	"step":                  newStepFromParams,
	"ramp":                  newRampFromParams,
	"sinusoidal":            newSinusoidalFromParams,
	"chirp":                 newChirpFromParams,
	"white_noise":           newWhiteNoiseFromParams,
	"sum":                   newSumFromParams,
	"gain":                  newGainFromParams,
	"product":               newProductFromParams,
	"mux":                   newMuxFromParams,
	"demux":                 newDemuxFromParams,
	"delay":                 newDelayFromParams,
	"discrete_integrator":   newDiscreteIntegratorFromParams,
	"discrete_derivator":    newDiscreteDerivatorFromParams,
	"saturation":            newSaturationFromParams,
	"dead_zone":             newDeadZoneFromParams,
	"rate_limiter":          newRateLimiterFromParams,
	"zero_order_hold":       newZeroOrderHoldFromParams,
	"pid":                   newPIDFromParams,
	"state_feedback":        newStateFeedbackFromParams,
	"luenberger_observer":   newLuenbergerFromParams,
	"linear_state_space":    newLinearStateSpaceFromParams,
	"polytopic_state_space": newPolytopicStateSpaceFromParams,
	"quadratic_program":     newQuadraticProgramFromParams,
	"external_input":        newExternalInputFromParams,
	"external_output":       newExternalOutputFromParams,
}

// New builds a block by type tag.
func New(typeTag, name string, p Params) (model.Block, error) {
	f, ok := registry[typeTag]
	if !ok {
		return nil, fmt.Errorf("unknown block type '%s' for block '%s'", typeTag, name)
	}
	if p == nil {
		p = Params{}
	}
	return f(name, p)
}

// Types returns the registered type tags, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for tag := range registry {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func sampleTime(p Params) (float64, error) {
	return p.Float("sample_time", 0)
}

func newConstantFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	value, ok, err := p.Matrix("value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("[%s] parameter 'value' is required", name)
	}
	return NewConstant(name, value, ts)
}

func newStepFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	before, err := p.MatrixOr("value_before", 0)
	if err != nil {
		return nil, err
	}
	after, err := p.MatrixOr("value_after", 1)
	if err != nil {
		return nil, err
	}
	startTime, err := p.Float("start_time", 0)
	if err != nil {
		return nil, err
	}
	return NewStep(name, before, after, startTime, ts)
}

func newRampFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	slope, err := p.MatrixOr("slope", 1)
	if err != nil {
		return nil, err
	}
	startTime, err := p.MatrixOr("start_time", 0)
	if err != nil {
		return nil, err
	}
	offset, err := p.MatrixOr("offset", 0)
	if err != nil {
		return nil, err
	}
	return NewRamp(name, slope, startTime, offset, ts)
}

func newSinusoidalFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	amplitude, err := p.MatrixOr("amplitude", 1)
	if err != nil {
		return nil, err
	}
	frequency, err := p.MatrixOr("frequency", 1)
	if err != nil {
		return nil, err
	}
	offset, err := p.MatrixOr("offset", 0)
	if err != nil {
		return nil, err
	}
	phase, err := p.MatrixOr("phase", 0)
	if err != nil {
		return nil, err
	}
	return NewSinusoidal(name, amplitude, frequency, offset, phase, ts)
}

func newChirpFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	amplitude, err := p.MatrixOr("amplitude", 1)
	if err != nil {
		return nil, err
	}
	f0, ok, err := p.Matrix("f0")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("[%s] parameter 'f0' is required", name)
	}
	f1, ok, err := p.Matrix("f1")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("[%s] parameter 'f1' is required", name)
	}
	duration, ok, err := p.Matrix("duration")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("[%s] parameter 'duration' is required", name)
	}
	startTime, err := p.MatrixOr("start_time", 0)
	if err != nil {
		return nil, err
	}
	offset, err := p.MatrixOr("offset", 0)
	if err != nil {
		return nil, err
	}
	phase, err := p.MatrixOr("phase", 0)
	if err != nil {
		return nil, err
	}
	mode, err := p.String("mode", ChirpLinear)
	if err != nil {
		return nil, err
	}
	return NewChirp(name, amplitude, f0, f1, duration, startTime, offset, phase, mode, ts)
}

func newWhiteNoiseFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	mean, err := p.MatrixOr("mean", 0)
	if err != nil {
		return nil, err
	}
	std, err := p.MatrixOr("std", 1)
	if err != nil {
		return nil, err
	}
	seed, err := p.Int("seed", 0)
	if err != nil {
		return nil, err
	}
	return NewWhiteNoise(name, mean, std, uint64(seed), ts)
}

func newSumFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	signs, err := p.String("signs", "++")
	if err != nil {
		return nil, err
	}
	return NewSum(name, signs, ts)
}

func newGainFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	gain, _, err := p.Matrix("gain")
	if err != nil {
		return nil, err
	}
	mode, err := p.String("multiplication", GainElementwise)
	if err != nil {
		return nil, err
	}
	return NewGain(name, gain, mode, ts)
}

func newProductFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	ops, err := p.String("operations", "*")
	if err != nil {
		return nil, err
	}
	mode, err := p.String("multiplication", ProductElementwise)
	if err != nil {
		return nil, err
	}
	return NewProduct(name, ops, mode, ts)
}

func newMuxFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	n, err := p.Int("num_inputs", 2)
	if err != nil {
		return nil, err
	}
	return NewMux(name, n, ts)
}

func newDemuxFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	n, err := p.Int("num_outputs", 2)
	if err != nil {
		return nil, err
	}
	return NewDemux(name, n, ts)
}

func newDelayFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	n, err := p.Int("num_delays", 1)
	if err != nil {
		return nil, err
	}
	initial, _, err := p.Matrix("initial_output")
	if err != nil {
		return nil, err
	}
	return NewDelay(name, n, initial, ts)
}

func newDiscreteIntegratorFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	x0, _, err := p.Matrix("initial_state")
	if err != nil {
		return nil, err
	}
	method, err := p.String("method", EulerForward)
	if err != nil {
		return nil, err
	}
	return NewDiscreteIntegrator(name, x0, method, ts)
}

func newDiscreteDerivatorFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	y0, _, err := p.Matrix("initial_output")
	if err != nil {
		return nil, err
	}
	return NewDiscreteDerivator(name, y0, ts)
}

func newSaturationFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	uMin, _, err := p.Matrix("u_min")
	if err != nil {
		return nil, err
	}
	uMax, _, err := p.Matrix("u_max")
	if err != nil {
		return nil, err
	}
	return NewSaturation(name, uMin, uMax, ts)
}

func newDeadZoneFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	lower, _, err := p.Matrix("lower_bound")
	if err != nil {
		return nil, err
	}
	upper, _, err := p.Matrix("upper_bound")
	if err != nil {
		return nil, err
	}
	return NewDeadZone(name, lower, upper, ts)
}

func newRateLimiterFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	rising, _, err := p.Matrix("rising_slope")
	if err != nil {
		return nil, err
	}
	falling, _, err := p.Matrix("falling_slope")
	if err != nil {
		return nil, err
	}
	y0, _, err := p.Matrix("initial_output")
	if err != nil {
		return nil, err
	}
	return NewRateLimiter(name, rising, falling, y0, ts)
}

func newZeroOrderHoldFromParams(name string, p Params) (model.Block, error) {
	ts, err := p.Float("sample_time", 0)
	if err != nil {
		return nil, err
	}
	return NewZeroOrderHold(name, ts)
}

func newPIDFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	kp, err := p.Float("Kp", 0)
	if err != nil {
		return nil, err
	}
	ki, err := p.Float("Ki", 0)
	if err != nil {
		return nil, err
	}
	kd, err := p.Float("Kd", 0)
	if err != nil {
		return nil, err
	}
	uMin, err := p.Float("u_min", negInf)
	if err != nil {
		return nil, err
	}
	uMax, err := p.Float("u_max", posInf)
	if err != nil {
		return nil, err
	}
	method, err := p.String("integration_method", EulerForward)
	if err != nil {
		return nil, err
	}
	return NewPID(name, kp, ki, kd, method, uMin, uMax, ts)
}

func newStateFeedbackFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	k, _, err := p.Dense("K")
	if err != nil {
		return nil, err
	}
	g, _, err := p.Dense("G")
	if err != nil {
		return nil, err
	}
	return NewStateFeedback(name, k, g, ts)
}

func newLuenbergerFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	a, _, err := p.Dense("A")
	if err != nil {
		return nil, err
	}
	bm, _, err := p.Dense("B")
	if err != nil {
		return nil, err
	}
	c, _, err := p.Dense("C")
	if err != nil {
		return nil, err
	}
	l, _, err := p.Dense("L")
	if err != nil {
		return nil, err
	}
	x0, _, err := p.Matrix("x0")
	if err != nil {
		return nil, err
	}
	return NewLuenberger(name, a, bm, c, l, x0, ts)
}

func newLinearStateSpaceFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	a, _, err := p.Dense("A")
	if err != nil {
		return nil, err
	}
	bm, _, err := p.Dense("B")
	if err != nil {
		return nil, err
	}
	c, _, err := p.Dense("C")
	if err != nil {
		return nil, err
	}
	x0, _, err := p.Matrix("x0")
	if err != nil {
		return nil, err
	}
	return NewLinearStateSpace(name, a, bm, c, x0, ts)
}

func newPolytopicStateSpaceFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	a, _, err := p.Dense("A")
	if err != nil {
		return nil, err
	}
	bm, _, err := p.Dense("B")
	if err != nil {
		return nil, err
	}
	c, _, err := p.Dense("C")
	if err != nil {
		return nil, err
	}
	x0, _, err := p.Matrix("x0")
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("[%s] parameter 'A' is required", name)
	}
	// the vertex count is implied by A's aspect ratio
	nx, ac := a.Dims()
	if nx == 0 || ac%nx != 0 {
		return nil, fmt.Errorf("[%s] 'A' must stack square vertex matrices horizontally", name)
	}
	return NewPolytopicStateSpace(name, a, bm, c, x0, ac/nx, ts)
}

func newQuadraticProgramFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	// external solver backends are injected in Go code; the
	// declarative form always gets the built-in one
	return NewQuadraticProgram(name, nil, ts)
}

func newExternalInputFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	return NewExternalInput(name, ts)
}

func newExternalOutputFromParams(name string, p Params) (model.Block, error) {
	ts, err := sampleTime(p)
	if err != nil {
		return nil, err
	}
	return NewExternalOutput(name, ts)
}
