package blocks

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// Sources have no inputs, no feedthrough and no state: their output is
// a pure function of time (plus an internal RNG for noise).

// Constant emits a fixed value.
type Constant struct {
	*model.Base
	value *mat.Dense
}

// NewConstant builds a constant source. value follows the 2-D signal
// convention.
func NewConstant(name string, value *mat.Dense, sampleTime float64) (*Constant, error) {
	if value == nil {
		return nil, fmt.Errorf("[%s] 'value' is required", name)
	}
	b := &Constant{Base: model.NewBase(name, "constant", sampleTime), value: signal.Clone(value)}
	b.AddOutput("out")
	b.DeclareShape("out", signal.Of(value))
	return b, nil
}

func (b *Constant) Initialize(t0 float64) error {
	b.SetOutput("out", signal.Clone(b.value))
	return nil
}

func (b *Constant) OutputUpdate(t, dt float64) error { return nil }
func (b *Constant) StateUpdate(t, dt float64) error  { return nil }

// Step switches from one value to another at a start time.
type Step struct {
	*model.Base
	before    *mat.Dense
	after     *mat.Dense
	startTime float64
}

const stepEps = 1e-12

// NewStep builds a step source. A scalar value broadcasts to the other
// value's shape; two non-scalar values must match exactly.
func NewStep(name string, before, after *mat.Dense, startTime, sampleTime float64) (*Step, error) {
	if before == nil {
		before = signal.FromScalar(0)
	}
	if after == nil {
		after = signal.FromScalar(1)
	}
	target, err := signal.CommonShape(map[string]*mat.Dense{
		"value_before": before, "value_after": after,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	b := &Step{Base: model.NewBase(name, "step", sampleTime), startTime: startTime}
	if b.before, err = signal.BroadcastScalar("value_before", before, target); err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	if b.after, err = signal.BroadcastScalar("value_after", after, target); err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	b.AddOutput("out")
	b.DeclareShape("out", target)
	return b, nil
}

func (b *Step) Initialize(t0 float64) error {
	b.emit(t0)
	return nil
}

func (b *Step) OutputUpdate(t, dt float64) error {
	b.emit(t)
	return nil
}

func (b *Step) StateUpdate(t, dt float64) error { return nil }

// emit compensates floating-point grid noise around the switch time.
func (b *Step) emit(t float64) {
	if t < b.startTime-stepEps {
		b.SetOutput("out", signal.Clone(b.before))
	} else {
		b.SetOutput("out", signal.Clone(b.after))
	}
}

// Ramp emits y(t) = offset + slope * max(0, t - startTime) element-wise.
type Ramp struct {
	*model.Base
	slope     *mat.Dense
	startTime *mat.Dense
	offset    *mat.Dense
	shape     signal.Shape
}

// NewRamp builds a ramp source. Parameters broadcast under the
// scalar-only policy.
func NewRamp(name string, slope, startTime, offset *mat.Dense, sampleTime float64) (*Ramp, error) {
	if slope == nil {
		return nil, fmt.Errorf("[%s] 'slope' is required", name)
	}
	if startTime == nil {
		startTime = signal.FromScalar(0)
	}
	if offset == nil {
		offset = signal.FromScalar(0)
	}
	target, err := signal.CommonShape(map[string]*mat.Dense{
		"slope": slope, "start_time": startTime, "offset": offset,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	b := &Ramp{Base: model.NewBase(name, "ramp", sampleTime), shape: target}
	if b.slope, err = signal.BroadcastScalar("slope", slope, target); err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	if b.startTime, err = signal.BroadcastScalar("start_time", startTime, target); err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	if b.offset, err = signal.BroadcastScalar("offset", offset, target); err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	b.AddOutput("out")
	b.DeclareShape("out", target)
	return b, nil
}

func (b *Ramp) Initialize(t0 float64) error {
	b.emit(t0)
	return nil
}

func (b *Ramp) OutputUpdate(t, dt float64) error {
	b.emit(t)
	return nil
}

func (b *Ramp) StateUpdate(t, dt float64) error { return nil }

func (b *Ramp) emit(t float64) {
	out := signal.Zeros(b.shape)
	for i := 0; i < b.shape.Rows; i++ {
		for j := 0; j < b.shape.Cols; j++ {
			elapsed := math.Max(0, t-b.startTime.At(i, j))
			out.Set(i, j, b.offset.At(i, j)+b.slope.At(i, j)*elapsed)
		}
	}
	b.SetOutput("out", out)
}

// Sinusoidal emits y(t) = A*sin(2*pi*f*t + phase) + offset element-wise.
type Sinusoidal struct {
	*model.Base
	amplitude *mat.Dense
	frequency *mat.Dense
	offset    *mat.Dense
	phase     *mat.Dense
	shape     signal.Shape
}

// NewSinusoidal builds a sinusoidal source.
func NewSinusoidal(name string, amplitude, frequency, offset, phase *mat.Dense, sampleTime float64) (*Sinusoidal, error) {
	if amplitude == nil {
		return nil, fmt.Errorf("[%s] 'amplitude' is required", name)
	}
	if frequency == nil {
		return nil, fmt.Errorf("[%s] 'frequency' is required", name)
	}
	if offset == nil {
		offset = signal.FromScalar(0)
	}
	if phase == nil {
		phase = signal.FromScalar(0)
	}
	target, err := signal.CommonShape(map[string]*mat.Dense{
		"amplitude": amplitude, "frequency": frequency, "offset": offset, "phase": phase,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	b := &Sinusoidal{Base: model.NewBase(name, "sinusoidal", sampleTime), shape: target}
	for _, bind := range []struct {
		param string
		src   *mat.Dense
		dst   **mat.Dense
	}{
		{"amplitude", amplitude, &b.amplitude},
		{"frequency", frequency, &b.frequency},
		{"offset", offset, &b.offset},
		{"phase", phase, &b.phase},
	} {
		if *bind.dst, err = signal.BroadcastScalar(bind.param, bind.src, target); err != nil {
			return nil, fmt.Errorf("[%s] %w", name, err)
		}
	}
	b.AddOutput("out")
	b.DeclareShape("out", target)
	return b, nil
}

func (b *Sinusoidal) Initialize(t0 float64) error {
	b.emit(t0)
	return nil
}

func (b *Sinusoidal) OutputUpdate(t, dt float64) error {
	b.emit(t)
	return nil
}

func (b *Sinusoidal) StateUpdate(t, dt float64) error { return nil }

func (b *Sinusoidal) emit(t float64) {
	out := signal.Zeros(b.shape)
	for i := 0; i < b.shape.Rows; i++ {
		for j := 0; j < b.shape.Cols; j++ {
			y := b.amplitude.At(i, j)*math.Sin(2*math.Pi*b.frequency.At(i, j)*t+b.phase.At(i, j)) + b.offset.At(i, j)
			out.Set(i, j, y)
		}
	}
	b.SetOutput("out", out)
}

// Chirp sweep modes.
const (
	ChirpLinear = "linear"
	ChirpLog    = "log"
)

// Chirp sweeps frequency from f0 to f1 over a duration, then continues
// at f1 with phase continuity.
type Chirp struct {
	*model.Base
	amplitude *mat.Dense
	f0        *mat.Dense
	f1        *mat.Dense
	duration  *mat.Dense
	startTime *mat.Dense
	offset    *mat.Dense
	phase     *mat.Dense
	mode      string
	shape     signal.Shape
}

// NewChirp builds a chirp source.
func NewChirp(name string, amplitude, f0, f1, duration, startTime, offset, phase *mat.Dense, mode string, sampleTime float64) (*Chirp, error) {
	if mode == "" {
		mode = ChirpLinear
	}
	if mode != ChirpLinear && mode != ChirpLog {
		return nil, fmt.Errorf("[%s] mode must be '%s' or '%s', got '%s'", name, ChirpLinear, ChirpLog, mode)
	}
	for param, v := range map[string]*mat.Dense{"amplitude": amplitude, "f0": f0, "f1": f1, "duration": duration} {
		if v == nil {
			return nil, fmt.Errorf("[%s] '%s' is required", name, param)
		}
	}
	if startTime == nil {
		startTime = signal.FromScalar(0)
	}
	if offset == nil {
		offset = signal.FromScalar(0)
	}
	if phase == nil {
		phase = signal.FromScalar(0)
	}
	target, err := signal.CommonShape(map[string]*mat.Dense{
		"amplitude": amplitude, "f0": f0, "f1": f1, "duration": duration,
		"start_time": startTime, "offset": offset, "phase": phase,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	b := &Chirp{Base: model.NewBase(name, "chirp", sampleTime), mode: mode, shape: target}
	for _, bind := range []struct {
		param string
		src   *mat.Dense
		dst   **mat.Dense
	}{
		{"amplitude", amplitude, &b.amplitude},
		{"f0", f0, &b.f0},
		{"f1", f1, &b.f1},
		{"duration", duration, &b.duration},
		{"start_time", startTime, &b.startTime},
		{"offset", offset, &b.offset},
		{"phase", phase, &b.phase},
	} {
		if *bind.dst, err = signal.BroadcastScalar(bind.param, bind.src, target); err != nil {
			return nil, fmt.Errorf("[%s] %w", name, err)
		}
	}
	for i := 0; i < target.Rows; i++ {
		for j := 0; j < target.Cols; j++ {
			if b.duration.At(i, j) <= 0 {
				return nil, fmt.Errorf("[%s] duration must be > 0", name)
			}
			if mode == ChirpLog {
				if b.f0.At(i, j) <= 0 || b.f1.At(i, j) <= 0 {
					return nil, fmt.Errorf("[%s] f0 and f1 must be > 0 for log mode", name)
				}
				if b.f0.At(i, j) == b.f1.At(i, j) {
					return nil, fmt.Errorf("[%s] f0 must differ from f1 in log mode", name)
				}
			}
		}
	}
	b.AddOutput("out")
	b.DeclareShape("out", target)
	return b, nil
}

func (b *Chirp) Initialize(t0 float64) error {
	b.emit(t0)
	return nil
}

func (b *Chirp) OutputUpdate(t, dt float64) error {
	b.emit(t)
	return nil
}

func (b *Chirp) StateUpdate(t, dt float64) error { return nil }

func (b *Chirp) emit(t float64) {
	out := signal.Zeros(b.shape)
	for i := 0; i < b.shape.Rows; i++ {
		for j := 0; j < b.shape.Cols; j++ {
			tau := math.Max(0, t-b.startTime.At(i, j))
			d := b.duration.At(i, j)
			tauClip := math.Min(tau, d)
			f0, f1 := b.f0.At(i, j), b.f1.At(i, j)

			var phi float64
			if b.mode == ChirpLinear {
				k := (f1 - f0) / d
				phi = 2 * math.Pi * (f0*tauClip + 0.5*k*tauClip*tauClip)
			} else {
				ratio := f1 / f0
				coeff := 2 * math.Pi * f0 * d / math.Log(ratio)
				phi = coeff * (math.Pow(ratio, tauClip/d) - 1)
			}
			// after the sweep, continue at f1 with phase continuity
			phi += 2*math.Pi*f1*math.Max(0, tau-d) + b.phase.At(i, j)

			out.Set(i, j, b.amplitude.At(i, j)*math.Sin(phi)+b.offset.At(i, j))
		}
	}
	b.SetOutput("out", out)
}

// WhiteNoise draws independent Gaussian samples each activation:
// y = mean + std * N(0,1), element-wise.
type WhiteNoise struct {
	*model.Base
	mean  *mat.Dense
	std   *mat.Dense
	shape signal.Shape
	rng   *rand.Rand
}

// NewWhiteNoise builds a Gaussian noise source. The seed makes runs
// reproducible; two sources with the same seed emit the same sequence.
func NewWhiteNoise(name string, mean, std *mat.Dense, seed uint64, sampleTime float64) (*WhiteNoise, error) {
	if mean == nil {
		mean = signal.FromScalar(0)
	}
	if std == nil {
		std = signal.FromScalar(1)
	}
	target, err := signal.CommonShape(map[string]*mat.Dense{"mean": mean, "std": std})
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	b := &WhiteNoise{
		Base:  model.NewBase(name, "white_noise", sampleTime),
		shape: target,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	if b.mean, err = signal.BroadcastScalar("mean", mean, target); err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	if b.std, err = signal.BroadcastScalar("std", std, target); err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	for i := 0; i < target.Rows; i++ {
		for j := 0; j < target.Cols; j++ {
			if b.std.At(i, j) < 0 {
				return nil, fmt.Errorf("[%s] std must be >= 0", name)
			}
		}
	}
	b.AddOutput("out")
	b.DeclareShape("out", target)
	return b, nil
}

func (b *WhiteNoise) Initialize(t0 float64) error {
	b.draw()
	return nil
}

func (b *WhiteNoise) OutputUpdate(t, dt float64) error {
	b.draw()
	return nil
}

func (b *WhiteNoise) StateUpdate(t, dt float64) error { return nil }

func (b *WhiteNoise) draw() {
	out := signal.Zeros(b.shape)
	for i := 0; i < b.shape.Rows; i++ {
		for j := 0; j < b.shape.Cols; j++ {
			out.Set(i, j, b.mean.At(i, j)+b.std.At(i, j)*b.rng.NormFloat64())
		}
	}
	b.SetOutput("out", out)
}
