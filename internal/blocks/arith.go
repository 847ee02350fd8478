package blocks

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// Sum adds and subtracts its inputs element-wise, one sign per input.
type Sum struct {
	*model.Base
	signs []float64
}

// NewSum builds a sum block from a sign string like "+-": one '+' or
// '-' per input port in1..inN.
func NewSum(name, signs string, sampleTime float64) (*Sum, error) {
	if signs == "" {
		signs = "++"
	}
	b := &Sum{Base: model.NewBase(name, "sum", sampleTime)}
	for i, r := range signs {
		switch r {
		case '+':
			b.signs = append(b.signs, 1)
		case '-':
			b.signs = append(b.signs, -1)
		default:
			return nil, fmt.Errorf("[%s] 'signs' must contain only '+' or '-', got %q", name, r)
		}
		b.AddInput(fmt.Sprintf("in%d", i+1))
	}
	b.AddOutput("out")
	b.FeedthroughAll()
	return b, nil
}

func (b *Sum) Initialize(t0 float64) error {
	for _, port := range b.InputNames() {
		if b.Input(port) == nil {
			return nil
		}
	}
	return b.OutputUpdate(t0, 0)
}

func (b *Sum) OutputUpdate(t, dt float64) error {
	inputs := make(map[string]*mat.Dense, len(b.signs))
	for _, port := range b.InputNames() {
		u, err := b.RequireInput(port)
		if err != nil {
			return err
		}
		inputs[port] = u
	}
	target, err := signal.CommonShape(inputs)
	if err != nil {
		return fmt.Errorf("[%s] %w", b.Name(), err)
	}

	total := signal.Zeros(target)
	for i, port := range b.InputNames() {
		u, err := signal.BroadcastScalar(port, inputs[port], target)
		if err != nil {
			return fmt.Errorf("[%s] %w", b.Name(), err)
		}
		sign := b.signs[i]
		for r := 0; r < target.Rows; r++ {
			for c := 0; c < target.Cols; c++ {
				total.Set(r, c, total.At(r, c)+sign*u.At(r, c))
			}
		}
	}
	b.SetOutput("out", total)
	return nil
}

func (b *Sum) StateUpdate(t, dt float64) error { return nil }

// Gain multiplication modes.
const (
	GainElementwise = "elementwise" // K .* u
	GainLeft        = "left"        // K * u
	GainRight       = "right"       // u * K
)

// Gain scales its input by a constant: element-wise, or as a left or
// right matrix product.
type Gain struct {
	*model.Base
	gain *mat.Dense
	mode string
}

// NewGain builds a gain block. The mode string is parsed tolerantly:
// "elementwise", "K*u", "left", "K@u", "right", "u@K" and the longer
// display forms all resolve to one of the three modes.
func NewGain(name string, gain *mat.Dense, mode string, sampleTime float64) (*Gain, error) {
	if gain == nil {
		gain = signal.FromScalar(1)
	}
	parsed, err := parseGainMode(mode)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	if parsed != GainElementwise && signal.IsScalar(gain) {
		return nil, fmt.Errorf("[%s] matrix multiplication modes require a matrix gain", name)
	}
	b := &Gain{Base: model.NewBase(name, "gain", sampleTime), gain: signal.Clone(gain), mode: parsed}
	b.AddInput("in")
	b.AddOutput("out")
	b.SetFeedthrough("out", "in")
	return b, nil
}

func parseGainMode(mode string) (string, error) {
	m := strings.ToLower(strings.ReplaceAll(mode, " ", ""))
	switch {
	case m == "" || m == GainElementwise || m == "elem" || m == "k*u" || m == "*" ||
		strings.Contains(m, "elementwise"):
		return GainElementwise, nil
	case m == GainLeft || strings.Contains(m, "k@u"):
		return GainLeft, nil
	case m == GainRight || strings.Contains(m, "u@k"):
		return GainRight, nil
	default:
		return "", fmt.Errorf("invalid multiplication mode '%s'", mode)
	}
}

func (b *Gain) Initialize(t0 float64) error {
	if b.Input("in") == nil {
		return nil
	}
	return b.OutputUpdate(t0, 0)
}

func (b *Gain) OutputUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	y, err := b.compute(u)
	if err != nil {
		return err
	}
	b.SetOutput("out", y)
	return nil
}

func (b *Gain) StateUpdate(t, dt float64) error { return nil }

func (b *Gain) compute(u *mat.Dense) (*mat.Dense, error) {
	gr, gc := b.gain.Dims()
	ur, uc := u.Dims()

	switch b.mode {
	case GainElementwise:
		if signal.IsScalar(b.gain) {
			out := signal.Clone(u)
			out.Scale(b.gain.At(0, 0), u)
			return out, nil
		}
		// column gain scales rows; full matrix gain must match exactly
		if gc == 1 && gr > 1 {
			if ur != gr {
				return nil, fmt.Errorf("[%s] element-wise mode requires input rows == len(gain): input %s, gain %s",
					b.Name(), signal.Of(u), signal.Of(b.gain))
			}
			out := mat.NewDense(ur, uc, nil)
			for i := 0; i < ur; i++ {
				for j := 0; j < uc; j++ {
					out.Set(i, j, b.gain.At(i, 0)*u.At(i, j))
				}
			}
			return out, nil
		}
		if ur != gr || uc != gc {
			return nil, fmt.Errorf("[%s] element-wise mode with matrix gain requires matching shapes: input %s, gain %s",
				b.Name(), signal.Of(u), signal.Of(b.gain))
		}
		out := mat.NewDense(ur, uc, nil)
		out.MulElem(b.gain, u)
		return out, nil

	case GainLeft:
		if ur != gc {
			return nil, fmt.Errorf("[%s] left product requires input rows == gain cols: input %s, gain %s",
				b.Name(), signal.Of(u), signal.Of(b.gain))
		}
		out := mat.NewDense(gr, uc, nil)
		out.Mul(b.gain, u)
		return out, nil

	default: // GainRight
		if uc != gr {
			return nil, fmt.Errorf("[%s] right product requires input cols == gain rows: input %s, gain %s",
				b.Name(), signal.Of(u), signal.Of(b.gain))
		}
		out := mat.NewDense(ur, gc, nil)
		out.Mul(u, b.gain)
		return out, nil
	}
}

// Product multiplication modes.
const (
	ProductElementwise = "elementwise"
	ProductMatrix      = "matrix"
)

// Product multiplies and divides its inputs. The operations string
// holds the operator between consecutive inputs, so "*/" means
// in1 * in2 / in3. Matrix mode supports '*' only.
type Product struct {
	*model.Base
	ops    []byte
	mode   string
	frozen map[string]signal.Shape
}

// NewProduct builds a product block.
func NewProduct(name, operations, mode string, sampleTime float64) (*Product, error) {
	if operations == "" {
		operations = "*"
	}
	if mode == "" {
		mode = ProductElementwise
	}
	if mode != ProductElementwise && mode != ProductMatrix {
		return nil, fmt.Errorf("[%s] 'multiplication' must be '%s' or '%s'", name, ProductElementwise, ProductMatrix)
	}
	for i := 0; i < len(operations); i++ {
		if operations[i] != '*' && operations[i] != '/' {
			return nil, fmt.Errorf("[%s] 'operations' must contain only '*' or '/'", name)
		}
		if mode == ProductMatrix && operations[i] == '/' {
			return nil, fmt.Errorf("[%s] division is not supported in matrix mode", name)
		}
	}
	b := &Product{
		Base:   model.NewBase(name, "product", sampleTime),
		ops:    []byte(operations),
		mode:   mode,
		frozen: make(map[string]signal.Shape),
	}
	for i := 0; i <= len(operations); i++ {
		b.AddInput(fmt.Sprintf("in%d", i+1))
	}
	b.AddOutput("out")
	b.FeedthroughAll()
	return b, nil
}

func (b *Product) Initialize(t0 float64) error {
	for _, port := range b.InputNames() {
		if b.Input(port) == nil {
			return nil
		}
	}
	return b.OutputUpdate(t0, 0)
}

func (b *Product) OutputUpdate(t, dt float64) error {
	inputs := make([]*mat.Dense, 0, len(b.ops)+1)
	for _, port := range b.InputNames() {
		u, err := b.RequireInput(port)
		if err != nil {
			return err
		}
		s := signal.Of(u)
		if prev, ok := b.frozen[port]; ok && prev != s {
			return fmt.Errorf("[%s] input '%s' shape changed: expected %s, got %s", b.Name(), port, prev, s)
		}
		b.frozen[port] = s
		inputs = append(inputs, u)
	}

	var out *mat.Dense
	var err error
	if b.mode == ProductElementwise {
		out, err = b.elementwise(inputs)
	} else {
		out, err = b.matrixChain(inputs)
	}
	if err != nil {
		return err
	}
	b.SetOutput("out", out)
	return nil
}

func (b *Product) StateUpdate(t, dt float64) error { return nil }

func (b *Product) elementwise(inputs []*mat.Dense) (*mat.Dense, error) {
	named := make(map[string]*mat.Dense, len(inputs))
	for i, u := range inputs {
		named[fmt.Sprintf("in%d", i+1)] = u
	}
	target, err := signal.CommonShape(named)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", b.Name(), err)
	}

	result, err := signal.BroadcastScalar("in1", inputs[0], target)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", b.Name(), err)
	}
	for i, op := range b.ops {
		u, err := signal.BroadcastScalar(fmt.Sprintf("in%d", i+2), inputs[i+1], target)
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", b.Name(), err)
		}
		for r := 0; r < target.Rows; r++ {
			for c := 0; c < target.Cols; c++ {
				if op == '*' {
					result.Set(r, c, result.At(r, c)*u.At(r, c))
				} else {
					result.Set(r, c, result.At(r, c)/u.At(r, c))
				}
			}
		}
	}
	return result, nil
}

func (b *Product) matrixChain(inputs []*mat.Dense) (*mat.Dense, error) {
	result := signal.Clone(inputs[0])
	for _, u := range inputs[1:] {
		switch {
		case signal.IsScalar(result) && !signal.IsScalar(u):
			scaled := signal.Clone(u)
			scaled.Scale(result.At(0, 0), u)
			result = scaled
		case !signal.IsScalar(result) && signal.IsScalar(u):
			scaled := signal.Clone(result)
			scaled.Scale(u.At(0, 0), result)
			result = scaled
		case signal.IsScalar(result) && signal.IsScalar(u):
			result = signal.FromScalar(result.At(0, 0) * u.At(0, 0))
		default:
			rr, rc := result.Dims()
			ur, uc := u.Dims()
			if rc != ur {
				return nil, fmt.Errorf("[%s] incompatible dimensions for matrix product: %s x %s",
					b.Name(), signal.Shape{Rows: rr, Cols: rc}, signal.Shape{Rows: ur, Cols: uc})
			}
			out := mat.NewDense(rr, uc, nil)
			out.Mul(result, u)
			result = out
		}
	}
	return result, nil
}
