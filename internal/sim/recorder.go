package sim

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// Sections a logged path can address.
const (
	sectionOutputs = "outputs"
	sectionState   = "state"
)

// loggedPath is a parsed "block.section.key" logging target.
type loggedPath struct {
	raw     string
	block   string
	section string
	key     string
}

func parsePath(raw string) (loggedPath, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return loggedPath{}, fmt.Errorf("logged path '%s' must have the form 'block.outputs.port' or 'block.state.key'", raw)
	}
	p := loggedPath{raw: raw, block: parts[0], section: parts[1], key: parts[2]}
	if p.section != sectionOutputs && p.section != sectionState {
		return loggedPath{}, fmt.Errorf("logged path '%s': unknown section '%s', use 'outputs' or 'state'", raw, p.section)
	}
	return p, nil
}

// lookup fetches the current value of the path from its block.
func (p loggedPath) lookup(m *model.Model) (*mat.Dense, error) {
	b, ok := m.Block(p.block)
	if !ok {
		return nil, fmt.Errorf("logged path '%s': unknown block '%s'", p.raw, p.block)
	}
	var v *mat.Dense
	if p.section == sectionOutputs {
		v = b.Output(p.key)
	} else {
		v = b.State(p.key)
	}
	if v == nil {
		return nil, fmt.Errorf("logged path '%s': no value at '%s.%s'", p.raw, p.section, p.key)
	}
	return v, nil
}

// recorder captures the configured signal paths once per tick. The
// shape of a path freezes at its first sample; a later change is an
// error, never a silent reshape.
type recorder struct {
	paths  []loggedPath
	shapes map[string]signal.Shape

	time   []float64
	series map[string][]*mat.Dense
}

func newRecorder(raws []string) (*recorder, error) {
	r := &recorder{
		shapes: make(map[string]signal.Shape),
		series: make(map[string][]*mat.Dense),
	}
	seen := make(map[string]bool)
	for _, raw := range raws {
		if seen[raw] {
			continue
		}
		seen[raw] = true
		p, err := parsePath(raw)
		if err != nil {
			return nil, err
		}
		r.paths = append(r.paths, p)
	}
	return r, nil
}

// record appends one sample per path at time t.
func (r *recorder) record(t float64, m *model.Model) error {
	for _, p := range r.paths {
		v, err := p.lookup(m)
		if err != nil {
			return err
		}
		s := signal.Of(v)
		if frozen, ok := r.shapes[p.raw]; ok {
			if s != frozen {
				return fmt.Errorf("logged path '%s': shape changed from %s to %s", p.raw, frozen, s)
			}
		} else {
			r.shapes[p.raw] = s
		}
		r.series[p.raw] = append(r.series[p.raw], signal.Clone(v))
	}
	r.time = append(r.time, t)
	return nil
}

func (r *recorder) result() *Result {
	res := &Result{
		time:   append([]float64(nil), r.time...),
		series: make(map[string][]*mat.Dense, len(r.series)),
	}
	for _, p := range r.paths {
		res.paths = append(res.paths, p.raw)
		res.series[p.raw] = append([]*mat.Dense(nil), r.series[p.raw]...)
	}
	return res
}

// Result is the recorded outcome of a run: a time vector and one
// sample series per logged path, aligned index for index.
type Result struct {
	time   []float64
	paths  []string
	series map[string][]*mat.Dense
}

// Len returns the number of recorded ticks.
func (r *Result) Len() int { return len(r.time) }

// Time returns the time vector.
func (r *Result) Time() []float64 { return append([]float64(nil), r.time...) }

// Paths returns the logged paths in configuration order.
func (r *Result) Paths() []string { return append([]string(nil), r.paths...) }

// Series returns the sample series of a path.
func (r *Result) Series(path string) ([]*mat.Dense, bool) {
	s, ok := r.series[path]
	return s, ok
}

// Scalars returns a path's series as plain floats. The path must hold
// 1x1 samples.
func (r *Result) Scalars(path string) ([]float64, error) {
	s, ok := r.series[path]
	if !ok {
		return nil, fmt.Errorf("no recorded series for path '%s'", path)
	}
	out := make([]float64, len(s))
	for i, v := range s {
		if !signal.IsScalar(v) {
			return nil, fmt.Errorf("path '%s' holds %s samples, not scalars", path, signal.Of(v))
		}
		out[i] = v.At(0, 0)
	}
	return out, nil
}
