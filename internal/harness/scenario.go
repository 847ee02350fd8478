package harness

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/sim"
)

// Scenario is one reproducible simulation: a model builder plus the
// configuration to run it under. Build returns a fresh model on every
// call so repeated runs never share state.
type Scenario struct {
	Name   string
	Build  func() (*model.Model, error)
	Config sim.Config
}

// Snapshot is the rendered outcome of a scenario run.
type Snapshot struct {
	Scenario string
	Model    string
	Config   sim.Config
	Result   *sim.Result
}

// Run builds the scenario's model, simulates it, and returns the
// snapshot.
func Run(ctx context.Context, sc *Scenario) (*Snapshot, error) {
	if sc.Build == nil {
		return nil, fmt.Errorf("scenario '%s': no model builder", sc.Name)
	}
	m, err := sc.Build()
	if err != nil {
		return nil, fmt.Errorf("scenario '%s': build model: %w", sc.Name, err)
	}
	s, err := sim.New(m, sc.Config)
	if err != nil {
		return nil, fmt.Errorf("scenario '%s': %w", sc.Name, err)
	}
	res, err := s.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario '%s': %w", sc.Name, err)
	}
	return &Snapshot{Scenario: sc.Name, Model: m.Name(), Config: sc.Config, Result: res}, nil
}

// Canonical renders the snapshot to its canonical JSON byte form,
// terminated by a newline.
func (s *Snapshot) Canonical() ([]byte, error) {
	series := make(map[string]any, len(s.Result.Paths()))
	for _, path := range s.Result.Paths() {
		samples, _ := s.Result.Series(path)
		list := make([]any, len(samples))
		for i, v := range samples {
			list[i] = matrixTree(v)
		}
		series[path] = list
	}

	times := s.Result.Time()
	timeList := make([]any, len(times))
	for i, t := range times {
		timeList[i] = t
	}

	tree := map[string]any{
		"scenario": s.Scenario,
		"model":    s.Model,
		"config": map[string]any{
			"dt":      s.Config.DT,
			"t0":      s.Config.T0,
			"horizon": s.Config.Horizon,
		},
		"time":   timeList,
		"series": series,
	}
	b, err := MarshalCanonical(tree)
	if err != nil {
		return nil, fmt.Errorf("scenario '%s': %w", s.Scenario, err)
	}
	return append(b, '\n'), nil
}

// matrixTree renders a matrix as nested row lists.
func matrixTree(v *mat.Dense) []any {
	r, c := v.Dims()
	rows := make([]any, r)
	for i := 0; i < r; i++ {
		cols := make([]any, c)
		for j := 0; j < c; j++ {
			cols[j] = v.At(i, j)
		}
		rows[i] = cols
	}
	return rows
}
