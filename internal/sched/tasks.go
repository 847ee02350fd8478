package sched

import (
	"fmt"
	"math"
	"sort"

	"github.com/blockstep/blockstep/internal/model"
)

// timeEps absorbs floating-point noise when comparing activation times
// on the discrete grid.
const timeEps = 1e-12

// Task groups the blocks that share one effective sample time. Its
// blocks are kept in global schedule order, so iterating active tasks
// by rate and blocks within each task preserves the total evaluation
// order among active blocks.
type Task struct {
	sampleTime  float64
	blocks      []model.Block
	stateBlocks []model.Block

	nextActivation float64
	lastActivation float64
	started        bool
}

// SampleTime returns the effective period shared by the task's blocks.
func (t *Task) SampleTime() float64 { return t.sampleTime }

// Blocks returns the task's blocks in schedule order.
func (t *Task) Blocks() []model.Block { return t.blocks }

// StateBlocks returns the subset of blocks carrying internal state.
// Valid after RefreshStateBlocks.
func (t *Task) StateBlocks() []model.Block { return t.stateBlocks }

// RefreshStateBlocks recomputes the stateful subset. Called after
// block initialization, when state entries exist.
func (t *Task) RefreshStateBlocks() {
	t.stateBlocks = t.stateBlocks[:0]
	for _, b := range t.blocks {
		if b.HasState() {
			t.stateBlocks = append(t.stateBlocks, b)
		}
	}
}

// ShouldRun reports whether the task activates at time now.
func (t *Task) ShouldRun(now float64) bool {
	return now+timeEps >= t.nextActivation
}

// DT returns the local step for an activation at time now: the nominal
// period on the first firing, the elapsed time since the previous
// firing afterwards.
func (t *Task) DT(now float64) float64 {
	if !t.started {
		return t.sampleTime
	}
	return now - t.lastActivation
}

// Advance moves the activation window to the next multiple of the
// sample time. Called once per firing, after both execution phases.
func (t *Task) Advance() {
	t.lastActivation = t.nextActivation
	t.nextActivation += t.sampleTime
	t.started = true
}

// Scheduler owns the multi-rate activation state of a compiled model:
// one task per distinct effective sample time, ordered fastest first.
type Scheduler struct {
	tasks []*Task
}

// NewScheduler groups the model's blocks into rate tasks.
//
// Each block's effective sample time is its declared period, or baseDT
// when it declares none. In fixed-step mode every effective sample
// time must be an integer multiple of baseDT (within tolerance);
// violations fail here, before any tick runs.
func NewScheduler(m *model.Model, order []string, baseDT float64) (*Scheduler, error) {
	if baseDT <= 0 {
		return nil, fmt.Errorf("base step must be > 0, got %v", baseDT)
	}

	effective := make(map[string]float64)
	for _, b := range m.Blocks() {
		ts := b.SampleTime()
		if ts == 0 {
			ts = baseDT
		}
		ratio := ts / baseDT
		if math.Abs(ratio-math.Round(ratio)) > timeEps {
			return nil, fmt.Errorf("fixed-step mode: sample time %v of block '%s' is not a multiple of base step %v",
				ts, b.Name(), baseDT)
		}
		effective[b.Name()] = ts
	}

	groups := make(map[float64][]model.Block)
	for _, name := range order {
		b, _ := m.Block(name)
		ts := effective[name]
		groups[ts] = append(groups[ts], b)
	}

	s := &Scheduler{}
	for ts, blocks := range groups {
		s.tasks = append(s.tasks, &Task{sampleTime: ts, blocks: blocks})
	}
	sort.Slice(s.tasks, func(i, j int) bool { return s.tasks[i].sampleTime < s.tasks[j].sampleTime })
	return s, nil
}

// Tasks returns every task, fastest rate first.
func (s *Scheduler) Tasks() []*Task { return s.tasks }

// Active returns the tasks that fire at time now, fastest rate first.
func (s *Scheduler) Active(now float64) []*Task {
	var out []*Task
	for _, t := range s.tasks {
		if t.ShouldRun(now) {
			out = append(out, t)
		}
	}
	return out
}

// Reset rewinds every task's activation window to start at t0.
func (s *Scheduler) Reset(t0 float64) {
	for _, t := range s.tasks {
		t.nextActivation = t0
		t.lastActivation = 0
		t.started = false
	}
}
