package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/sched"
)

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger attaches a structured logger. Tick execution traces at
// Debug level, run milestones at Info.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// Simulator drives a model through discrete time.
//
// New compiles the model: structural validation, feedthrough ordering
// and rate grouping all happen there, so a Simulator that constructs
// successfully can only fail at run time through a block error,
// reported as a *RuntimeError.
type Simulator struct {
	model  *model.Model
	cfg    Config
	logger *slog.Logger

	order     []string
	sched     *sched.Scheduler
	blockTask map[string]*sched.Task

	// downstream caches the outgoing connections per source block.
	downstream map[string][]model.Connection

	rec *recorder

	tick        int
	now         float64
	initialized bool
	finalized   bool
}

// New compiles a model against a configuration.
func New(m *model.Model, cfg Config, opts ...Option) (*Simulator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		model:  m,
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	order, err := sched.Order(m, s.logger)
	if err != nil {
		return nil, err
	}
	s.order = order

	s.sched, err = sched.NewScheduler(m, order, cfg.DT)
	if err != nil {
		return nil, err
	}
	s.blockTask = make(map[string]*sched.Task)
	for _, task := range s.sched.Tasks() {
		for _, b := range task.Blocks() {
			s.blockTask[b.Name()] = task
		}
	}

	s.downstream = make(map[string][]model.Connection)
	for _, c := range m.Connections() {
		s.downstream[c.SrcBlock] = append(s.downstream[c.SrcBlock], c)
	}

	s.rec, err = newRecorder(cfg.Logging)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("model compiled",
		"model", m.Name(),
		"blocks", len(order),
		"tasks", len(s.sched.Tasks()),
		"dt", cfg.DT)
	return s, nil
}

// Config returns the simulator's effective configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Order returns the compiled block evaluation order.
func (s *Simulator) Order() []string { return append([]string(nil), s.order...) }

// Now returns the current simulation time.
func (s *Simulator) Now() float64 { return s.now }

// Tick returns the number of completed ticks.
func (s *Simulator) Tick() int { return s.tick }

// Initialize prepares every block at t0 in schedule order, propagating
// initial outputs so downstream blocks can size themselves from real
// signals. Idempotent once successful.
func (s *Simulator) Initialize() error {
	if s.initialized {
		return nil
	}
	s.sched.Reset(s.cfg.T0)
	for _, name := range s.order {
		b, _ := s.model.Block(name)
		if err := b.Initialize(s.cfg.T0); err != nil {
			return &RuntimeError{Tick: 0, Time: s.cfg.T0, Block: name, Phase: PhaseInitialize, Err: err}
		}
		s.propagate(name)
	}
	for _, task := range s.sched.Tasks() {
		task.RefreshStateBlocks()
	}
	s.now = s.cfg.T0
	s.tick = 0
	s.initialized = true
	s.logger.Debug("model initialized", "t0", s.cfg.T0, "order", s.order)
	return nil
}

// propagate pushes a block's current outputs onto its consumers'
// input ports. Consumers hold the reference until the producer's next
// activation overwrites it; blocks must not mutate their inputs.
func (s *Simulator) propagate(block string) {
	src, _ := s.model.Block(block)
	for _, c := range s.downstream[block] {
		v := src.Output(c.SrcPort)
		if v == nil {
			continue
		}
		dst, _ := s.model.Block(c.DstBlock)
		dst.SetInput(c.DstPort, v)
	}
}

// Step executes one tick of an internal-clock simulation at
// t = t0 + tick*dt.
func (s *Simulator) Step() error {
	if s.cfg.Clock != ClockInternal {
		return fmt.Errorf("Step requires the internal clock, configured clock is '%s'", s.cfg.Clock)
	}
	if err := s.Initialize(); err != nil {
		return err
	}
	t := s.cfg.T0 + float64(s.tick)*s.cfg.DT
	if err := s.advance(t); err != nil {
		return err
	}
	s.now = s.cfg.T0 + float64(s.tick)*s.cfg.DT
	return nil
}

// StepExternal executes one tick of an external-clock simulation at
// the current time, then advances time by dt. The caller owns the
// time base; dt may vary between calls.
func (s *Simulator) StepExternal(dt float64) error {
	if s.cfg.Clock != ClockExternal {
		return fmt.Errorf("StepExternal requires the external clock, configured clock is '%s'", s.cfg.Clock)
	}
	if dt <= 0 {
		return fmt.Errorf("external step dt must be > 0, got %v", dt)
	}
	if err := s.Initialize(); err != nil {
		return err
	}
	if err := s.advance(s.now); err != nil {
		return err
	}
	s.now += dt
	return nil
}

// advance runs the two execution phases at time t, commits state,
// advances the fired activation windows and records the tick.
func (s *Simulator) advance(t float64) error {
	active := s.sched.Active(t)
	if len(active) == 0 {
		s.tick++
		return s.record(t)
	}

	// Per-task dt is fixed before any phase runs.
	dts := make(map[*sched.Task]float64, len(active))
	isActive := make(map[*sched.Task]bool, len(active))
	for _, task := range active {
		dts[task] = task.DT(t)
		isActive[task] = true
	}

	for _, name := range s.order {
		task := s.blockTask[name]
		if !isActive[task] {
			continue
		}
		b, _ := s.model.Block(name)
		if err := b.OutputUpdate(t, dts[task]); err != nil {
			return &RuntimeError{Tick: s.tick, Time: t, Block: name, Phase: PhaseOutput, Err: err}
		}
		s.propagate(name)
	}

	for _, task := range active {
		for _, b := range task.StateBlocks() {
			if err := b.StateUpdate(t, dts[task]); err != nil {
				return &RuntimeError{Tick: s.tick, Time: t, Block: b.Name(), Phase: PhaseState, Err: err}
			}
		}
	}

	// All-or-nothing: no state commits until every active block
	// finished both phases.
	for _, task := range active {
		for _, b := range task.StateBlocks() {
			b.CommitState()
		}
	}
	for _, task := range active {
		task.Advance()
	}

	s.logger.Debug("tick complete", "tick", s.tick, "t", t, "active_tasks", len(active))
	s.tick++
	return s.record(t)
}

func (s *Simulator) record(t float64) error {
	if err := s.rec.record(t, s.model); err != nil {
		return &RuntimeError{Tick: s.tick - 1, Time: t, Phase: PhaseRecord, Err: err}
	}
	return nil
}

// Run executes the whole horizon on the internal clock and returns
// the recorded result. The context cancels between ticks.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if s.cfg.Clock != ClockInternal {
		return nil, fmt.Errorf("Run requires the internal clock, configured clock is '%s'", s.cfg.Clock)
	}
	if err := s.Initialize(); err != nil {
		return nil, err
	}

	n := s.cfg.Ticks()
	s.logger.Info("run starting",
		"model", s.model.Name(),
		"t0", s.cfg.T0,
		"horizon", s.cfg.Horizon,
		"dt", s.cfg.DT,
		"ticks", n)

	for k := s.tick; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := s.cfg.T0 + float64(k)*s.cfg.DT
		if err := s.advance(t); err != nil {
			_ = s.Finalize()
			return nil, err
		}
	}

	if err := s.Finalize(); err != nil {
		return nil, err
	}
	s.logger.Info("run complete", "ticks", s.tick)
	return s.Result(), nil
}

// Result returns what has been recorded so far.
func (s *Simulator) Result() *Result { return s.rec.result() }

// Finalize releases block resources. Every block is finalized even if
// some fail; the errors are joined. Idempotent.
func (s *Simulator) Finalize() error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	var errs []error
	for _, name := range s.order {
		b, _ := s.model.Block(name)
		if err := b.Finalize(); err != nil {
			errs = append(errs, &RuntimeError{Tick: s.tick, Time: s.now, Block: name, Phase: PhaseFinalize, Err: err})
		}
	}
	return errors.Join(errs...)
}
