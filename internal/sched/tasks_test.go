package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstep/blockstep/internal/model"
)

func schedulerFor(t *testing.T, baseDT float64, blocks ...*stubBlock) *Scheduler {
	t.Helper()
	m := model.New("rates")
	for _, b := range blocks {
		require.NoError(t, m.AddBlock(b))
	}
	order, err := Order(m, nil)
	require.NoError(t, err)
	s, err := NewScheduler(m, order, baseDT)
	require.NoError(t, err)
	return s
}

func TestSchedulerGroupsByEffectiveRate(t *testing.T) {
	s := schedulerFor(t, 0.01,
		stateful("fast1", 0),
		stateful("slow", 0.05),
		stateful("fast2", 0.01),
	)

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, 0.01, tasks[0].SampleTime())
	assert.Equal(t, 0.05, tasks[1].SampleTime())

	var fast []string
	for _, b := range tasks[0].Blocks() {
		fast = append(fast, b.Name())
	}
	assert.Equal(t, []string{"fast1", "fast2"}, fast)
}

func TestSchedulerRejectsNonMultipleRate(t *testing.T) {
	m := model.New("bad")
	require.NoError(t, m.AddBlock(stateful("odd", 0.015)))
	order, err := Order(m, nil)
	require.NoError(t, err)

	_, err = NewScheduler(m, order, 0.01)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odd")
}

func TestSchedulerRejectsNonPositiveBaseStep(t *testing.T) {
	m := model.New("bad")
	require.NoError(t, m.AddBlock(stateful("a", 0)))
	order, err := Order(m, nil)
	require.NoError(t, err)

	_, err = NewScheduler(m, order, 0)
	require.Error(t, err)
}

func TestTaskActivationPattern(t *testing.T) {
	s := schedulerFor(t, 0.01,
		stateful("fast", 0),
		stateful("slow", 0.02),
	)
	s.Reset(0)

	// Slow task fires on ticks 0, 2, 4, ... of the 0.01 grid.
	var slowTicks []int
	for k := 0; k < 6; k++ {
		now := float64(k) * 0.01
		for _, task := range s.Active(now) {
			if task.SampleTime() == 0.02 {
				slowTicks = append(slowTicks, k)
			}
			task.Advance()
		}
	}
	assert.Equal(t, []int{0, 2, 4}, slowTicks)
}

func TestTaskDTFirstAndSubsequent(t *testing.T) {
	s := schedulerFor(t, 0.01, stateful("slow", 0.03))
	s.Reset(0)

	task := s.Tasks()[0]
	require.True(t, task.ShouldRun(0))
	assert.Equal(t, 0.03, task.DT(0))
	task.Advance()

	assert.False(t, task.ShouldRun(0.01))
	assert.False(t, task.ShouldRun(0.02))
	require.True(t, task.ShouldRun(0.03))
	assert.InDelta(t, 0.03, task.DT(0.03), 1e-12)
}

func TestTaskActivationToleratesGridNoise(t *testing.T) {
	s := schedulerFor(t, 0.1, stateful("a", 0))
	s.Reset(0)
	task := s.Tasks()[0]
	task.Advance()

	// 0.1 accumulated in floating point sits slightly below the exact
	// boundary; the tolerance must still fire the task.
	noisy := 0.0
	for i := 0; i < 10; i++ {
		noisy += 0.01
	}
	assert.True(t, task.ShouldRun(noisy))
}

func TestSchedulerResetRestartsActivation(t *testing.T) {
	s := schedulerFor(t, 0.01, stateful("a", 0.02))
	s.Reset(0)
	task := s.Tasks()[0]
	task.Advance()
	require.False(t, task.ShouldRun(0.01))

	s.Reset(0.5)
	assert.False(t, task.ShouldRun(0.4))
	assert.True(t, task.ShouldRun(0.5))
	assert.Equal(t, 0.02, task.DT(0.5))
}

func TestRefreshStateBlocks(t *testing.T) {
	withState := stateful("integ", 0)
	withState.SetState("x", nil)

	s := schedulerFor(t, 0.01, stateful("src", 0), withState)
	task := s.Tasks()[0]
	task.RefreshStateBlocks()

	// SetState(nil) still registers the key; only integ carries state.
	require.Len(t, task.StateBlocks(), 1)
	assert.Equal(t, "integ", task.StateBlocks()[0].Name())
}
