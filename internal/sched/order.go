package sched

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/blockstep/blockstep/internal/model"
)

// AlgebraicLoopError reports a cycle of feedthrough dependencies. No
// evaluation order exists for such a model; the loop must be broken by
// inserting a stateful block (delay, integrator, ...) on one of its
// edges.
type AlgebraicLoopError struct {
	// Blocks are the blocks implicated in feedthrough cycles, in model
	// insertion order.
	Blocks []string
}

// Error implements the error interface.
func (e *AlgebraicLoopError) Error() string {
	return fmt.Sprintf("ALGEBRAIC_LOOP: feedthrough cycle involving blocks [%s]",
		strings.Join(e.Blocks, ", "))
}

// IsAlgebraicLoop reports whether err is an algebraic loop error.
// Uses errors.As to handle wrapped errors.
func IsAlgebraicLoop(err error) bool {
	var ae *AlgebraicLoopError
	return errors.As(err, &ae)
}

// Order computes the block evaluation order of a model.
//
// An edge src -> dst is a scheduling constraint iff the destination
// port of a connection appears in the feedthrough set of some output
// of the destination block: only then does dst's current-tick output
// depend on src's current-tick output. Kahn's algorithm sorts the
// feedthrough-restricted subgraph; among simultaneously ready blocks
// the earliest-inserted runs first.
//
// The optional logger traces the dependency analysis at Debug level.
func Order(m *model.Model, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	names := m.BlockNames()
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	succs := make(map[string][]string, len(names))
	indegree := make(map[string]int, len(names))
	// Parallel edges between the same pair of blocks must count once.
	seen := make(map[[2]string]bool)

	for _, c := range m.Connections() {
		dst, _ := m.Block(c.DstBlock)
		if !feedsThrough(dst, c.DstPort) {
			logger.Debug("connection imposes no ordering",
				"src", c.SrcBlock+"."+c.SrcPort,
				"dst", c.DstBlock+"."+c.DstPort)
			continue
		}
		if c.SrcBlock == c.DstBlock {
			// Self-loop through feedthrough is an algebraic loop of one.
			return nil, &AlgebraicLoopError{Blocks: []string{c.SrcBlock}}
		}
		edge := [2]string{c.SrcBlock, c.DstBlock}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		succs[c.SrcBlock] = append(succs[c.SrcBlock], c.DstBlock)
		indegree[c.DstBlock]++
		logger.Debug("feedthrough dependency",
			"src", c.SrcBlock+"."+c.SrcPort,
			"dst", c.DstBlock+"."+c.DstPort)
	}

	// Kahn's algorithm with a ready set ordered by insertion index.
	var ready []string
	for _, n := range names {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(names))
	for len(ready) > 0 {
		// Earliest-inserted ready block first, for reproducibility.
		sort.Slice(ready, func(i, j int) bool { return index[ready[i]] < index[ready[j]] })
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, succ := range succs[current] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(order) != len(names) {
		return nil, &AlgebraicLoopError{Blocks: cycleMembers(names, succs, indegree)}
	}

	logger.Debug("execution order resolved", "order", order)
	return order, nil
}

// feedsThrough reports whether the named input participates in any
// output's feedthrough set of the block.
func feedsThrough(b model.Block, input string) bool {
	for _, deps := range b.Feedthrough() {
		for _, in := range deps {
			if in == input {
				return true
			}
		}
	}
	return false
}

// cycleMembers narrows the unsorted remainder of a failed Kahn pass to
// the blocks that actually sit on a cycle, stripping nodes that merely
// hang downstream of one.
func cycleMembers(names []string, succs map[string][]string, indegree map[string]int) []string {
	remaining := make(map[string]bool)
	for _, n := range names {
		if indegree[n] > 0 {
			remaining[n] = true
		}
	}

	for {
		changed := false
		for n := range remaining {
			hasSucc := false
			for _, s := range succs[n] {
				if remaining[s] {
					hasSucc = true
					break
				}
			}
			if !hasSucc {
				delete(remaining, n)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var out []string
	for _, n := range names {
		if remaining[n] {
			out = append(out, n)
		}
	}
	return out
}
