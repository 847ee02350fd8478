// Package sched derives the execution plan of a model: the
// deterministic block evaluation order implied by feedthrough
// dependencies, and the multi-rate activation of blocks that run
// slower than the simulation base step.
//
// Ordering is computed once per model structure, never per tick. Only
// feedthrough edges constrain it: a connection into a block whose
// outputs depend solely on internal state imposes no ordering, which
// is exactly what lets feedback loops through stateful blocks execute
// without an algebraic loop. A cycle made entirely of feedthrough
// edges has no valid order and is reported as a fatal AlgebraicLoopError.
//
// Determinism: when several blocks are simultaneously ready, the one
// added to the model first runs first. Re-scheduling the same model
// always yields the identical order.
package sched
