// Package sim executes a compiled model over discrete time.
//
// Every tick runs in two phases. Phase one walks the scheduled order
// and computes block outputs from the committed state and the
// current-tick inputs, propagating each block's outputs to its
// consumers immediately. Phase two computes every active block's next
// state. Only when both phases finish without error is the pending
// state committed, so a failing tick leaves the model exactly as the
// previous tick left it.
//
// Time never accumulates: the internal clock places tick k at
// t0 + k*dt, and a run over [t0, horizon) executes exactly
// round((horizon-t0)/dt) ticks. Blocks slower than the base step are
// activated by the multi-rate scheduler; between activations their
// consumers keep reading the values propagated at the last activation.
package sim
