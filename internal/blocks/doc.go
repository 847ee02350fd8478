// Package blocks is the built-in block library: signal sources,
// algebraic operators, stateful operators, controllers, observers,
// state-space systems, an optimizer and the external I/O interfaces.
//
// Every block embeds model.Base and declares its ports, feedthrough
// sets and parameters at construction, so a constructed block is fully
// described before the scheduler ever sees it. Construction validates
// parameters eagerly; anything that can fail from bad configuration
// fails there, not mid-run.
//
// Blocks resolve signal shapes lazily where the original parameters do
// not pin them: the first resolved shape freezes, and later mismatches
// are errors, never silent reshapes.
package blocks
