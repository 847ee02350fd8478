// Package harness runs simulation scenarios for golden testing.
//
// A scenario names a model, its configuration, and the signals to
// record. The recorded result is rendered to canonical JSON, a
// deterministic byte form, and compared against a checked-in golden
// file. Regenerate the fixtures with:
//
//	go test ./internal/harness -update
package harness
