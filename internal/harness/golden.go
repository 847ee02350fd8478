package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its canonical
// snapshot against testdata/golden/{name}.golden. Run the package
// tests with -update to regenerate the fixture.
func RunWithGolden(t *testing.T, sc *Scenario) {
	t.Helper()

	snap, err := Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	AssertGolden(t, snap)
}

// AssertGolden compares an already-captured snapshot against its
// golden file.
func AssertGolden(t *testing.T, snap *Snapshot) {
	t.Helper()

	b, err := snap.Canonical()
	if err != nil {
		t.Fatalf("render snapshot: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, snap.Scenario, b)
}
