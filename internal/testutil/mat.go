// Package testutil holds matrix helpers shared by tests.
package testutil

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// Scalar builds a 1x1 matrix.
func Scalar(v float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{v})
}

// Col builds an (n,1) column from its arguments.
func Col(vals ...float64) *mat.Dense {
	return mat.NewDense(len(vals), 1, append([]float64(nil), vals...))
}

// Mat builds an r x c matrix from row-major values.
func Mat(r, c int, vals ...float64) *mat.Dense {
	return mat.NewDense(r, c, append([]float64(nil), vals...))
}

// AssertMatEqual fails the test unless got matches want exactly,
// shape included.
func AssertMatEqual(t *testing.T, want, got *mat.Dense) {
	t.Helper()
	if got == nil {
		t.Fatalf("matrix is nil, want %v", mat.Formatted(want))
	}
	if !mat.Equal(want, got) {
		t.Fatalf("matrix mismatch:\nwant %v\ngot  %v", mat.Formatted(want), mat.Formatted(got))
	}
}
