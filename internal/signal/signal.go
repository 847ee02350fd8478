// Package signal defines the numeric values that flow between block
// ports: dense 2-D matrices in the column-vector convention. Every
// signal in a running model is two-dimensional; scalars are 1x1
// matrices and vectors are (n,1) columns. The normalization and
// broadcasting rules here are deliberately strict - only scalar (1,1)
// values broadcast, everything else must match shapes exactly.
package signal

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Shape is the (rows, cols) dimension of a signal.
type Shape struct {
	Rows int
	Cols int
}

// Scalar is the shape of a 1x1 signal.
var Scalar = Shape{1, 1}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d)", s.Rows, s.Cols)
}

// IsScalar reports whether the shape is 1x1.
func (s Shape) IsScalar() bool {
	return s.Rows == 1 && s.Cols == 1
}

// Of returns the shape of a matrix.
func Of(v *mat.Dense) Shape {
	r, c := v.Dims()
	return Shape{r, c}
}

// IsScalar reports whether v is a 1x1 matrix.
func IsScalar(v *mat.Dense) bool {
	r, c := v.Dims()
	return r == 1 && c == 1
}

// FromScalar wraps a float in a 1x1 matrix.
func FromScalar(v float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{v})
}

// Column builds an (n,1) column vector from a slice. The slice is
// copied.
func Column(data []float64) *mat.Dense {
	out := mat.NewDense(len(data), 1, nil)
	for i, v := range data {
		out.Set(i, 0, v)
	}
	return out
}

// Zeros returns an all-zero matrix of the given shape.
func Zeros(s Shape) *mat.Dense {
	return mat.NewDense(s.Rows, s.Cols, nil)
}

// Full returns a matrix of the given shape with every element set to v.
func Full(s Shape, v float64) *mat.Dense {
	out := mat.NewDense(s.Rows, s.Cols, nil)
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			out.Set(i, j, v)
		}
	}
	return out
}

// Clone returns an independent copy of v, or nil for nil.
func Clone(v *mat.Dense) *mat.Dense {
	if v == nil {
		return nil
	}
	out := mat.NewDense(v.RawMatrix().Rows, v.RawMatrix().Cols, nil)
	out.Copy(v)
	return out
}

// Normalize converts raw numeric data into the 2-D signal convention:
//
//	scalar        -> (1,1)
//	slice [n]     -> (n,1) column
//	1xn row, n>1  -> (n,1) column
//	matrix (m,n)  -> kept as is
//
// Accepted inputs are float64, int, []float64, [][]float64 and
// *mat.Dense. Anything else is rejected with the parameter name in the
// error.
func Normalize(param string, value any) (*mat.Dense, error) {
	switch v := value.(type) {
	case float64:
		return FromScalar(v), nil
	case int:
		return FromScalar(float64(v)), nil
	case []float64:
		if len(v) == 0 {
			return nil, fmt.Errorf("'%s' must not be empty", param)
		}
		return Column(v), nil
	case [][]float64:
		return normalizeRows(param, v)
	case *mat.Dense:
		return normalizeDense(v), nil
	default:
		return nil, fmt.Errorf("'%s' must be scalar, 1-D, or 2-D numeric data, got %T", param, value)
	}
}

func normalizeRows(param string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("'%s' must not be empty", param)
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("'%s' must not have empty rows", param)
	}
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("'%s' is ragged: row 0 has %d columns, row %d has %d", param, cols, i, len(row))
		}
	}
	out := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		for j, v := range row {
			out.Set(i, j, v)
		}
	}
	return normalizeDense(out), nil
}

// normalizeDense applies the row-to-column rule: a 1xn row with n>1 is
// folded into an (n,1) column, everything else is preserved.
func normalizeDense(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if r == 1 && c > 1 {
		out := mat.NewDense(c, 1, nil)
		for j := 0; j < c; j++ {
			out.Set(j, 0, v.At(0, j))
		}
		return out
	}
	return Clone(v)
}

// CommonShape resolves the target shape for a set of named values under
// the scalar-only broadcast policy: scalars adapt, all non-scalars must
// agree on a single shape.
func CommonShape(values map[string]*mat.Dense) (Shape, error) {
	target := Scalar
	fixed := false
	for _, v := range values {
		s := Of(v)
		if s.IsScalar() {
			continue
		}
		if fixed && s != target {
			return Shape{}, fmt.Errorf("inconsistent shapes: %s", describeShapes(values))
		}
		target = s
		fixed = true
	}
	return target, nil
}

func describeShapes(values map[string]*mat.Dense) string {
	out := ""
	for k, v := range values {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s=%s", k, Of(v))
	}
	return out
}

// BroadcastScalar expands a 1x1 value to the target shape; a non-scalar
// value must already match the target exactly.
func BroadcastScalar(param string, v *mat.Dense, target Shape) (*mat.Dense, error) {
	if IsScalar(v) {
		if target.IsScalar() {
			return Clone(v), nil
		}
		return Full(target, v.At(0, 0)), nil
	}
	if Of(v) != target {
		return nil, fmt.Errorf("'%s' shape %s is incompatible with target %s: only scalar (1,1) values broadcast",
			param, Of(v), target)
	}
	return Clone(v), nil
}

// AsColumn coerces a value to a strict (n,1) column: scalars become
// (1,1), columns pass through, anything wider is rejected.
func AsColumn(param string, v *mat.Dense) (*mat.Dense, error) {
	r, c := v.Dims()
	if c == 1 {
		return Clone(v), nil
	}
	if r == 1 && c > 1 {
		return normalizeDense(v), nil
	}
	return nil, fmt.Errorf("'%s' must be a column vector (n,1), got %s", param, Shape{r, c})
}

// Equal reports exact element-wise equality of two matrices of the same
// shape.
func Equal(a, b *mat.Dense) bool {
	if Of(a) != Of(b) {
		return false
	}
	return mat.Equal(a, b)
}
