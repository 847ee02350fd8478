package blocks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/signal"
)

// Params is a decoded parameter map for one block, as produced by the
// project loader from YAML. Keys are parameter names; values are
// scalars, nested slices, or already-normalized matrices.
type Params map[string]any

// Has reports whether the key is present and non-nil.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Float reads a scalar numeric parameter.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("'%s' must be a number, got %T", key, v)
	}
}

// Int reads an integer parameter. Float values must be whole.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("'%s' must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("'%s' must be an integer, got %T", key, v)
	}
}

// String reads a string parameter.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("'%s' must be a string, got %T", key, v)
	}
	return s, nil
}

// Matrix reads a numeric parameter and normalizes it to the 2-D signal
// convention. Returns (nil, false, nil) when the key is absent.
func (p Params) Matrix(key string) (*mat.Dense, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	norm, err := coerceNumeric(key, v)
	if err != nil {
		return nil, false, err
	}
	return norm, true, nil
}

// Dense reads a structural matrix parameter (system and gain matrices
// like A, B, C, K) keeping the written shape: nested rows stay exactly
// as given, a flat list is a (1,n) row, a scalar is (1,1). Signal
// values go through Matrix instead, which folds rows into columns.
func (p Params) Dense(key string) (*mat.Dense, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch raw := v.(type) {
	case float64:
		return signal.FromScalar(raw), true, nil
	case int:
		return signal.FromScalar(float64(raw)), true, nil
	case int64:
		return signal.FromScalar(float64(raw)), true, nil
	case *mat.Dense:
		return signal.Clone(raw), true, nil
	case []float64:
		if len(raw) == 0 {
			return nil, false, fmt.Errorf("'%s' must not be empty", key)
		}
		out := mat.NewDense(1, len(raw), nil)
		for j, n := range raw {
			out.Set(0, j, n)
		}
		return out, true, nil
	case [][]float64:
		out, err := denseRows(key, raw)
		return out, err == nil, err
	case []any:
		if len(raw) == 0 {
			return nil, false, fmt.Errorf("'%s' must not be empty", key)
		}
		if _, nested := raw[0].([]any); nested {
			rows := make([][]float64, len(raw))
			for i, rv := range raw {
				inner, ok := rv.([]any)
				if !ok {
					return nil, false, fmt.Errorf("'%s' mixes nested and flat rows", key)
				}
				row, err := floatSlice(key, inner)
				if err != nil {
					return nil, false, err
				}
				rows[i] = row
			}
			out, err := denseRows(key, rows)
			return out, err == nil, err
		}
		flat, err := floatSlice(key, raw)
		if err != nil {
			return nil, false, err
		}
		out := mat.NewDense(1, len(flat), nil)
		for j, n := range flat {
			out.Set(0, j, n)
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("'%s' must be scalar, 1-D, or 2-D numeric data, got %T", key, v)
	}
}

func denseRows(key string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("'%s' must not be empty", key)
	}
	cols := len(rows[0])
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("'%s' is ragged: row 0 has %d columns, row %d has %d", key, cols, i, len(row))
		}
	}
	out := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		for j, n := range row {
			out.Set(i, j, n)
		}
	}
	return out, nil
}

// MatrixOr reads a numeric parameter with a scalar default.
func (p Params) MatrixOr(key string, def float64) (*mat.Dense, error) {
	v, ok, err := p.Matrix(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return signal.FromScalar(def), nil
	}
	return v, nil
}

// coerceNumeric converts YAML-decoded values (scalars, []any, nested
// [][]any) into the forms signal.Normalize accepts.
func coerceNumeric(key string, v any) (*mat.Dense, error) {
	switch raw := v.(type) {
	case float64, int, []float64, [][]float64, *mat.Dense:
		return signal.Normalize(key, raw)
	case int64:
		return signal.Normalize(key, float64(raw))
	case []any:
		if len(raw) == 0 {
			return nil, fmt.Errorf("'%s' must not be empty", key)
		}
		if _, nested := raw[0].([]any); nested {
			rows := make([][]float64, len(raw))
			for i, rv := range raw {
				inner, ok := rv.([]any)
				if !ok {
					return nil, fmt.Errorf("'%s' mixes nested and flat rows", key)
				}
				row, err := floatSlice(key, inner)
				if err != nil {
					return nil, err
				}
				rows[i] = row
			}
			return signal.Normalize(key, rows)
		}
		flat, err := floatSlice(key, raw)
		if err != nil {
			return nil, err
		}
		return signal.Normalize(key, flat)
	default:
		return nil, fmt.Errorf("'%s' must be scalar, 1-D, or 2-D numeric data, got %T", key, v)
	}
}

func floatSlice(key string, vs []any) ([]float64, error) {
	out := make([]float64, len(vs))
	for i, v := range vs {
		switch n := v.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		case int64:
			out[i] = float64(n)
		default:
			return nil, fmt.Errorf("'%s' element %d must be a number, got %T", key, i, v)
		}
	}
	return out, nil
}
