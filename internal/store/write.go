package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blockstep/blockstep/internal/sim"
)

// RunMeta describes one saved run.
type RunMeta struct {
	ID        string
	Model     string
	CreatedAt time.Time
	DT        float64
	T0        float64
	Horizon   float64
	Ticks     int
}

// SaveResult writes one run and its recorded series in a single
// transaction and returns the run ID. A zero meta.ID gets a fresh
// UUID; re-saving an existing ID is a no-op.
func (s *Store) SaveResult(ctx context.Context, meta RunMeta, res *sim.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("save run: nil result")
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.Ticks = res.Len()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save of run %s: %w", meta.ID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, model, created_at, dt, t0, horizon, ticks)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		meta.ID, meta.Model, meta.CreatedAt.UTC().Format(time.RFC3339Nano),
		meta.DT, meta.T0, meta.Horizon, meta.Ticks)
	if err != nil {
		return "", fmt.Errorf("insert run %s: %w", meta.ID, err)
	}

	pathStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_paths (run_id, seq, path)
		VALUES (?, ?, ?)
		ON CONFLICT (run_id, seq) DO NOTHING`)
	if err != nil {
		return "", fmt.Errorf("prepare path insert: %w", err)
	}
	defer pathStmt.Close()

	sampleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, path, tick, t, rows, cols, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, path, tick) DO NOTHING`)
	if err != nil {
		return "", fmt.Errorf("prepare sample insert: %w", err)
	}
	defer sampleStmt.Close()

	times := res.Time()
	for seq, path := range res.Paths() {
		if _, err := pathStmt.ExecContext(ctx, meta.ID, seq, path); err != nil {
			return "", fmt.Errorf("insert path %s of run %s: %w", path, meta.ID, err)
		}
		series, _ := res.Series(path)
		for tick, v := range series {
			r, c := v.Dims()
			data, err := encodeValues(v.RawMatrix().Data, r, c, v.RawMatrix().Stride)
			if err != nil {
				return "", fmt.Errorf("encode sample %s[%d] of run %s: %w", path, tick, meta.ID, err)
			}
			_, err = sampleStmt.ExecContext(ctx, meta.ID, path, tick, times[tick], r, c, data)
			if err != nil {
				return "", fmt.Errorf("insert sample %s[%d] of run %s: %w", path, tick, meta.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run %s: %w", meta.ID, err)
	}
	return meta.ID, nil
}

// encodeValues serializes a matrix backing slice to a row-major JSON
// array, compacting away any stride padding.
func encodeValues(raw []float64, rows, cols, stride int) (string, error) {
	vals := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		vals = append(vals, raw[i*stride:i*stride+cols]...)
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
