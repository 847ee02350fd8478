package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ErrNotFound reports a run ID with no row in the database.
var ErrNotFound = errors.New("run not found")

// ListRuns returns every saved run, oldest first. Ties on the
// timestamp break on the run ID so the order is stable.
func (s *Store) ListRuns(ctx context.Context) ([]RunMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, created_at, dt, t0, horizon, ticks
		FROM runs
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunMeta{}
	for rows.Next() {
		m, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run's metadata.
func (s *Store) GetRun(ctx context.Context, id string) (RunMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, created_at, dt, t0, horizon, ticks
		FROM runs WHERE id = ?`, id)
	m, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunMeta{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return m, err
}

// Paths returns a run's logged paths in configuration order.
func (s *Store) Paths(ctx context.Context, runID string) ([]string, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM run_paths
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("paths of run %s: %w", runID, err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("paths of run %s: %w", runID, err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("paths of run %s: %w", runID, err)
	}
	return paths, nil
}

// ReadSignal returns one path's samples in tick order together with
// the matching time vector.
func (s *Store) ReadSignal(ctx context.Context, runID, path string) ([]float64, []*mat.Dense, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t, rows, cols, data FROM samples
		WHERE run_id = ? AND path = ?
		ORDER BY tick ASC`, runID, path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s of run %s: %w", path, runID, err)
	}
	defer rows.Close()

	times := []float64{}
	samples := []*mat.Dense{}
	for rows.Next() {
		var (
			t    float64
			r, c int
			data string
		)
		if err := rows.Scan(&t, &r, &c, &data); err != nil {
			return nil, nil, fmt.Errorf("read %s of run %s: %w", path, runID, err)
		}
		v, err := decodeValues(data, r, c)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s of run %s: %w", path, runID, err)
		}
		times = append(times, t)
		samples = append(samples, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s of run %s: %w", path, runID, err)
	}
	return times, samples, nil
}

func scanRun(row interface{ Scan(...any) error }) (RunMeta, error) {
	var (
		m  RunMeta
		ts string
	)
	if err := row.Scan(&m.ID, &m.Model, &ts, &m.DT, &m.T0, &m.Horizon, &m.Ticks); err != nil {
		return RunMeta{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return RunMeta{}, fmt.Errorf("run %s: bad created_at %q: %w", m.ID, ts, err)
	}
	m.CreatedAt = created
	return m, nil
}

func decodeValues(data string, rows, cols int) (*mat.Dense, error) {
	var vals []float64
	if err := json.Unmarshal([]byte(data), &vals); err != nil {
		return nil, err
	}
	if len(vals) != rows*cols {
		return nil, fmt.Errorf("sample holds %d values, want %dx%d", len(vals), rows, cols)
	}
	return mat.NewDense(rows, cols, vals), nil
}
