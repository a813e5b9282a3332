package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/datallboy/rangefetch/internal/domain"
)

const runColumns = `id, endpoint, status, total_length, window_count, workers, algorithm, digest, bytes_written, error, started_at, finished_at`

// SaveRun inserts run or updates the row with the same id.
func (s *PersistentStore) SaveRun(run *domain.Run) error {
	var dbo runDBO
	dbo.FromDomain(run)

	query := `INSERT INTO runs (` + runColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT (id) DO UPDATE SET
                  status = excluded.status,
                  total_length = excluded.total_length,
                  window_count = excluded.window_count,
                  digest = excluded.digest,
                  bytes_written = excluded.bytes_written,
                  error = excluded.error,
                  started_at = excluded.started_at,
                  finished_at = excluded.finished_at`

	_, err := s.db.Exec(s.rebind(query),
		dbo.ID,
		dbo.Endpoint,
		dbo.Status,
		dbo.TotalLength,
		dbo.WindowCount,
		dbo.Workers,
		dbo.Algorithm,
		dbo.Digest,
		dbo.BytesWritten,
		dbo.Error,
		dbo.StartedAt,
		dbo.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns nil, nil when no run has the given id.
func (s *PersistentStore) GetRun(id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ? LIMIT 1`

	run, err := scanRun(s.db.QueryRow(s.rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Return nil, nil to indicate "Not found"
		}
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. KSUIDs sort by creation time.
func (s *PersistentStore) ListRuns(limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC LIMIT ?`

	rows, err := s.db.Query(s.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var dbo runDBO
	err := row.Scan(
		&dbo.ID, &dbo.Endpoint, &dbo.Status, &dbo.TotalLength, &dbo.WindowCount, &dbo.Workers,
		&dbo.Algorithm, &dbo.Digest, &dbo.BytesWritten, &dbo.Error, &dbo.StartedAt, &dbo.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return dbo.ToDomain(), nil
}
