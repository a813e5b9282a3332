package store

import (
	"database/sql"
	"time"

	"github.com/datallboy/rangefetch/internal/domain"
)

// runDBO maps to the runs table
type runDBO struct {
	ID           string         `db:"id"`
	Endpoint     string         `db:"endpoint"`
	Status       string         `db:"status"`
	TotalLength  int64          `db:"total_length"`
	WindowCount  int            `db:"window_count"`
	Workers      int            `db:"workers"`
	Algorithm    string         `db:"algorithm"`
	Digest       sql.NullString `db:"digest"`
	BytesWritten int64          `db:"bytes_written"`
	Error        sql.NullString `db:"error"`
	StartedAt    int64          `db:"started_at"`
	FinishedAt   int64          `db:"finished_at"`
}

// Mapper: DBO to Domain Run
func (r *runDBO) ToDomain() *domain.Run {
	run := &domain.Run{
		ID:          r.ID,
		Endpoint:    r.Endpoint,
		Status:      domain.RunStatus(r.Status),
		TotalLength: uint32(r.TotalLength),
		WindowCount: r.WindowCount,
		Workers:     r.Workers,
		Algorithm:   r.Algorithm,
		Digest:      r.Digest.String,
		Downloaded:  uint64(r.BytesWritten),
		Error:       r.Error.String,
		StartedAt:   fromMillis(r.StartedAt),
		FinishedAt:  fromMillis(r.FinishedAt),
	}
	run.BytesWritten.Store(run.Downloaded)
	return run
}

// Mapper: Domain Run to DBO
func (r *runDBO) FromDomain(run *domain.Run) {
	r.ID = run.ID
	r.Endpoint = run.Endpoint
	r.Status = string(run.Status)
	r.TotalLength = int64(run.TotalLength)
	r.WindowCount = run.WindowCount
	r.Workers = run.Workers
	r.Algorithm = run.Algorithm
	r.Digest = sql.NullString{String: run.Digest, Valid: run.Digest != ""}
	r.BytesWritten = int64(run.BytesWritten.Load())
	r.Error = sql.NullString{String: run.Error, Valid: run.Error != ""}
	r.StartedAt = toMillis(run.StartedAt)
	r.FinishedAt = toMillis(run.FinishedAt)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
