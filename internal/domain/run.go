package domain

import (
	"sync/atomic"
	"time"
)

type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run represents one download from size discovery to digest
type Run struct {
	ID       string    `json:"id"`
	Endpoint string    `json:"endpoint"`
	Status   RunStatus `json:"status"`

	TotalLength uint32 `json:"total_length"`
	WindowCount int    `json:"window_count"`
	Workers     int    `json:"workers"`

	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest,omitempty"`

	BytesWritten atomic.Uint64 `json:"-"`
	Downloaded   uint64        `json:"bytes_written"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// LiveCopy returns a copy that is safe to hand out while the run is queued
// or downloading. Only fields fixed at creation are carried over.
func (r *Run) LiveCopy(status RunStatus) *Run {
	return &Run{
		ID:         r.ID,
		Endpoint:   r.Endpoint,
		Status:     status,
		Workers:    r.Workers,
		Algorithm:  r.Algorithm,
		Downloaded: r.BytesWritten.Load(),
	}
}

// Result is what a successful download hands back to the caller.
type Result struct {
	RunID    string
	Resource Resource
	Windows  []Window
	Data     []byte
	Digest   Digest
}
