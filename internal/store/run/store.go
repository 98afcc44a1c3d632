package run

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record is one persisted Generate call. Result holds the marshalled
// orchestrator result and stays empty until the run ends.
type Record struct {
	ID        string          `json:"id"`
	Mode      string          `json:"mode"`
	Strategy  string          `json:"strategy,omitempty"`
	Status    Status          `json:"status"`
	Items     int             `json:"items"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Finished reports whether the record will not change anymore.
func (r Record) Finished() bool {
	return r.Status != "" && r.Status != StatusRunning
}

// Store persists run records.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
}

var (
	ErrNotFound  = errors.New("run not found")
	ErrMissingID = errors.New("run id is required")
)

func normalize(rec Record, now time.Time) (Record, error) {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return Record{}, ErrMissingID
	}
	if rec.Status == "" {
		rec.Status = StatusRunning
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return rec, nil
}
