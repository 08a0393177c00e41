package model

import "time"

// Run is the history entry for one program execution.
type Run struct {
	ID          string        `json:"id"`
	SketchID    string        `json:"sketchId,omitempty"`
	UserID      string        `json:"userId,omitempty"`
	Status      string        `json:"status"` // executor.Status
	Diagnostics int           `json:"diagnostics"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"durationMs"`
}
