// Package executor runs one learner program from source to outcome.
//
// THE TWO PIECES:
//   - ExecutionContext owns everything a run borrows from the IDE: the UI
//     dispatch bridge, the canvas, the console streams and a stop token.
//     Init lends them out and Dispose gives them back.
//   - Service.Execute is the algorithm: compile, and only when that
//     succeeds, init a context, run on a dedicated thread, classify the
//     outcome, dispose.
//
// OUTCOMES ARE NOT ERRORS:
// A program that stops because the learner pressed Stop, or that divides
// by zero, is a normal Report. The Go error return is kept for host
// problems (the context could not be set up), which the caller should
// log and surface as a 500.
package executor

import (
	"context"
	"time"

	"github.com/sakif/livecanvas/internal/compiler"
)

// Status is how a run ended.
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusStopped       Status = "stopped"
	StatusFaulted       Status = "faulted"
	StatusCompileFailed Status = "compile_failed"
)

// Report describes a finished run.
type Report struct {
	Status      Status                `json:"status"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
	Err         error                 `json:"-"`
	Started     time.Time             `json:"started"`
	Duration    time.Duration         `json:"duration"`
}

// ErrorText is the fault message, or "" when there is none.
func (r *Report) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Executor is what the run service depends on. *Service implements it;
// tests substitute a fake.
type Executor interface {
	Execute(ctx context.Context, src string, ec *ExecutionContext) (*Report, error)
}

var _ Executor = (*Service)(nil)
