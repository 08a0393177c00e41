package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/compiler"
	"github.com/sakif/livecanvas/internal/executor"
	"github.com/sakif/livecanvas/internal/model"
	"github.com/sakif/livecanvas/internal/repository"
)

// StateRunning is reported while a program has not finished yet. Finished
// runs report their executor.Status.
const StateRunning = "running"

// keepResults is how many finished runs Wait can still look up.
const keepResults = 64

// ContextSource hands out a fresh execution context per run.
// *session.Session implements it.
type ContextSource interface {
	NewExecutionContext() *executor.ExecutionContext
}

// StartRequest is one press of the Run button.
type StartRequest struct {
	Code     string
	SketchID string
	UserID   string
}

// RunStatus is what the API and the websocket report about a run.
type RunStatus struct {
	ID          string                `json:"id"`
	SketchID    string                `json:"sketchId,omitempty"`
	State       string                `json:"state"`
	StartedAt   time.Time             `json:"startedAt"`
	DurationMS  int64                 `json:"durationMs,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Finished reports whether the run is over.
func (s RunStatus) Finished() bool { return s.State != StateRunning }

type activeRun struct {
	status RunStatus
	userID string
	ec     *executor.ExecutionContext
	cancel context.CancelFunc
	done   chan struct{}
}

// RunService lets at most one program run at a time, the way the IDE has
// one canvas and one Run button. Runs outlive the HTTP request that
// started them; Shutdown stops whatever is still running.
type RunService struct {
	exec    executor.Executor
	source  ContextSource
	runs    repository.RunRepository
	logger  *slog.Logger
	baseCtx context.Context
	stopAll context.CancelFunc

	mu        sync.Mutex
	active    *activeRun
	observers []func(RunStatus)

	results *xsync.MapOf[string, RunStatus]
	order   []string // result IDs, oldest first; guarded by mu
}

func NewRunService(exec executor.Executor, source ContextSource, runs repository.RunRepository, logger *slog.Logger) *RunService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunService{
		exec:    exec,
		source:  source,
		runs:    runs,
		logger:  logger,
		baseCtx: ctx,
		stopAll: cancel,
		results: xsync.NewMapOf[string, RunStatus](),
	}
}

// Observe registers fn for every status change: once when a run starts
// and once when it finishes. fn must not block.
func (s *RunService) Observe(fn func(RunStatus)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Start launches req.Code and returns the run ID without waiting for it.
// A second Start while a program is running is a conflict.
func (s *RunService) Start(ctx context.Context, req StartRequest) (string, error) {
	if strings.TrimSpace(req.Code) == "" {
		return "", apperror.ValidationFailed("code", "there is no code to run")
	}
	if len(req.Code) > MaxCodeLength {
		return "", apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	if err := s.baseCtx.Err(); err != nil {
		return "", fmt.Errorf("service: run service is shut down: %w", err)
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return "", apperror.Conflict("a program is already running; stop it first")
	}
	runCtx, cancel := context.WithCancel(s.baseCtx)
	run := &activeRun{
		status: RunStatus{
			ID:        xid.New().String(),
			SketchID:  req.SketchID,
			State:     StateRunning,
			StartedAt: time.Now(),
		},
		userID: req.UserID,
		ec:     s.source.NewExecutionContext(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active = run
	observers := s.observers
	s.mu.Unlock()

	notify(observers, run.status)
	s.logger.Info("run started",
		slog.String("run", run.status.ID),
		slog.String("sketch", req.SketchID),
		slog.String("request", requestID(ctx)),
	)

	go s.execute(runCtx, run, req.Code)
	return run.status.ID, nil
}

func (s *RunService) execute(ctx context.Context, run *activeRun, code string) {
	defer run.cancel()

	status := run.status
	report, err := s.exec.Execute(ctx, code, run.ec)
	if err != nil {
		s.logger.Error("run could not start", slog.String("run", status.ID), slog.String("error", err.Error()))
		status.State = string(executor.StatusFaulted)
		status.Error = err.Error()
		status.DurationMS = time.Since(status.StartedAt).Milliseconds()
	} else {
		status.State = string(report.Status)
		status.Error = report.ErrorText()
		status.Diagnostics = report.Diagnostics
		status.DurationMS = report.Duration.Milliseconds()
	}

	s.record(status, run.userID)

	s.mu.Lock()
	s.remember(status)
	s.active = nil
	observers := s.observers
	s.mu.Unlock()
	close(run.done)

	notify(observers, status)
}

// record writes the history entry. It uses its own context: the request
// that started the run is long gone.
func (s *RunService) record(status RunStatus, userID string) {
	if s.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.runs.CreateRun(ctx, &model.Run{
		ID:          status.ID,
		SketchID:    status.SketchID,
		UserID:      userID,
		Status:      status.State,
		Diagnostics: len(status.Diagnostics),
		Error:       status.Error,
		StartedAt:   status.StartedAt,
		Duration:    time.Duration(status.DurationMS) * time.Millisecond,
	})
	if err != nil {
		s.logger.Error("failed to record run", slog.String("run", status.ID), slog.String("error", err.Error()))
	}
}

// remember keeps the last keepResults statuses. Caller holds mu.
func (s *RunService) remember(status RunStatus) {
	s.results.Store(status.ID, status)
	s.order = append(s.order, status.ID)
	if len(s.order) > keepResults {
		s.results.Delete(s.order[0])
		s.order = s.order[1:]
	}
}

// Stop asks the running program to stop. It returns a conflict when
// nothing is running.
func (s *RunService) Stop() (string, error) {
	s.mu.Lock()
	run := s.active
	s.mu.Unlock()
	if run == nil {
		return "", apperror.Conflict("no program is running")
	}

	// Before Init the token does not exist yet; cancelling the run's
	// context makes Execute signal it as soon as it does.
	if tok := run.ec.Token(); tok != nil {
		tok.Signal()
	} else {
		run.cancel()
	}
	s.logger.Info("stop requested", slog.String("run", run.status.ID))
	return run.status.ID, nil
}

// Active reports the running program, if any.
func (s *RunService) Active() (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return RunStatus{}, false
	}
	st := s.active.status
	st.DurationMS = time.Since(st.StartedAt).Milliseconds()
	return st, true
}

// Status looks up a running or recently finished run.
func (s *RunService) Status(runID string) (RunStatus, error) {
	if st, ok := s.Active(); ok && st.ID == runID {
		return st, nil
	}
	if st, ok := s.results.Load(runID); ok {
		return st, nil
	}
	return RunStatus{}, apperror.NotFound("run", runID)
}

// Wait blocks until runID has finished and returns its final status.
func (s *RunService) Wait(ctx context.Context, runID string) (RunStatus, error) {
	s.mu.Lock()
	run := s.active
	s.mu.Unlock()

	if run != nil && run.status.ID == runID {
		select {
		case <-run.done:
		case <-ctx.Done():
			return RunStatus{}, ctx.Err()
		}
	}
	if st, ok := s.results.Load(runID); ok {
		return st, nil
	}
	return RunStatus{}, apperror.NotFound("run", runID)
}

// Recent lists run history, newest first.
func (s *RunService) Recent(ctx context.Context, limit, offset int, userID string) ([]model.Run, error) {
	if s.runs == nil {
		return []model.Run{}, nil
	}
	limit, offset = clampList(limit, offset)
	runs, err := s.runs.ListRuns(ctx, repository.ListOptions{Limit: limit, Offset: offset, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("service: listing runs: %w", err)
	}
	return runs, nil
}

// Shutdown stops the running program and waits for it to wind down, or
// for ctx to expire. No new runs start afterwards.
func (s *RunService) Shutdown(ctx context.Context) error {
	s.stopAll()

	s.mu.Lock()
	run := s.active
	s.mu.Unlock()
	if run == nil {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("service: waiting for run %s: %w", run.status.ID, ctx.Err())
	}
}

func notify(observers []func(RunStatus), st RunStatus) {
	for _, fn := range observers {
		fn(st)
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx so run logs can be tied to the HTTP request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
