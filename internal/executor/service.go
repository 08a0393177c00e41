package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.starlark.net/starlark"

	"github.com/sakif/livecanvas/internal/compiler"
	"github.com/sakif/livecanvas/internal/console"
	"github.com/sakif/livecanvas/internal/dispatch"
	"github.com/sakif/livecanvas/internal/library"
	"github.com/sakif/livecanvas/internal/runner"
	"github.com/sakif/livecanvas/internal/stop"
)

// StoppedNotice is printed to the console when the learner stops a run.
const StoppedNotice = "Program stopped."

// DiagnosticsSink receives compiler messages and unhandled faults.
type DiagnosticsSink interface {
	Diagnostic(msg string)
	Notice(msg string)
}

// ConsoleDiagnostics writes diagnostics into the console view on the UI
// thread. It posts through the bridge directly, not the gateway, so
// messages emitted after the context is disposed still land on the UI
// thread.
type ConsoleDiagnostics struct {
	Bridge dispatch.Bridge
	Sink   console.Sink
}

func (d ConsoleDiagnostics) Diagnostic(msg string) { d.write(console.Diagnostic, msg) }
func (d ConsoleDiagnostics) Notice(msg string)     { d.write(console.Notice, msg) }

func (d ConsoleDiagnostics) write(stream console.Stream, msg string) {
	text := msg + "\n"
	if d.Bridge == nil || d.Bridge.IsUIThread() {
		d.Sink.Write(stream, text)
		return
	}
	d.Bridge.Post(func() { d.Sink.Write(stream, text) })
}

// Config tunes the service.
type Config struct {
	Filename   string
	EntryPoint string
}

// Service compiles and runs programs.
type Service struct {
	cfg         Config
	diagnostics DiagnosticsSink
	logger      *slog.Logger
}

func NewService(cfg Config, diagnostics DiagnosticsSink, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, diagnostics: diagnostics, logger: logger}
}

// Compile only checks src. Used by the check command and the API.
func (s *Service) Compile(src string) (*compiler.Result, error) {
	return compiler.Compile(src, compiler.Options{
		Filename:    s.cfg.Filename,
		Predeclared: library.IsPredeclared,
	})
}

// Execute runs src inside ec and reports how it ended.
//
// A compile failure never touches ec: no context is initialised and no
// thread is started. Otherwise ec is initialised here and always disposed
// before Execute returns, on every path.
func (s *Service) Execute(ctx context.Context, src string, ec *ExecutionContext) (*Report, error) {
	started := time.Now()

	res, err := s.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("executor: compiling: %w", err)
	}
	if !res.Success {
		for _, d := range res.Diagnostics {
			s.diagnostics.Diagnostic(d.String())
		}
		s.logger.Info("program did not compile", slog.Int("diagnostics", len(res.Diagnostics)))
		return &Report{
			Status:      StatusCompileFailed,
			Diagnostics: res.Diagnostics,
			Started:     started,
			Duration:    time.Since(started),
		}, nil
	}

	if err := ec.Init(); err != nil {
		return nil, fmt.Errorf("executor: initialising context: %w", err)
	}
	dispose := func() {
		if err := ec.Dispose(); err != nil {
			s.logger.Error("disposing execution context", slog.String("error", err.Error()))
		}
	}
	defer dispose()

	tok := ec.Token()
	s.logger.Info("program started", slog.Uint64("token", tok.ID()))

	task := runner.Run(res.Program, runner.Env{
		Name:        s.cfg.Filename,
		Predeclared: library.New(ec.Host()),
		Stdout:      ec.Stdout(),
		EntryPoint:  s.cfg.EntryPoint,
	})

	runErr := task.Wait(ctx)
	if runErr != nil && ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		// The host is going away. Ask the program to stop and wait for it
		// to unwind so Dispose runs after the program is done with ec.
		tok.Signal()
		<-task.Done()
		runErr = task.Err()
	}

	// Dispose before reporting: restoring the console drains the program's
	// output, so diagnostics land after it.
	dispose()

	report := &Report{Started: started, Err: runErr}
	switch {
	case runErr == nil:
		report.Status = StatusCompleted
	case errors.Is(runErr, stop.ErrStopped):
		report.Status = StatusStopped
		report.Err = nil
		s.diagnostics.Notice(StoppedNotice)
	default:
		report.Status = StatusFaulted
		s.diagnostics.Diagnostic("Unhandled error: " + describe(runErr))
	}
	report.Duration = time.Since(started)

	s.logger.Info("program finished",
		slog.Uint64("token", tok.ID()),
		slog.String("status", string(report.Status)),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// describe renders a fault the way a learner wants to read it: the
// Starlark backtrace when there is one.
func describe(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}
