// Package runner executes a compiled program on its own OS thread.
//
// WHY A DEDICATED THREAD?
// The UI loop must keep servicing clicks and the Stop button while a
// learner's `while True:` spins. The program therefore runs on a fresh
// goroutine pinned with runtime.LockOSThread, so a busy program never
// shares an OS thread with anything else we run.
package runner

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"go.starlark.net/starlark"
)

// DefaultEntryPoint is called after the module body when it is defined.
const DefaultEntryPoint = "main"

// Env is everything a run needs besides the program.
type Env struct {
	// Name labels the thread in backtraces.
	Name string
	// Predeclared is the learner library.
	Predeclared starlark.StringDict
	// Stdout receives print() output, one line per call.
	Stdout io.Writer
	// EntryPoint is called after the module body if defined; "" means
	// DefaultEntryPoint, "-" disables it.
	EntryPoint string
	// Locals are attached to the thread for builtins to find.
	Locals map[string]any
}

// PanicError is a Go panic recovered from inside the program (a builtin
// misbehaved). It is reported as a fault like any other.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("runner: panic: %v", e.Value)
}

// Task is a running program.
type Task struct {
	done chan struct{}
	err  error
}

// Done is closed when the program has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err is the program's fault. Only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the program finishes or ctx is done. It does not
// stop the program; cancellation is the stop token's job.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts prog and returns immediately.
func Run(prog *starlark.Program, env Env) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(t.done)
		t.err = execute(prog, env)
	}()
	return t
}

func execute(prog *starlark.Program, env Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	thread := &starlark.Thread{
		Name:  env.Name,
		Print: printer(env.Stdout),
	}
	for k, v := range env.Locals {
		thread.SetLocal(k, v)
	}

	globals, err := prog.Init(thread, env.Predeclared)
	if err != nil {
		return err
	}

	entry := env.EntryPoint
	if entry == "" {
		entry = DefaultEntryPoint
	}
	if entry == "-" {
		return nil
	}
	fn, ok := globals[entry]
	if !ok {
		return nil
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return fmt.Errorf("%s is a %s, not a function", entry, fn.Type())
	}
	_, err = starlark.Call(thread, callable, nil, nil)
	return err
}

func printer(w io.Writer) func(*starlark.Thread, string) {
	if w == nil {
		w = io.Discard
	}
	return func(_ *starlark.Thread, msg string) {
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		_, _ = io.WriteString(w, msg)
	}
}
