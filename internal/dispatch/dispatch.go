// Package dispatch moves work onto the UI thread.
//
// THE PROBLEM:
// The canvas scene, the console view and the input store's timers are owned
// by ONE goroutine (the "UI thread"). A learner program runs on a different,
// dedicated goroutine. Whenever that program draws a circle or prints a line,
// the work has to hop across to the UI thread, either fire-and-forget (Post)
// or wait-for-result (Invoke).
//
// THE PIECES:
//   - Bridge:  the interface both sides program against
//   - Loop:    the real UI thread, a message loop with two priority lanes
//   - Direct:  the "no UI" bridge, every call runs inline on the caller
//   - Gateway: the holder the rest of the engine talks to; it is armed for
//     the duration of a run and falls back to inline calls otherwise
//
// PRIORITY:
// Input events (mouse, keys, the Stop button, timers) always run before
// background work posted by a running program. A program that floods the
// loop with draw calls therefore cannot starve the Stop button.
//
// DEADLOCK RULE:
// A function passed to Invoke or Call must only read UI state. It must
// never dispatch again or wait on the execution thread.
package dispatch

import "errors"

var (
	// ErrClosed is returned by Invoke when the loop has shut down before
	// (or while) the function could run.
	ErrClosed = errors.New("dispatch: ui loop closed")

	// ErrAlreadyInitialized is returned by Gateway.Init when a different
	// bridge is already armed.
	ErrAlreadyInitialized = errors.New("dispatch: gateway already initialized")

	// ErrRunning is returned by Loop.Run when the loop is already running.
	ErrRunning = errors.New("dispatch: ui loop already running")
)

// Bridge hands functions to the UI thread.
type Bridge interface {
	// Post enqueues fn at background priority and returns immediately.
	Post(fn func())
	// Invoke runs fn on the UI thread and blocks until it has returned.
	Invoke(fn func()) error
	// IsUIThread reports whether the caller is already on the UI thread.
	IsUIThread() bool
}

// Direct is the bridge used when there is no UI loop at all (tests, the
// check command). Every call runs inline on the calling goroutine.
type Direct struct{}

var _ Bridge = Direct{}

func (Direct) Post(fn func())         { fn() }
func (Direct) Invoke(fn func()) error { fn(); return nil }
func (Direct) IsUIThread() bool       { return true }
