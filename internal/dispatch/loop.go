package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Loop is the UI thread: a single goroutine draining two FIFO queues.
//
// The queues are unbounded slices guarded by a mutex, so Post never blocks
// the execution thread even when the loop is busy. A 1-slot wake channel
// tells the loop there is something new to look at.
type Loop struct {
	logger *slog.Logger

	mu         sync.Mutex
	input      []func()
	background []func()

	wake      chan struct{}
	done      chan struct{}
	ready     chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	id        atomic.Uint64 // goroutine id of Run, 0 when not running
}

var _ Bridge = (*Loop)(nil)

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
}

// Run makes the calling goroutine the UI thread and processes work until
// ctx is cancelled or Close is called. Work still queued at that point is
// dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	l.id.Store(goid())
	close(l.ready)
	defer l.id.Store(0)
	defer l.Close()

	l.logger.Info("ui loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("ui loop stopped", slog.String("reason", ctx.Err().Error()))
			return nil
		case <-l.done:
			l.logger.Info("ui loop stopped", slog.String("reason", "closed"))
			return nil
		default:
		}

		if fn, ok := l.next(); ok {
			l.call(fn)
			continue
		}

		select {
		case <-ctx.Done():
		case <-l.done:
		case <-l.wake:
		}
	}
}

// Ready is closed once Run has claimed the UI thread.
func (l *Loop) Ready() <-chan struct{} {
	return l.ready
}

// Done is closed when the loop has been closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close stops the loop. Safe to call more than once and from any goroutine.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		l.input = nil
		l.background = nil
		l.mu.Unlock()
	})
}

// Post enqueues fn on the background lane.
func (l *Loop) Post(fn func()) {
	l.enqueue(false, fn)
}

// PostInput enqueues fn on the input lane, ahead of all background work.
func (l *Loop) PostInput(fn func()) {
	l.enqueue(true, fn)
}

// Invoke runs fn on the UI thread and waits for it. Called from the UI
// thread itself, fn runs inline (waiting on our own queue would deadlock).
func (l *Loop) Invoke(fn func()) error {
	if l.IsUIThread() {
		fn()
		return nil
	}

	finished := make(chan struct{})
	var panicErr error
	ok := l.enqueue(false, func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				panicErr = fmt.Errorf("dispatch: invoked function panicked: %v", r)
			}
		}()
		fn()
	})
	if !ok {
		return ErrClosed
	}

	select {
	case <-finished:
		return panicErr
	case <-l.done:
		return ErrClosed
	}
}

// IsUIThread reports whether the caller is the goroutine running Run.
func (l *Loop) IsUIThread() bool {
	id := l.id.Load()
	return id != 0 && id == goid()
}

// AfterFunc runs fn on the UI thread (input lane) once d has elapsed.
// The returned cancel func reports whether the timer was stopped before it
// fired; once fired, fn may already be sitting in the queue.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (cancel func() bool) {
	t := time.AfterFunc(d, func() { l.PostInput(fn) })
	return t.Stop
}

func (l *Loop) enqueue(input bool, fn func()) bool {
	l.mu.Lock()
	select {
	case <-l.done:
		l.mu.Unlock()
		return false
	default:
	}
	if input {
		l.input = append(l.input, fn)
	} else {
		l.background = append(l.background, fn)
	}
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.input) > 0 {
		fn := l.input[0]
		l.input[0] = nil
		l.input = l.input[1:]
		return fn, true
	}
	if len(l.background) > 0 {
		fn := l.background[0]
		l.background[0] = nil
		l.background = l.background[1:]
		return fn, true
	}
	return nil, false
}

// call runs one unit of work. A panic in posted work is logged and
// swallowed so one bad callback does not take the UI thread down.
func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("ui callback panicked", slog.Any("panic", r))
		}
	}()
	fn()
}
