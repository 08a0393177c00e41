// Package stop implements cooperative cancellation for learner programs.
//
// WHY COOPERATIVE?
// Go has no way to kill a goroutine from the outside, and even if it did,
// killing a program halfway through a canvas update would leave the scene
// and the redirected streams in a mess. Instead the Stop button flips a
// flag, and the program notices it the next time it calls
// stop_if_button_pressed() or sleep(). Noticing it means returning
// ErrStopped, which unwinds the interpreter like any other error.
//
// TOKENS:
// Every run gets a fresh Token. The process-wide Signal points at the
// token of the run that is active right now. Signalling an old token after
// its run has finished does nothing to the next run.
package stop

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is the cancellation fault raised inside a stopped program.
var ErrStopped = errors.New("program stopped")

// ErrTokenActive is returned when a token is registered while another run's
// token is still current.
var ErrTokenActive = errors.New("stop: another token is still active")

var tokenSeq atomic.Uint64

// Token is the cancellation state of one run.
type Token struct {
	id       uint64
	signaled atomic.Bool
	done     chan struct{}
	once     sync.Once
}

// NewToken returns an unsignalled token.
func NewToken() *Token {
	return &Token{
		id:   tokenSeq.Add(1),
		done: make(chan struct{}),
	}
}

// ID is a process-unique sequence number, handy in logs.
func (t *Token) ID() uint64 { return t.id }

// Signal requests cancellation. Idempotent.
func (t *Token) Signal() {
	t.once.Do(func() {
		t.signaled.Store(true)
		close(t.done)
	})
}

// Signaled reports whether Signal has been called.
func (t *Token) Signaled() bool { return t.signaled.Load() }

// Done is closed when the token is signalled.
func (t *Token) Done() <-chan struct{} { return t.done }

// Signal holds the token of the active run. The zero value is ready to use.
type Signal struct {
	current atomic.Pointer[Token]
}

// SetCurrentToken registers t as the active run's token.
func (s *Signal) SetCurrentToken(t *Token) error {
	if !s.current.CompareAndSwap(nil, t) {
		return ErrTokenActive
	}
	return nil
}

// ClearToken unregisters t. A stale clear (t is no longer current) is a
// no-op.
func (s *Signal) ClearToken(t *Token) {
	s.current.CompareAndSwap(t, nil)
}

// Current returns the active token, or nil between runs.
func (s *Signal) Current() *Token {
	return s.current.Load()
}

// RequestStop signals the active token. It reports false when nothing is
// running.
func (s *Signal) RequestStop() bool {
	t := s.current.Load()
	if t == nil {
		return false
	}
	t.Signal()
	return true
}

// StopIfButtonPressed returns ErrStopped once the active run has been
// asked to stop, and nil otherwise (including when no run is active).
// It is called in tight learner loops, so it is two atomic loads.
func (s *Signal) StopIfButtonPressed() error {
	if t := s.current.Load(); t != nil && t.Signaled() {
		return ErrStopped
	}
	return nil
}

// Sleep pauses for d, waking early with ErrStopped if the active run is
// stopped meanwhile.
func (s *Signal) Sleep(d time.Duration) error {
	t := s.current.Load()
	if t == nil {
		time.Sleep(d)
		return nil
	}
	if t.Signaled() {
		return ErrStopped
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-t.Done():
		return ErrStopped
	}
}
