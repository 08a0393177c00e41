// Package session owns the long-lived parts of one IDE: the UI loop, the
// canvas, the console, the input store and the stop signal.
//
// A Session outlives every run. Each run borrows its parts through an
// executor.ExecutionContext built by NewExecutionContext, and gives them
// back when the context is disposed. Browser input arrives as Events and
// is applied on the UI thread, ahead of any queued drawing work.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/console"
	"github.com/sakif/livecanvas/internal/dispatch"
	"github.com/sakif/livecanvas/internal/executor"
	"github.com/sakif/livecanvas/internal/input"
	"github.com/sakif/livecanvas/internal/sound"
	"github.com/sakif/livecanvas/internal/stop"
)

var ErrUnknownEvent = errors.New("session: unknown event type")

// EventType names a browser event.
type EventType string

const (
	EventPointer EventType = "pointer" // pointer moved; Inside=false when it left the canvas
	EventButton  EventType = "button"  // button pressed (Down) or released
	EventClick   EventType = "click"
	EventKey     EventType = "key" // key pressed (Down) or released
	EventResize  EventType = "resize"
	EventStdin   EventType = "stdin" // a line typed into the console
	EventStop    EventType = "stop"  // the Stop button
)

// Event is one input event from the browser. Which fields matter depends
// on Type.
type Event struct {
	Type   EventType `json:"type"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	Inside bool      `json:"inside,omitempty"`
	Button string    `json:"button,omitempty"`
	Down   bool      `json:"down,omitempty"`
	Key    string    `json:"key,omitempty"`
	Width  float64   `json:"width,omitempty"`
	Height float64   `json:"height,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// Options sizes a new session.
type Options struct {
	Canvas     canvas.Size
	Input      input.Config
	Scrollback int
}

type Session struct {
	logger  *slog.Logger
	loop    *dispatch.Loop
	gateway *dispatch.Gateway
	scene   *canvas.Scene
	console *console.Buffer
	input   *input.Store
	signal  *stop.Signal

	mu             sync.RWMutex
	sceneObservers []func(canvas.Op)
	toneObservers  []func(sound.Tone)
}

func New(opts Options, logger *slog.Logger) *Session {
	loop := dispatch.NewLoop(logger)
	s := &Session{
		logger:  logger,
		loop:    loop,
		gateway: dispatch.NewGateway(),
		scene:   canvas.NewScene(opts.Canvas),
		console: console.NewBuffer(opts.Scrollback),
		input:   input.New(opts.Input, loop),
		signal:  &stop.Signal{},
	}
	// Safe here: the loop is not running yet, so this goroutine is the
	// only one touching the scene.
	s.scene.SetObserver(s.fanOutOp)
	return s
}

// Run drives the UI loop on the calling goroutine until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	return s.loop.Run(ctx)
}

func (s *Session) Loop() *dispatch.Loop { return s.loop }

func (s *Session) Console() *console.Buffer { return s.console }

func (s *Session) Signal() *stop.Signal { return s.signal }

func (s *Session) Input() *input.Store { return s.input }

// NewExecutionContext builds a fresh context over the session's parts.
// Contexts are single use; make one per run.
func (s *Session) NewExecutionContext() *executor.ExecutionContext {
	return executor.NewExecutionContext(executor.Resources{
		Bridge:  s.loop,
		Gateway: s.gateway,
		Surface: s.scene,
		Console: s.console,
		Input:   s.input,
		Signal:  s.signal,
		Sound:   sound.PlayerFunc(s.fanOutTone),
	})
}

// Diagnostics writes compiler messages and faults into the console.
func (s *Session) Diagnostics() executor.DiagnosticsSink {
	return executor.ConsoleDiagnostics{Bridge: s.loop, Sink: s.console}
}

// OnSceneOp registers fn for every scene mutation. fn runs on the UI
// thread and must not block.
func (s *Session) OnSceneOp(fn func(canvas.Op)) {
	s.mu.Lock()
	s.sceneObservers = append(s.sceneObservers, fn)
	s.mu.Unlock()
}

// OnConsole registers fn for every console chunk.
func (s *Session) OnConsole(fn func(console.Chunk)) {
	s.console.Observe(fn)
}

// OnTone registers fn for every tone a program plays.
func (s *Session) OnTone(fn func(sound.Tone)) {
	s.mu.Lock()
	s.toneObservers = append(s.toneObservers, fn)
	s.mu.Unlock()
}

func (s *Session) fanOutOp(op canvas.Op) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.sceneObservers {
		fn(op)
	}
}

func (s *Session) fanOutTone(t sound.Tone) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.toneObservers {
		fn(t)
	}
}

// Snapshot copies the scene on the UI thread.
func (s *Session) Snapshot() (canvas.Snapshot, error) {
	var snap canvas.Snapshot
	if err := s.loop.Invoke(func() { snap = s.scene.Snapshot() }); err != nil {
		return canvas.Snapshot{}, fmt.Errorf("session: reading scene: %w", err)
	}
	return snap, nil
}

// Attach calls fn on the UI thread with the current scene and console.
// Scene ops and console chunks are produced on that thread too, so an
// observer fn registers sees exactly what comes after the state it got.
func (s *Session) Attach(fn func(canvas.Snapshot, []console.Chunk)) error {
	if err := s.loop.Invoke(func() { fn(s.scene.Snapshot(), s.console.Chunks()) }); err != nil {
		return fmt.Errorf("session: attaching: %w", err)
	}
	return nil
}

// HandleEvent validates ev and queues it on the UI thread's input lane.
// It does not wait for the event to be applied.
func (s *Session) HandleEvent(ev Event) error {
	var apply func()
	switch ev.Type {
	case EventPointer:
		p := input.Point{X: ev.X, Y: ev.Y}
		apply = func() { s.input.PointerMoved(p, ev.Inside) }
	case EventButton:
		b, err := parseButton(ev.Button)
		if err != nil {
			return err
		}
		p := input.Point{X: ev.X, Y: ev.Y}
		if ev.Down {
			apply = func() { s.input.ButtonDown(b, p) }
		} else {
			apply = func() { s.input.ButtonUp(b, p) }
		}
	case EventClick:
		b, err := parseButton(ev.Button)
		if err != nil {
			return err
		}
		p := input.Point{X: ev.X, Y: ev.Y}
		apply = func() { s.input.Clicked(b, p) }
	case EventKey:
		if ev.Key == "" {
			return apperror.ValidationFailed("key", "key is required")
		}
		if ev.Down {
			apply = func() { s.input.KeyDown(ev.Key) }
		} else {
			apply = func() { s.input.KeyUp(ev.Key) }
		}
	case EventResize:
		if ev.Width <= 0 || ev.Height <= 0 {
			return apperror.ValidationFailed("width", "canvas size must be positive")
		}
		size := canvas.Size{Width: ev.Width, Height: ev.Height}
		apply = func() { s.scene.Resize(size) }
	case EventStdin:
		apply = func() {
			if !s.console.Submit(ev.Text) {
				s.logger.Debug("console input with no program listening")
			}
		}
	case EventStop:
		apply = func() { s.signal.RequestStop() }
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	s.loop.PostInput(apply)
	return nil
}

func parseButton(name string) (input.Button, error) {
	b := input.ParseButton(name)
	switch b {
	case input.ButtonLeft, input.ButtonRight, input.ButtonMiddle:
		return b, nil
	}
	return input.ButtonNone, apperror.ValidationFailed("button", fmt.Sprintf("unknown button %q", name))
}
