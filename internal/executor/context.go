package executor

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/console"
	"github.com/sakif/livecanvas/internal/dispatch"
	"github.com/sakif/livecanvas/internal/input"
	"github.com/sakif/livecanvas/internal/library"
	"github.com/sakif/livecanvas/internal/sound"
	"github.com/sakif/livecanvas/internal/stop"
)

var (
	ErrAlreadyInitialized = errors.New("executor: execution context already initialized")
	ErrDisposed           = errors.New("executor: execution context disposed")
	ErrNotInitialized     = errors.New("executor: execution context not initialized")
)

// Resources are the long-lived IDE parts a run borrows.
type Resources struct {
	Bridge  dispatch.Bridge
	Gateway *dispatch.Gateway
	Surface canvas.Surface
	Console console.Sink
	Input   *input.Store
	Signal  *stop.Signal
	Sound   sound.Player
}

type ctxState int

const (
	stateNew ctxState = iota
	stateActive
	stateDisposed
)

// ExecutionContext is the per-run bundle of borrowed resources.
//
// Init activates, in order: the UI bridge (arming the gateway), the
// graphics binding, the console redirection and the stop token. Dispose
// undoes them in reverse order and is safe to call any number of times.
type ExecutionContext struct {
	res Resources

	mu       sync.Mutex
	state    ctxState
	armed    bool
	graphics *canvas.Binding
	redirect *console.Redirect
	token    *stop.Token
}

func NewExecutionContext(res Resources) *ExecutionContext {
	if res.Gateway == nil {
		res.Gateway = dispatch.NewGateway()
	}
	if res.Bridge == nil {
		res.Bridge = dispatch.Direct{}
	}
	if res.Signal == nil {
		res.Signal = &stop.Signal{}
	}
	return &ExecutionContext{res: res}
}

// Init activates the context. It fails if called twice or after Dispose.
// On failure, whatever was already activated is rolled back.
func (c *ExecutionContext) Init() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateActive:
		return ErrAlreadyInitialized
	case stateDisposed:
		return ErrDisposed
	}

	defer func() {
		if err != nil {
			c.teardown()
			c.state = stateDisposed
		}
	}()

	if err := c.res.Gateway.Init(c.res.Bridge); err != nil {
		return fmt.Errorf("executor: arming ui bridge: %w", err)
	}
	c.armed = true

	if c.res.Surface != nil {
		c.graphics = canvas.NewBinding(c.res.Gateway, c.res.Surface)
		if err := c.graphics.Bind(); err != nil {
			return fmt.Errorf("executor: binding graphics: %w", err)
		}
	}

	if c.res.Console != nil {
		c.redirect = console.NewRedirect(c.res.Gateway, c.res.Console)
		if err := c.redirect.Activate(); err != nil {
			return fmt.Errorf("executor: redirecting console: %w", err)
		}
	}

	tok := stop.NewToken()
	if err := c.res.Signal.SetCurrentToken(tok); err != nil {
		return fmt.Errorf("executor: registering stop token: %w", err)
	}
	c.token = tok

	c.state = stateActive
	return nil
}

// Dispose deactivates the context. The second and later calls do nothing.
func (c *ExecutionContext) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateActive {
		c.state = stateDisposed
		return nil
	}
	c.state = stateDisposed
	return c.teardown()
}

// teardown releases whatever is held, newest first.
func (c *ExecutionContext) teardown() error {
	var errs []error
	if c.token != nil {
		c.res.Signal.ClearToken(c.token)
	}
	if c.redirect != nil {
		if err := c.redirect.Restore(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.graphics != nil {
		c.graphics.Unbind()
	}
	if c.armed {
		c.res.Gateway.Reset()
		c.armed = false
	}
	return errors.Join(errs...)
}

// Active reports whether Init succeeded and Dispose has not run yet.
func (c *ExecutionContext) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateActive
}

// Token is the run's stop token, nil before Init.
func (c *ExecutionContext) Token() *stop.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Stdout is where print goes.
func (c *ExecutionContext) Stdout() io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.redirect == nil {
		return io.Discard
	}
	return c.redirect.Stdout()
}

// Host is the capability set handed to the learner library.
func (c *ExecutionContext) Host() library.Host {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := library.Host{
		Input: c.res.Input,
		Stop:  c.res.Signal,
		Token: c.token,
	}
	if c.graphics != nil {
		h.Graphics = c.graphics
	}
	if c.redirect != nil {
		h.Console = c.redirect
		h.Stdout = c.redirect.Stdout()
	}
	if c.res.Sound != nil {
		g, player := c.res.Gateway, c.res.Sound
		h.Sound = sound.PlayerFunc(func(t sound.Tone) {
			g.RunOnUI(func() { player.Play(t) })
		})
	}
	return h
}
