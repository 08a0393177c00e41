package dispatch

import "sync"

// Gateway is the entry point the engine uses to reach the UI thread.
//
// It has an explicit lifecycle: Init arms it with a bridge when a run
// starts and Reset disarms it when the run is disposed. While disarmed
// (or when the caller already is the UI thread) every call runs inline,
// which is also what makes the engine usable with no UI at all.
type Gateway struct {
	mu     sync.RWMutex
	bridge Bridge
}

// NewGateway returns a disarmed gateway.
func NewGateway() *Gateway {
	return &Gateway{}
}

// Init arms the gateway. Arming it again with the same bridge is a no-op;
// arming it with a different one is a lifecycle error.
func (g *Gateway) Init(b Bridge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bridge != nil && g.bridge != b {
		return ErrAlreadyInitialized
	}
	g.bridge = b
	return nil
}

// Reset disarms the gateway.
func (g *Gateway) Reset() {
	g.mu.Lock()
	g.bridge = nil
	g.mu.Unlock()
}

// Armed reports whether a bridge is installed.
func (g *Gateway) Armed() bool {
	return g.current() != nil
}

func (g *Gateway) current() Bridge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bridge
}

// RunOnUI runs fn on the UI thread without waiting for it.
func (g *Gateway) RunOnUI(fn func()) {
	b := g.current()
	if b == nil || b.IsUIThread() {
		fn()
		return
	}
	b.Post(fn)
}

// Do runs fn on the UI thread and waits for it to return.
func (g *Gateway) Do(fn func()) error {
	b := g.current()
	if b == nil || b.IsUIThread() {
		fn()
		return nil
	}
	return b.Invoke(fn)
}

// Call runs fn on the UI thread and returns its result. It is the
// blocking "read UI state" path: fn must not dispatch again.
func Call[T any](g *Gateway, fn func() T) (T, error) {
	var out T
	err := g.Do(func() { out = fn() })
	return out, err
}
