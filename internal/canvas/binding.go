package canvas

import (
	"errors"
	"sync/atomic"

	"github.com/sakif/livecanvas/internal/dispatch"
)

// ErrDetached is returned by a Binding used outside of its run.
var ErrDetached = errors.New("canvas: graphics binding is not attached")

var shapeSeq atomic.Uint64

// Binding is the execution thread's handle on the surface.
//
// Mutations are posted (fire-and-forget) through the gateway, so drawing
// never waits for the UI. The shape id is allocated here, on the caller,
// which is what lets Draw return it without a round trip. Size is the one
// read, and it blocks.
type Binding struct {
	gateway *dispatch.Gateway
	surface Surface
	bound   atomic.Bool
}

func NewBinding(g *dispatch.Gateway, surface Surface) *Binding {
	return &Binding{gateway: g, surface: surface}
}

// Bind attaches the binding and wipes the previous run's drawing.
func (b *Binding) Bind() error {
	if !b.bound.CompareAndSwap(false, true) {
		return errors.New("canvas: graphics binding already attached")
	}
	b.gateway.RunOnUI(b.surface.Clear)
	return nil
}

// Unbind detaches; later calls fail with ErrDetached. The drawing stays on
// screen. Safe to call more than once.
func (b *Binding) Unbind() {
	b.bound.Store(false)
}

func (b *Binding) Bound() bool { return b.bound.Load() }

// Draw adds shape to the surface and returns its id.
func (b *Binding) Draw(shape Shape) (ID, error) {
	if !b.bound.Load() {
		return 0, ErrDetached
	}
	id := ID(shapeSeq.Add(1))
	b.gateway.RunOnUI(func() { b.surface.Add(id, shape) })
	return id, nil
}

func (b *Binding) Remove(id ID) error {
	if !b.bound.Load() {
		return ErrDetached
	}
	b.gateway.RunOnUI(func() { b.surface.Remove(id) })
	return nil
}

func (b *Binding) Clear() error {
	if !b.bound.Load() {
		return ErrDetached
	}
	b.gateway.RunOnUI(b.surface.Clear)
	return nil
}

// Size reads the surface size on the UI thread.
func (b *Binding) Size() (Size, error) {
	if !b.bound.Load() {
		return Size{}, ErrDetached
	}
	return dispatch.Call(b.gateway, b.surface.Size)
}
