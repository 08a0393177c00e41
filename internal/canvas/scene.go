// Package canvas is the drawing surface learner programs paint on.
//
// OWNERSHIP:
// A Scene belongs to the UI thread. Nothing in it is locked; every method
// must be called from the UI loop (or, with no UI at all, from the only
// goroutine there is). Programs on the execution thread never see the
// Scene directly. They get a Binding, which forwards each call through
// the dispatch gateway.
//
// STREAMING:
// Every mutation produces an Op. The websocket hub observes those ops and
// replays them in the browser, so the page draws exactly what the scene
// holds.
package canvas

import (
	"encoding/json"
	"slices"
)

// ID identifies a shape for later removal.
type ID uint64

// OpKind names a scene mutation.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpRemove OpKind = "remove"
	OpClear  OpKind = "clear"
	OpResize OpKind = "resize"
)

// Op is one mutation, as sent to observers.
type Op struct {
	Kind  OpKind
	ID    ID
	Shape Shape
	Size  Size
}

// MarshalJSON flattens the op so the browser can switch on "op" and
// "shape.kind" alone.
func (o Op) MarshalJSON() ([]byte, error) {
	out := map[string]any{"op": o.Kind}
	switch o.Kind {
	case OpAdd:
		out["id"] = o.ID
		out["kind"] = o.Shape.Kind()
		out["shape"] = o.Shape
	case OpRemove:
		out["id"] = o.ID
	case OpResize:
		out["size"] = o.Size
	}
	return json.Marshal(out)
}

// Surface is what the binding drives. Implementations are UI-thread only.
type Surface interface {
	Add(id ID, s Shape)
	Remove(id ID) bool
	Clear()
	Size() Size
}

// Item is a shape with its id, in paint order.
type Item struct {
	ID    ID
	Shape Shape
}

// Snapshot is a copy of the scene.
type Snapshot struct {
	Size  Size
	Items []Item
}

// Scene is the in-memory Surface.
type Scene struct {
	size     Size
	shapes   map[ID]Shape
	order    []ID
	observer func(Op)
}

var _ Surface = (*Scene)(nil)

func NewScene(size Size) *Scene {
	return &Scene{
		size:   size,
		shapes: make(map[ID]Shape),
	}
}

// SetObserver registers fn to receive every op. nil removes it.
func (s *Scene) SetObserver(fn func(Op)) {
	s.observer = fn
}

func (s *Scene) emit(op Op) {
	if s.observer != nil {
		s.observer(op)
	}
}

func (s *Scene) Add(id ID, shape Shape) {
	if _, exists := s.shapes[id]; !exists {
		s.order = append(s.order, id)
	}
	s.shapes[id] = shape
	s.emit(Op{Kind: OpAdd, ID: id, Shape: shape})
}

func (s *Scene) Remove(id ID) bool {
	if _, ok := s.shapes[id]; !ok {
		return false
	}
	delete(s.shapes, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	s.emit(Op{Kind: OpRemove, ID: id})
	return true
}

func (s *Scene) Clear() {
	clear(s.shapes)
	s.order = s.order[:0]
	s.emit(Op{Kind: OpClear})
}

func (s *Scene) Size() Size { return s.size }

// Resize is driven by the browser when the canvas element changes size.
func (s *Scene) Resize(size Size) {
	if size.Width <= 0 || size.Height <= 0 || size == s.size {
		return
	}
	s.size = size
	s.emit(Op{Kind: OpResize, Size: size})
}

func (s *Scene) Len() int { return len(s.order) }

// Snapshot copies the scene in paint order.
func (s *Scene) Snapshot() Snapshot {
	items := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, Item{ID: id, Shape: s.shapes[id]})
	}
	return Snapshot{Size: s.size, Items: items}
}

// Ops replays the snapshot as ops, for a client that connects mid-run.
func (snap Snapshot) Ops() []Op {
	ops := make([]Op, 0, len(snap.Items)+2)
	ops = append(ops, Op{Kind: OpResize, Size: snap.Size}, Op{Kind: OpClear})
	for _, it := range snap.Items {
		ops = append(ops, Op{Kind: OpAdd, ID: it.ID, Shape: it.Shape})
	}
	return ops
}
