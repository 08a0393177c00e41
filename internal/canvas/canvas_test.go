package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/livecanvas/internal/dispatch"
)

func TestScene_AddRemoveClear(t *testing.T) {
	s := NewScene(Size{Width: 400, Height: 300})
	var ops []Op
	s.SetObserver(func(op Op) { ops = append(ops, op) })

	s.Add(1, Circle{X: 10, Y: 10, R: 5})
	s.Add(2, Rect{X: 0, Y: 0, W: 4, H: 4})
	s.Add(3, Line{X2: 10, Y2: 10})
	assert.Equal(t, 3, s.Len())

	assert.True(t, s.Remove(2))
	assert.False(t, s.Remove(2), "second remove is a no-op")

	snap := s.Snapshot()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, ID(1), snap.Items[0].ID)
	assert.Equal(t, ID(3), snap.Items[1].ID)

	s.Clear()
	assert.Zero(t, s.Len())

	kinds := make([]OpKind, len(ops))
	for i, op := range ops {
		kinds[i] = op.Kind
	}
	assert.Equal(t, []OpKind{OpAdd, OpAdd, OpAdd, OpRemove, OpClear}, kinds)
}

func TestScene_Resize(t *testing.T) {
	s := NewScene(Size{Width: 400, Height: 300})
	var ops []Op
	s.SetObserver(func(op Op) { ops = append(ops, op) })

	s.Resize(Size{Width: 0, Height: 100})
	s.Resize(Size{Width: 400, Height: 300})
	assert.Empty(t, ops, "invalid and unchanged sizes are ignored")

	s.Resize(Size{Width: 800, Height: 600})
	assert.Equal(t, Size{Width: 800, Height: 600}, s.Size())
	require.Len(t, ops, 1)
	assert.Equal(t, OpResize, ops[0].Kind)
}

func TestOp_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Op{Kind: OpAdd, ID: 7, Shape: Circle{X: 1, Y: 2, R: 3, Style: Style{Fill: "red"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"add","id":7,"kind":"circle","shape":{"x":1,"y":2,"r":3,"fill":"red"}}`, string(b))

	b, err = json.Marshal(Op{Kind: OpClear})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"clear"}`, string(b))
}

func TestSnapshot_Ops(t *testing.T) {
	s := NewScene(Size{Width: 10, Height: 10})
	s.Add(4, Circle{R: 1})

	ops := s.Snapshot().Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, OpResize, ops[0].Kind)
	assert.Equal(t, OpClear, ops[1].Kind)
	assert.Equal(t, ID(4), ops[2].ID)
}

func TestWriteSVG(t *testing.T) {
	s := NewScene(Size{Width: 200, Height: 100})
	s.Add(1, Circle{X: 50, Y: 50, R: 10, Style: Style{Fill: "red"}})
	s.Add(2, Line{X1: 0, Y1: 0, X2: 200, Y2: 100})
	s.Add(3, Polygon{Points: []Point{{0, 0}, {10, 0}, {5, 8}}, Style: Style{Stroke: "blue", Width: 2}})
	s.Add(4, Text{X: 5, Y: 90, Text: "a < b & c"})

	var buf bytes.Buffer
	require.NoError(t, WriteSVG(&buf, s.Snapshot()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100"`))
	assert.Contains(t, out, `<circle cx="50" cy="50" r="10" fill="red"/>`)
	assert.Contains(t, out, `stroke="black"`)
	assert.Contains(t, out, `points="0,0 10,0 5,8"`)
	assert.Contains(t, out, `stroke-width="2"`)
	assert.Contains(t, out, `a &lt; b &amp; c`)
	assert.True(t, strings.HasSuffix(out, "</svg>\n"))
}

func TestBinding_Direct(t *testing.T) {
	scene := NewScene(Size{Width: 300, Height: 200})
	scene.Add(99, Circle{}) // leftover from an earlier run
	b := NewBinding(dispatch.NewGateway(), scene)

	_, err := b.Draw(Circle{})
	assert.ErrorIs(t, err, ErrDetached)

	require.NoError(t, b.Bind())
	assert.Error(t, b.Bind())
	assert.Zero(t, scene.Len(), "binding starts from a clean canvas")

	id1, err := b.Draw(Circle{R: 1})
	require.NoError(t, err)
	id2, err := b.Draw(Rect{W: 1, H: 1})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, scene.Len())

	require.NoError(t, b.Remove(id1))
	assert.Equal(t, 1, scene.Len())

	size, err := b.Size()
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 300, Height: 200}, size)

	b.Unbind()
	b.Unbind()
	assert.ErrorIs(t, b.Clear(), ErrDetached)
	assert.ErrorIs(t, b.Remove(id2), ErrDetached)
	_, err = b.Size()
	assert.ErrorIs(t, err, ErrDetached)
	assert.Equal(t, 1, scene.Len(), "unbinding keeps the drawing")
}

func TestBinding_ThroughLoop(t *testing.T) {
	loop := dispatch.NewLoop(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	<-loop.Ready()

	g := dispatch.NewGateway()
	require.NoError(t, g.Init(loop))

	scene := NewScene(Size{Width: 640, Height: 480})
	b := NewBinding(g, scene)
	require.NoError(t, b.Bind())

	for i := range 20 {
		_, err := b.Draw(Circle{X: float64(i)})
		require.NoError(t, err)
	}

	// The blocking read queues behind the posts, so it sees all of them.
	n, err := dispatch.Call(g, scene.Len)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	size, err := b.Size()
	require.NoError(t, err)
	assert.Equal(t, 640.0, size.Width)
}
