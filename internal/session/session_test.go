package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/console"
	"github.com/sakif/livecanvas/internal/executor"
	"github.com/sakif/livecanvas/internal/input"
	"github.com/sakif/livecanvas/internal/sound"
	"github.com/sakif/livecanvas/internal/stop"
)

func newRunningSession(t *testing.T) *Session {
	t.Helper()
	s := New(Options{
		Canvas: canvas.Size{Width: 200, Height: 100},
		Input: input.Config{
			ClickPulse:          time.Hour,
			KeyPulse:            time.Hour,
			DoubleClickWindow:   400 * time.Millisecond,
			DoubleClickDistance: 4,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = s.Run(ctx)
	}()
	<-s.Loop().Ready()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return s
}

// flush waits for everything already queued on the UI thread.
func flush(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Loop().Invoke(func() {}))
}

func TestHandleEvent_Input(t *testing.T) {
	s := newRunningSession(t)

	require.NoError(t, s.HandleEvent(Event{Type: EventPointer, X: 10, Y: 20, Inside: true}))
	require.NoError(t, s.HandleEvent(Event{Type: EventButton, Button: "left", Down: true, X: 11, Y: 21}))
	require.NoError(t, s.HandleEvent(Event{Type: EventClick, Button: "right", X: 12, Y: 22}))
	require.NoError(t, s.HandleEvent(Event{Type: EventKey, Key: "a", Down: true}))
	flush(t, s)

	cur := s.Input().CurrentCursor()
	require.NotNil(t, cur.Position)
	assert.Equal(t, input.Point{X: 11, Y: 21}, *cur.Position)
	assert.Equal(t, input.ButtonLeft, cur.Pressed)
	assert.Equal(t, input.OneRightClick, s.Input().CurrentClick().Status)
	assert.True(t, s.Input().IsKeyDown("a"))

	require.NoError(t, s.HandleEvent(Event{Type: EventKey, Key: "a"}))
	require.NoError(t, s.HandleEvent(Event{Type: EventPointer, Inside: false}))
	flush(t, s)
	assert.False(t, s.Input().IsKeyDown("a"))
	assert.Equal(t, input.ButtonOutOfArea, s.Input().CurrentCursor().Pressed)
}

func TestHandleEvent_Invalid(t *testing.T) {
	s := newRunningSession(t)

	tests := []struct {
		name string
		ev   Event
		want error
	}{
		{"unknown type", Event{Type: "scroll"}, ErrUnknownEvent},
		{"bad button", Event{Type: EventClick, Button: "thumb"}, apperror.ErrValidation},
		{"empty key", Event{Type: EventKey, Down: true}, apperror.ErrValidation},
		{"zero size", Event{Type: EventResize, Width: 0, Height: 10}, apperror.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.HandleEvent(tt.ev), tt.want)
		})
	}
}

func TestHandleEvent_Resize(t *testing.T) {
	s := newRunningSession(t)
	var ops []canvas.Op
	s.OnSceneOp(func(op canvas.Op) { ops = append(ops, op) })

	require.NoError(t, s.HandleEvent(Event{Type: EventResize, Width: 300, Height: 150}))
	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, canvas.Size{Width: 300, Height: 150}, snap.Size)

	var seen []canvas.Op
	require.NoError(t, s.Loop().Invoke(func() { seen = append(seen, ops...) }))
	require.Len(t, seen, 1)
	assert.Equal(t, canvas.OpResize, seen[0].Kind)
}

func TestHandleEvent_StopSignalsCurrentToken(t *testing.T) {
	s := newRunningSession(t)
	tok := stop.NewToken()
	require.NoError(t, s.Signal().SetCurrentToken(tok))
	t.Cleanup(func() { s.Signal().ClearToken(tok) })

	require.NoError(t, s.HandleEvent(Event{Type: EventStop}))
	select {
	case <-tok.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stop event never reached the token")
	}
}

func TestSession_RunsProgramAndStreams(t *testing.T) {
	s := newRunningSession(t)

	var (
		mu     sync.Mutex
		ops    []canvas.Op
		chunks []console.Chunk
		tones  []sound.Tone
	)
	s.OnSceneOp(func(op canvas.Op) { mu.Lock(); ops = append(ops, op); mu.Unlock() })
	s.OnConsole(func(c console.Chunk) { mu.Lock(); chunks = append(chunks, c); mu.Unlock() })
	s.OnTone(func(tn sound.Tone) { mu.Lock(); tones = append(tones, tn); mu.Unlock() })

	svc := executor.NewService(executor.Config{}, s.Diagnostics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	report, err := svc.Execute(context.Background(), `
def main():
    canvas.rect(0, 0, 10, 10)
    print("w", canvas.width())
    tone(880, 50)
`, s.NewExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, executor.StatusCompleted, report.Status)
	flush(t, s)

	mu.Lock()
	defer mu.Unlock()
	// Bind clears the canvas first, then the rectangle is added.
	require.Len(t, ops, 2)
	assert.Equal(t, canvas.OpClear, ops[0].Kind)
	assert.Equal(t, canvas.OpAdd, ops[1].Kind)
	assert.Equal(t, "rect", ops[1].Shape.Kind())

	require.NotEmpty(t, chunks)
	assert.Equal(t, console.Stdout, chunks[0].Stream)
	assert.Equal(t, "w 200.0\n", s.Console().Text())

	require.Len(t, tones, 1)
	assert.Equal(t, 880.0, tones[0].Frequency)
}

func TestSession_StdinReachesProgram(t *testing.T) {
	s := newRunningSession(t)
	svc := executor.NewService(executor.Config{}, s.Diagnostics(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan *executor.Report, 1)
	go func() {
		r, _ := svc.Execute(context.Background(), "print(input().upper())\n", s.NewExecutionContext())
		done <- r
	}()

	require.Eventually(t, func() bool { return s.Signal().Current() != nil }, 2*time.Second, time.Millisecond)
	// Lines typed before the program listens are only echoed, so keep
	// typing until one gets through.
	require.Eventually(t, func() bool {
		require.NoError(t, s.HandleEvent(Event{Type: EventStdin, Text: "hi"}))
		select {
		case r := <-done:
			done <- r
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, time.Millisecond)

	r := <-done
	assert.Equal(t, executor.StatusCompleted, r.Status)
	flush(t, s)
	assert.Contains(t, s.Console().Text(), "HI\n")
}

func TestSession_AttachSeesStateAndThenOps(t *testing.T) {
	s := newRunningSession(t)

	require.NoError(t, s.Loop().Invoke(func() {
		s.scene.Add(1, canvas.Circle{X: 5, Y: 5, R: 2})
		s.console.Write(console.Stdout, "hello\n")
	}))

	var ops []canvas.Op
	var mu sync.Mutex
	var snap canvas.Snapshot
	var chunks []console.Chunk
	require.NoError(t, s.Attach(func(sn canvas.Snapshot, cs []console.Chunk) {
		snap, chunks = sn, cs
		// Registered on the UI thread, so no op can slip in between the
		// snapshot and the subscription.
		s.OnSceneOp(func(op canvas.Op) {
			mu.Lock()
			ops = append(ops, op)
			mu.Unlock()
		})
	}))

	require.Len(t, snap.Items, 1)
	assert.Equal(t, canvas.ID(1), snap.Items[0].ID)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello\n", chunks[0].Text)

	require.NoError(t, s.Loop().Invoke(func() { s.scene.Remove(1) }))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ops, 1)
}
