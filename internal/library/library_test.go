package library

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/compiler"
	"github.com/sakif/livecanvas/internal/input"
	"github.com/sakif/livecanvas/internal/runner"
	"github.com/sakif/livecanvas/internal/sound"
	"github.com/sakif/livecanvas/internal/stop"
)

// mockGraphics records draw calls; the real binding is tested in canvas.
type mockGraphics struct {
	mu      sync.Mutex
	shapes  map[canvas.ID]canvas.Shape
	nextID  canvas.ID
	cleared int
}

func newMockGraphics() *mockGraphics {
	return &mockGraphics{shapes: make(map[canvas.ID]canvas.Shape)}
}

func (m *mockGraphics) Draw(s canvas.Shape) (canvas.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.shapes[m.nextID] = s
	return m.nextID, nil
}

func (m *mockGraphics) Remove(id canvas.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shapes, id)
	return nil
}

func (m *mockGraphics) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.shapes)
	m.cleared++
	return nil
}

func (m *mockGraphics) Size() (canvas.Size, error) {
	return canvas.Size{Width: 640, Height: 480}, nil
}

type scriptedConsole struct {
	lines []string
}

func (c *scriptedConsole) ReadLine(tok *stop.Token) (string, error) {
	if tok != nil && tok.Signaled() {
		return "", stop.ErrStopped
	}
	if len(c.lines) == 0 {
		return "", errors.New("no more input")
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}

// longPulses keeps pulses alive for the whole test.
func longPulses() input.Config {
	cfg := input.DefaultConfig()
	cfg.ClickPulse = time.Minute
	cfg.KeyPulse = time.Minute
	return cfg
}

type fixture struct {
	host  Host
	gfx   *mockGraphics
	store *input.Store
	tones *sound.Recorder
	out   *bytes.Buffer
}

func newFixture(t *testing.T, stdin ...string) *fixture {
	t.Helper()
	sig := &stop.Signal{}
	tok := stop.NewToken()
	require.NoError(t, sig.SetCurrentToken(tok))

	f := &fixture{
		gfx:   newMockGraphics(),
		store: input.New(longPulses(), nil),
		tones: &sound.Recorder{},
		out:   &bytes.Buffer{},
	}
	f.host = Host{
		Graphics: f.gfx,
		Console:  &scriptedConsole{lines: stdin},
		Stdout:   f.out,
		Input:    f.store,
		Stop:     sig,
		Token:    tok,
		Sound:    f.tones,
	}
	return f
}

func (f *fixture) run(t *testing.T, src string) error {
	t.Helper()
	res, err := compiler.Compile(src, compiler.Options{Predeclared: IsPredeclared})
	require.NoError(t, err)
	require.True(t, res.Success, compiler.Format(res.Diagnostics))
	return runner.Run(res.Program, runner.Env{
		Predeclared: New(f.host),
		Stdout:      f.out,
	}).Wait(context.Background())
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{
		"canvas", "input", "keyboard", "mouse", "sleep", "stop_if_button_pressed", "tone",
	}, Names())
	assert.True(t, IsPredeclared("canvas"))
	assert.False(t, IsPredeclared("os"))
}

func TestCanvasBuiltins(t *testing.T) {
	f := newFixture(t)
	err := f.run(t, `
a = canvas.circle(10, 20.5, 5, fill="red")
b = canvas.line(0, 0, canvas.width(), canvas.height(), stroke="blue", width=2)
c = canvas.rect(1, 2, 3, 4)
d = canvas.polygon([(0, 0), (10, 0), (5, 8.5)], fill="green")
e = canvas.text(5, 5, "score: %d" % 3)
canvas.remove(c)
print(a, b, e)
`)
	require.NoError(t, err)
	assert.Equal(t, "1 2 5\n", f.out.String())

	require.Len(t, f.gfx.shapes, 4)
	assert.Equal(t, canvas.Circle{X: 10, Y: 20.5, R: 5, Style: canvas.Style{Fill: "red"}}, f.gfx.shapes[1])
	assert.Equal(t, canvas.Line{X2: 640, Y2: 480, Style: canvas.Style{Stroke: "blue", Width: 2}}, f.gfx.shapes[2])
	assert.Equal(t, canvas.Polygon{
		Points: []canvas.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 8.5}},
		Style:  canvas.Style{Fill: "green"},
	}, f.gfx.shapes[4])
	assert.Equal(t, "score: 3", f.gfx.shapes[5].(canvas.Text).Text)
}

func TestCanvasBuiltins_BadArguments(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"string coordinate", `canvas.circle("a", 1, 1)`, "want number"},
		{"negative radius", `canvas.circle(1, 1, -1)`, "negative radius"},
		{"too few points", `canvas.polygon([(0, 0), (1, 1)])`, "at least 3 points"},
		{"malformed point", `canvas.polygon([(0, 0), (1, 1), 7])`, "(x, y) pair"},
		{"bad id", `canvas.remove(0)`, "invalid shape id"},
		{"unexpected argument", `canvas.clear(1)`, "clear"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newFixture(t).run(t, tt.src+"\n")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMouseAndKeyboardBuiltins(t *testing.T) {
	f := newFixture(t)
	f.store.PointerMoved(input.Point{X: 3, Y: 4}, true)
	f.store.Clicked(input.ButtonRight, input.Point{X: 3, Y: 4})
	f.store.KeyDown("ArrowUp")

	err := f.run(t, `
print(mouse.position())
print(mouse.last_position())
print(mouse.button())
print(mouse.click())
print(mouse.last_click())
print(keyboard.key(), keyboard.last_key())
print(keyboard.is_down("ArrowUp"), keyboard.is_down("a"))
`)
	require.NoError(t, err)
	assert.Equal(t, `(3.0, 4.0)
(3.0, 4.0)
none
("right", 3.0, 4.0)
("right", 3.0, 4.0)
ArrowUp ArrowUp
True False
`, f.out.String())
}

func TestMouseBuiltins_NothingYet(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run(t, "print(mouse.position(), mouse.click(), keyboard.key())\n"))
	assert.Equal(t, "None (\"none\", None, None) None\n", f.out.String())
}

func TestInputBuiltin(t *testing.T) {
	f := newFixture(t, "Ada")
	require.NoError(t, f.run(t, "name = input('name? ')\nprint('hi ' + name)\n"))
	assert.Equal(t, "name? hi Ada\n", f.out.String())
}

func TestToneBuiltin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.run(t, "tone(440, 250)\n"))
	require.Len(t, f.tones.Tones(), 1)
	assert.Equal(t, 440.0, f.tones.Tones()[0].Frequency)
	assert.Equal(t, 250*time.Millisecond, f.tones.Tones()[0].Duration)

	err := f.run(t, "tone(1, 250)\n")
	assert.ErrorIs(t, err, sound.ErrBadTone)
}

func TestStopBuiltins(t *testing.T) {
	t.Run("stop_if_button_pressed raises the stop fault", func(t *testing.T) {
		f := newFixture(t)
		f.host.Token.Signal()
		err := f.run(t, "while True:\n    stop_if_button_pressed()\n")
		assert.ErrorIs(t, err, stop.ErrStopped)
	})

	t.Run("sleep wakes on stop", func(t *testing.T) {
		f := newFixture(t)
		go func() {
			time.Sleep(20 * time.Millisecond)
			f.host.Token.Signal()
		}()
		start := time.Now()
		err := f.run(t, "sleep(60000)\n")
		assert.ErrorIs(t, err, stop.ErrStopped)
		assert.Less(t, time.Since(start), 10*time.Second)
	})

	t.Run("input wakes on stop", func(t *testing.T) {
		f := newFixture(t)
		f.host.Token.Signal()
		err := f.run(t, "input()\n")
		assert.ErrorIs(t, err, stop.ErrStopped)
	})

	t.Run("sleep accepts floats", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.run(t, "sleep(1.5)\n"))
	})
}

func TestUnavailableCapabilities(t *testing.T) {
	res, err := compiler.Compile("canvas.circle(1, 1, 1)\n", compiler.Options{Predeclared: IsPredeclared})
	require.NoError(t, err)
	err = runner.Run(res.Program, runner.Env{Predeclared: New(Host{})}).Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}
