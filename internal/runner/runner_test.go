package runner

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/sakif/livecanvas/internal/compiler"
	"github.com/sakif/livecanvas/internal/stop"
)

// syncBuffer lets the runner thread write while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func compile(t *testing.T, src string, predeclared starlark.StringDict) *starlark.Program {
	t.Helper()
	res, err := compiler.Compile(src, compiler.Options{Predeclared: predeclared.Has})
	require.NoError(t, err)
	require.True(t, res.Success, compiler.Format(res.Diagnostics))
	return res.Program
}

func TestRun(t *testing.T) {
	boom := starlark.NewBuiltin("boom", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		panic("kaboom")
	})
	predeclared := starlark.StringDict{"boom": boom}

	tests := []struct {
		name    string
		src     string
		entry   string
		wantOut string
		wantErr string
	}{
		{name: "module body prints", src: "print('hello')\n", wantOut: "hello\n"},
		{name: "main is called after the body", src: "print('a')\ndef main():\n    print('b')\n", wantOut: "a\nb\n"},
		{name: "entry point can be disabled", src: "def main():\n    print('b')\n", entry: "-", wantOut: ""},
		{name: "custom entry point", src: "def start():\n    print('go')\n", entry: "start", wantOut: "go\n"},
		{name: "runtime fault", src: "x = 1 // 0\n", wantErr: "division by zero"},
		{name: "main that is not callable", src: "main = 3\n", wantErr: "main is a int, not a function"},
		{name: "panicking builtin", src: "boom()\n", wantErr: "panic: kaboom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out syncBuffer
			task := Run(compile(t, tt.src, predeclared), Env{
				Name:        t.Name(),
				Predeclared: predeclared,
				Stdout:      &out,
				EntryPoint:  tt.entry,
			})

			err := task.Wait(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out.String())
		})
	}
}

func TestRun_PanicErrorType(t *testing.T) {
	boom := starlark.NewBuiltin("boom", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		panic("kaboom")
	})
	predeclared := starlark.StringDict{"boom": boom}

	err := Run(compile(t, "boom()\n", predeclared), Env{Predeclared: predeclared}).Wait(context.Background())

	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

// The stop fault travels through the interpreter unchanged.
func TestRun_StopFaultPropagates(t *testing.T) {
	var sig stop.Signal
	tok := stop.NewToken()
	require.NoError(t, sig.SetCurrentToken(tok))

	check := starlark.NewBuiltin("stop_if_button_pressed", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return starlark.None, sig.StopIfButtonPressed()
	})
	predeclared := starlark.StringDict{"stop_if_button_pressed": check}

	task := Run(compile(t, "def main():\n    while True:\n        stop_if_button_pressed()\n", predeclared),
		Env{Predeclared: predeclared})

	select {
	case <-task.Done():
		t.Fatal("program finished before being stopped")
	case <-time.After(20 * time.Millisecond):
	}
	assert.NoError(t, task.Err(), "Err is nil while running")

	tok.Signal()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("program did not stop")
	}
	assert.ErrorIs(t, task.Err(), stop.ErrStopped)
}

func TestTask_WaitHonoursContext(t *testing.T) {
	var sig stop.Signal
	tok := stop.NewToken()
	require.NoError(t, sig.SetCurrentToken(tok))
	defer tok.Signal()

	sleep := starlark.NewBuiltin("nap", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return starlark.None, sig.Sleep(time.Hour)
	})
	predeclared := starlark.StringDict{"nap": sleep}
	task := Run(compile(t, "nap()\n", predeclared), Env{Predeclared: predeclared})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)
}

func TestRun_Locals(t *testing.T) {
	who := starlark.NewBuiltin("who", func(th *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		return starlark.String(th.Local("user").(string)), nil
	})
	predeclared := starlark.StringDict{"who": who}

	var out syncBuffer
	err := Run(compile(t, "print(who())\n", predeclared), Env{
		Predeclared: predeclared,
		Stdout:      &out,
		Locals:      map[string]any{"user": "ada"},
	}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ada\n", out.String())
}
