package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// lockedBuffer is written from the UI loop and read from the test.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sketch.star")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func runCLI(t *testing.T, in io.Reader, args ...string) (out, errw *lockedBuffer, err error) {
	t.Helper()
	t.Setenv("LIVECANVAS_CONFIG", "")
	color.NoColor = true

	if in == nil {
		in = strings.NewReader("")
	}
	out, errw = &lockedBuffer{}, &lockedBuffer{}
	term := terminal{in: in, out: out, errw: errw}
	err = newApp(term).Run(context.Background(), append([]string{"livecanvas"}, args...))
	return out, errw, err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "want an exit coder, got %v", err)
	return ec.ExitCode()
}

func TestRun_OutputReachesTerminalOnce(t *testing.T) {
	stdout, stderr := os.Stdout, os.Stderr
	path := writeProgram(t, "print('hi')\nprint('there')\n")

	out, errw, err := runCLI(t, nil, "run", path)
	require.NoError(t, err)

	assert.Equal(t, "hi\nthere\n", out.String())
	assert.Contains(t, errw.String(), "completed in")
	assert.Same(t, stdout, os.Stdout)
	assert.Same(t, stderr, os.Stderr)
}

func TestRun_StdinReachesInput(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		// Lines typed before input() is waiting are dropped, so keep
		// typing until the reader goes away.
		for {
			if _, err := fmt.Fprintln(pw, "ada"); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	path := writeProgram(t, "print('hello ' + input())\n")
	out, _, err := runCLI(t, pr, "run", "--timeout", "5s", path)
	require.NoError(t, err)
	assert.Equal(t, "hello ada\n", out.String())
}

func TestRun_TimeoutStopsProgram(t *testing.T) {
	path := writeProgram(t, "while True:\n    sleep(10)\n")

	start := time.Now()
	_, errw, err := runCLI(t, nil, "run", "--timeout", "100ms", path)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, errw.String(), "Program stopped.")
	assert.Contains(t, errw.String(), "stopped in")
}

func TestRun_ExitCodes(t *testing.T) {
	t.Run("compile failure", func(t *testing.T) {
		out, errw, err := runCLI(t, nil, "run", writeProgram(t, "def main(:\n"))
		assert.Equal(t, 2, exitCode(t, err))
		assert.Empty(t, out.String())
		assert.Contains(t, errw.String(), "compile_failed in")
	})

	t.Run("fault", func(t *testing.T) {
		_, errw, err := runCLI(t, nil, "run", writeProgram(t, "x = 1 // 0\n"))
		assert.Equal(t, 1, exitCode(t, err))
		assert.Contains(t, errw.String(), "Unhandled error")
	})

	t.Run("missing file argument", func(t *testing.T) {
		_, _, err := runCLI(t, nil, "run")
		assert.Equal(t, 2, exitCode(t, err))
	})
}

func TestRun_WritesSVG(t *testing.T) {
	path := writeProgram(t, "def main():\n    canvas.rect(10, 10, 30, 20, fill=\"red\")\n")
	svg := filepath.Join(t.TempDir(), "out.svg")

	_, _, err := runCLI(t, nil, "run", "--svg", svg, path)
	require.NoError(t, err)

	b, err := os.ReadFile(svg)
	require.NoError(t, err)
	assert.Contains(t, string(b), `<rect x="10" y="10" width="30" height="20"`)
}

func TestCheck(t *testing.T) {
	out, _, err := runCLI(t, nil, "check", writeProgram(t, "print(1)\n"))
	require.NoError(t, err)
	assert.Equal(t, "no problems found\n", out.String())

	out, _, err = runCLI(t, nil, "check", writeProgram(t, "def main(:\n"))
	assert.Equal(t, 2, exitCode(t, err))
	assert.Contains(t, err.Error(), "problem(s)")
	assert.NotEmpty(t, out.String())
}
