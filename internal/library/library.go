// Package library is the set of names a learner program can use without
// importing anything: canvas, mouse, keyboard, input, sleep, tone and
// stop_if_button_pressed.
//
// Every builtin is a thin adapter. It unpacks Starlark arguments, calls
// one capability from Host, and converts the answer back. Builtins that
// can block (sleep, input) wake up on the stop token, so a program parked
// in them still honours the Stop button.
package library

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/input"
	"github.com/sakif/livecanvas/internal/sound"
	"github.com/sakif/livecanvas/internal/stop"
)

// Graphics is the drawing capability. *canvas.Binding implements it.
type Graphics interface {
	Draw(s canvas.Shape) (canvas.ID, error)
	Remove(id canvas.ID) error
	Clear() error
	Size() (canvas.Size, error)
}

// LineReader is the console input capability. *console.Redirect
// implements it.
type LineReader interface {
	ReadLine(tok *stop.Token) (string, error)
}

// Host bundles the capabilities of one run. Nil members make the
// corresponding builtins fail with a plain error.
type Host struct {
	Graphics Graphics
	Console  LineReader
	Stdout   io.Writer
	Input    *input.Store
	Stop     *stop.Signal
	Token    *stop.Token
	Sound    sound.Player
}

var errUnavailable = errors.New("not available in this environment")

// New builds the predeclared environment for one run.
func New(h Host) starlark.StringDict {
	return starlark.StringDict{
		"canvas":                 canvasModule(h),
		"mouse":                  mouseModule(h),
		"keyboard":               keyboardModule(h),
		"input":                  builtin("input", h.input),
		"sleep":                  builtin("sleep", h.sleep),
		"stop_if_button_pressed": builtin("stop_if_button_pressed", h.stopIfButtonPressed),
		"tone":                   builtin("tone", h.tone),
	}
}

// Names is the sorted set of predeclared names. It never changes, so it is
// computed once.
var Names = sync.OnceValue(func() []string {
	env := New(Host{})
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
})

// IsPredeclared is the predicate the compiler needs.
func IsPredeclared(name string) bool {
	_, found := slices.BinarySearch(Names(), name)
	return found
}

type builtinFunc func(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func builtin(name string, fn builtinFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return fn(args, kwargs)
	})
}

func module(name string, members map[string]builtinFunc) *starlarkstruct.Module {
	m := &starlarkstruct.Module{Name: name, Members: make(starlark.StringDict, len(members))}
	for k, fn := range members {
		m.Members[k] = builtin(name+"."+k, fn)
	}
	return m
}

// number accepts an int or a float wherever a coordinate is expected.
type number float64

func (n *number) Unpack(v starlark.Value) error {
	f, ok := starlark.AsFloat(v)
	if !ok {
		return fmt.Errorf("got %s, want number", v.Type())
	}
	*n = number(f)
	return nil
}

func point(p *input.Point) starlark.Value {
	if p == nil {
		return starlark.None
	}
	return starlark.Tuple{starlark.Float(p.X), starlark.Float(p.Y)}
}
