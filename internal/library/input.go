package library

import (
	"go.starlark.net/starlark"

	"github.com/sakif/livecanvas/internal/input"
)

func mouseModule(h Host) starlark.Value {
	return module("mouse", map[string]builtinFunc{
		"position":      h.noArgs("position", func(s *input.Store) starlark.Value { return point(s.CurrentCursor().Position) }),
		"last_position": h.noArgs("last_position", func(s *input.Store) starlark.Value { return point(s.LastActualCursor().Position) }),
		"button":        h.noArgs("button", func(s *input.Store) starlark.Value { return starlark.String(s.CurrentCursor().Pressed.String()) }),
		"click":         h.noArgs("click", func(s *input.Store) starlark.Value { return click(s.CurrentClick()) }),
		"last_click":    h.noArgs("last_click", func(s *input.Store) starlark.Value { return click(s.LastClick()) }),
	})
}

func keyboardModule(h Host) starlark.Value {
	return module("keyboard", map[string]builtinFunc{
		"key":      h.noArgs("key", func(s *input.Store) starlark.Value { return key(s.CurrentKey()) }),
		"last_key": h.noArgs("last_key", func(s *input.Store) starlark.Value { return key(s.LastKey()) }),
		"is_down":  h.isDown,
	})
}

// noArgs wraps a store read that takes no arguments.
func (h Host) noArgs(name string, read func(*input.Store) starlark.Value) builtinFunc {
	return func(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
			return nil, err
		}
		if h.Input == nil {
			return nil, errUnavailable
		}
		return read(h.Input), nil
	}
}

func (h Host) isDown(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var k string
	if err := starlark.UnpackArgs("is_down", args, kwargs, "key", &k); err != nil {
		return nil, err
	}
	if h.Input == nil {
		return nil, errUnavailable
	}
	return starlark.Bool(h.Input.IsKeyDown(k)), nil
}

// click is (status, x, y); x and y are None when there was no click.
func click(c input.ClickInfo) starlark.Value {
	status := starlark.String(c.Status.String())
	if c.Position == nil {
		return starlark.Tuple{status, starlark.None, starlark.None}
	}
	return starlark.Tuple{status, starlark.Float(c.Position.X), starlark.Float(c.Position.Y)}
}

func key(k string, ok bool) starlark.Value {
	if !ok {
		return starlark.None
	}
	return starlark.String(k)
}
