package library

import (
	"fmt"
	"io"
	"time"

	"go.starlark.net/starlark"

	"github.com/sakif/livecanvas/internal/sound"
)

func (h Host) stopIfButtonPressed(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs("stop_if_button_pressed", args, kwargs); err != nil {
		return nil, err
	}
	if h.Stop == nil {
		return starlark.None, nil
	}
	return starlark.None, h.Stop.StopIfButtonPressed()
}

func (h Host) sleep(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ms number
	if err := starlark.UnpackArgs("sleep", args, kwargs, "ms", &ms); err != nil {
		return nil, err
	}
	if ms < 0 {
		return nil, fmt.Errorf("sleep: negative duration %v", float64(ms))
	}
	d := time.Duration(float64(ms) * float64(time.Millisecond))
	if h.Stop == nil {
		time.Sleep(d)
		return starlark.None, nil
	}
	return starlark.None, h.Stop.Sleep(d)
}

func (h Host) input(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt string
	if err := starlark.UnpackArgs("input", args, kwargs, "prompt?", &prompt); err != nil {
		return nil, err
	}
	if h.Console == nil {
		return nil, errUnavailable
	}
	if prompt != "" && h.Stdout != nil {
		if _, err := io.WriteString(h.Stdout, prompt); err != nil {
			return nil, err
		}
	}
	line, err := h.Console.ReadLine(h.Token)
	if err != nil {
		return nil, err
	}
	return starlark.String(line), nil
}

func (h Host) tone(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var freq, ms number
	if err := starlark.UnpackArgs("tone", args, kwargs, "freq", &freq, "ms", &ms); err != nil {
		return nil, err
	}
	t, err := sound.NewTone(float64(freq), time.Duration(float64(ms)*float64(time.Millisecond)))
	if err != nil {
		return nil, fmt.Errorf("tone(%v, %v): %w", float64(freq), float64(ms), err)
	}
	if h.Sound == nil {
		return nil, errUnavailable
	}
	h.Sound.Play(t)
	return starlark.None, nil
}
