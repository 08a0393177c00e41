package library

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/sakif/livecanvas/internal/canvas"
)

func canvasModule(h Host) starlark.Value {
	return module("canvas", map[string]builtinFunc{
		"circle":  h.circle,
		"line":    h.line,
		"rect":    h.rect,
		"polygon": h.polygon,
		"text":    h.text,
		"remove":  h.remove,
		"clear":   h.clear,
		"width":   h.width,
		"height":  h.height,
	})
}

func (h Host) draw(s canvas.Shape) (starlark.Value, error) {
	if h.Graphics == nil {
		return nil, errUnavailable
	}
	id, err := h.Graphics.Draw(s)
	if err != nil {
		return nil, err
	}
	return starlark.MakeUint64(uint64(id)), nil
}

func (h Host) circle(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y, r, width number
	var stroke, fill string
	if err := starlark.UnpackArgs("circle", args, kwargs,
		"x", &x, "y", &y, "r", &r, "stroke?", &stroke, "fill?", &fill, "width?", &width); err != nil {
		return nil, err
	}
	if r < 0 {
		return nil, fmt.Errorf("circle: negative radius %v", float64(r))
	}
	return h.draw(canvas.Circle{
		X: float64(x), Y: float64(y), R: float64(r),
		Style: canvas.Style{Stroke: stroke, Fill: fill, Width: float64(width)},
	})
}

func (h Host) line(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x1, y1, x2, y2, width number
	var stroke string
	if err := starlark.UnpackArgs("line", args, kwargs,
		"x1", &x1, "y1", &y1, "x2", &x2, "y2", &y2, "stroke?", &stroke, "width?", &width); err != nil {
		return nil, err
	}
	return h.draw(canvas.Line{
		X1: float64(x1), Y1: float64(y1), X2: float64(x2), Y2: float64(y2),
		Style: canvas.Style{Stroke: stroke, Width: float64(width)},
	})
}

func (h Host) rect(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y, w, hh, width number
	var stroke, fill string
	if err := starlark.UnpackArgs("rect", args, kwargs,
		"x", &x, "y", &y, "w", &w, "h", &hh, "stroke?", &stroke, "fill?", &fill, "width?", &width); err != nil {
		return nil, err
	}
	return h.draw(canvas.Rect{
		X: float64(x), Y: float64(y), W: float64(w), H: float64(hh),
		Style: canvas.Style{Stroke: stroke, Fill: fill, Width: float64(width)},
	})
}

func (h Host) polygon(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var points starlark.Iterable
	var width number
	var stroke, fill string
	if err := starlark.UnpackArgs("polygon", args, kwargs,
		"points", &points, "stroke?", &stroke, "fill?", &fill, "width?", &width); err != nil {
		return nil, err
	}

	var pts []canvas.Point
	iter := points.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		pair, ok := v.(starlark.Indexable)
		if !ok || pair.Len() != 2 {
			return nil, fmt.Errorf("polygon: each point must be an (x, y) pair, got %s", v.String())
		}
		var x, y number
		if err := x.Unpack(pair.Index(0)); err != nil {
			return nil, fmt.Errorf("polygon: x: %w", err)
		}
		if err := y.Unpack(pair.Index(1)); err != nil {
			return nil, fmt.Errorf("polygon: y: %w", err)
		}
		pts = append(pts, canvas.Point{X: float64(x), Y: float64(y)})
	}
	if len(pts) < 3 {
		return nil, fmt.Errorf("polygon: need at least 3 points, got %d", len(pts))
	}
	return h.draw(canvas.Polygon{
		Points: pts,
		Style:  canvas.Style{Stroke: stroke, Fill: fill, Width: float64(width)},
	})
}

func (h Host) text(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y, size number
	var s starlark.Value
	var fill string
	if err := starlark.UnpackArgs("text", args, kwargs,
		"x", &x, "y", &y, "s", &s, "fill?", &fill, "size?", &size); err != nil {
		return nil, err
	}
	str, ok := starlark.AsString(s)
	if !ok {
		str = s.String()
	}
	return h.draw(canvas.Text{
		X: float64(x), Y: float64(y), Text: str, Size: float64(size),
		Style: canvas.Style{Fill: fill},
	})
}

func (h Host) remove(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id int
	if err := starlark.UnpackArgs("remove", args, kwargs, "id", &id); err != nil {
		return nil, err
	}
	if h.Graphics == nil {
		return nil, errUnavailable
	}
	if id <= 0 {
		return nil, fmt.Errorf("remove: invalid shape id %d", id)
	}
	return starlark.None, h.Graphics.Remove(canvas.ID(id))
}

func (h Host) clear(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs("clear", args, kwargs); err != nil {
		return nil, err
	}
	if h.Graphics == nil {
		return nil, errUnavailable
	}
	return starlark.None, h.Graphics.Clear()
}

func (h Host) size() (canvas.Size, error) {
	if h.Graphics == nil {
		return canvas.Size{}, errUnavailable
	}
	return h.Graphics.Size()
}

func (h Host) width(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs("width", args, kwargs); err != nil {
		return nil, err
	}
	s, err := h.size()
	if err != nil {
		return nil, err
	}
	return starlark.Float(s.Width), nil
}

func (h Host) height(args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs("height", args, kwargs); err != nil {
		return nil, err
	}
	s, err := h.size()
	if err != nil {
		return nil, err
	}
	return starlark.Float(s.Height), nil
}
