package canvas

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteSVG renders a snapshot as a standalone SVG document. Used by
// GET /api/canvas.svg and by `livecanvas run --svg`.
func WriteSVG(w io.Writer, snap Snapshot) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`+"\n",
		num(snap.Size.Width), num(snap.Size.Height), num(snap.Size.Width), num(snap.Size.Height))
	fmt.Fprintf(bw, `<rect width="100%%" height="100%%" fill="white"/>`+"\n")

	for _, it := range snap.Items {
		switch s := it.Shape.(type) {
		case Circle:
			fmt.Fprintf(bw, `<circle cx="%s" cy="%s" r="%s"%s/>`+"\n", num(s.X), num(s.Y), num(s.R), styleAttrs(s.Style))
		case Line:
			fmt.Fprintf(bw, `<line x1="%s" y1="%s" x2="%s" y2="%s"%s/>`+"\n",
				num(s.X1), num(s.Y1), num(s.X2), num(s.Y2), styleAttrs(lineStyle(s.Style)))
		case Rect:
			fmt.Fprintf(bw, `<rect x="%s" y="%s" width="%s" height="%s"%s/>`+"\n",
				num(s.X), num(s.Y), num(s.W), num(s.H), styleAttrs(s.Style))
		case Polygon:
			pts := make([]string, len(s.Points))
			for i, p := range s.Points {
				pts[i] = num(p.X) + "," + num(p.Y)
			}
			fmt.Fprintf(bw, `<polygon points="%s"%s/>`+"\n", strings.Join(pts, " "), styleAttrs(s.Style))
		case Text:
			size := s.Size
			if size <= 0 {
				size = 16
			}
			fmt.Fprintf(bw, `<text x="%s" y="%s" font-size="%s"%s>`, num(s.X), num(s.Y), num(size), styleAttrs(textStyle(s.Style)))
			if err := xml.EscapeText(bw, []byte(s.Text)); err != nil {
				return fmt.Errorf("canvas: escaping text: %w", err)
			}
			bw.WriteString("</text>\n")
		default:
			return fmt.Errorf("canvas: cannot render shape %T", it.Shape)
		}
	}

	bw.WriteString("</svg>\n")
	return bw.Flush()
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func styleAttrs(st Style) string {
	var sb strings.Builder
	fill := st.Fill
	if fill == "" {
		fill = "none"
	}
	sb.WriteString(` fill="` + attr(fill) + `"`)
	if st.Stroke != "" {
		sb.WriteString(` stroke="` + attr(st.Stroke) + `"`)
	}
	if st.Width > 0 {
		sb.WriteString(` stroke-width="` + num(st.Width) + `"`)
	}
	return sb.String()
}

// A line with no stroke colour would be invisible.
func lineStyle(st Style) Style {
	if st.Stroke == "" {
		st.Stroke = "black"
	}
	return st
}

// Text is painted with fill, defaulting to black.
func textStyle(st Style) Style {
	if st.Fill == "" {
		st.Fill = "black"
	}
	return st
}

func attr(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
