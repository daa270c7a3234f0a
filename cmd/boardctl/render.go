package main

import (
	"fmt"
	"io"

	"github.com/cwrk-planet/board-service/pkg/drawing"

	"github.com/gookit/color"
)

// termRenderer печатает операции отрисовки строками, цветом штриха.
type termRenderer struct {
	out io.Writer
}

func newTermRenderer(out io.Writer) *termRenderer {
	return &termRenderer{out: out}
}

func (r *termRenderer) Dot(p drawing.Point, col string, width float64) {
	r.print(col, "dot (%.0f,%.0f) w=%g", p.X, p.Y, width)
}

func (r *termRenderer) Segment(a, b drawing.Point, col string, width float64) {
	r.print(col, "line (%.0f,%.0f) -> (%.0f,%.0f) w=%g", a.X, a.Y, b.X, b.Y, width)
}

func (r *termRenderer) Path(points []drawing.Point, col string, width float64) {
	if len(points) == 0 {
		return
	}
	first, last := points[0], points[len(points)-1]
	r.print(col, "path %d pts (%.0f,%.0f) .. (%.0f,%.0f) w=%g",
		len(points), first.X, first.Y, last.X, last.Y, width)
}

func (r *termRenderer) Clear() {
	fmt.Fprintln(r.out, color.Warn.Sprint("-- canvas cleared --"))
}

func (r *termRenderer) print(col, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if c := color.HEX(col); !c.IsEmpty() {
		line = c.Sprint(line)
	}
	fmt.Fprintln(r.out, line)
}
