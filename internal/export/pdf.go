// Package export печатает доску в PDF.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/pkg/canvas"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageMargin = 10.0 // mm
	headerH    = 8.0
)

// PDFRenderer — canvas.Renderer поверх gofpdf. Координаты доски
// переводятся в мм страницы через scale и смещение.
type PDFRenderer struct {
	pdf   *gofpdf.Fpdf
	scale float64
	offX  float64
	offY  float64
	minX  float64
	minY  float64
	title string
	pages int
	drawn bool
}

var _ canvas.Renderer = (*PDFRenderer)(nil)

// RenderRoom рисует видимую часть лога комнаты (после последнего clear) и пишет PDF в w.
func RenderRoom(w io.Writer, room *domain.Room, at time.Time) error {
	visible := domain.Visible(room.DrawingData)

	r := newPDFRenderer(fmt.Sprintf("Room %s  %s", room.ID, at.UTC().Format(time.RFC3339)), bounds(visible))
	canvas.NewReconstructor(r).LoadSnapshot(visible)

	if err := r.pdf.Output(w); err != nil {
		return fmt.Errorf("export pdf: %w", err)
	}
	return nil
}

type box struct{ minX, minY, maxX, maxY float64 }

func bounds(log []domain.Command) box {
	b := box{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	for _, c := range log {
		if !c.IsStroke() {
			continue
		}
		pad := c.Data.Width / 2
		for _, p := range c.Data.Points {
			b.minX = math.Min(b.minX, p.X-pad)
			b.minY = math.Min(b.minY, p.Y-pad)
			b.maxX = math.Max(b.maxX, p.X+pad)
			b.maxY = math.Max(b.maxY, p.Y+pad)
		}
	}
	if math.IsInf(b.minX, 1) {
		return box{}
	}
	return b
}

func newPDFRenderer(title string, b box) *PDFRenderer {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	pageW, pageH := pdf.GetPageSize()
	areaW := pageW - 2*pageMargin
	areaH := pageH - 2*pageMargin - headerH

	// масштаб только уменьшает: маленькая доска не растягивается на весь лист
	scale := 1.0
	if w, h := b.maxX-b.minX, b.maxY-b.minY; w > 0 && h > 0 {
		scale = math.Min(1, math.Min(areaW/w, areaH/h))
	}

	r := &PDFRenderer{
		pdf:   pdf,
		scale: scale,
		offX:  pageMargin,
		offY:  pageMargin + headerH,
		minX:  b.minX,
		minY:  b.minY,
		title: title,
	}
	r.newPage()
	return r
}

func (r *PDFRenderer) newPage() {
	r.pdf.AddPage()
	r.pages++
	r.drawn = false
	r.pdf.SetFont("Helvetica", "", 9)
	r.pdf.SetTextColor(120, 120, 120)
	r.pdf.Text(pageMargin, pageMargin+4, r.title)
}

func (r *PDFRenderer) xy(p domain.Point) (float64, float64) {
	return r.offX + (p.X-r.minX)*r.scale, r.offY + (p.Y-r.minY)*r.scale
}

func (r *PDFRenderer) pen(color string, width float64) {
	cr, cg, cb := ParseColor(color)
	r.pdf.SetDrawColor(cr, cg, cb)
	r.pdf.SetFillColor(cr, cg, cb)
	r.pdf.SetLineWidth(math.Max(width*r.scale, 0.1))
	r.drawn = true
}

func (r *PDFRenderer) Dot(p domain.Point, color string, width float64) {
	r.pen(color, width)
	x, y := r.xy(p)
	r.pdf.Circle(x, y, math.Max(width*r.scale/2, 0.1), "F")
}

func (r *PDFRenderer) Segment(a, b domain.Point, color string, width float64) {
	r.pen(color, width)
	x1, y1 := r.xy(a)
	x2, y2 := r.xy(b)
	r.pdf.Line(x1, y1, x2, y2)
}

func (r *PDFRenderer) Path(points []domain.Point, color string, width float64) {
	if len(points) == 0 {
		return
	}
	r.pen(color, width)
	x, y := r.xy(points[0])
	r.pdf.MoveTo(x, y)
	for _, p := range points[1:] {
		x, y = r.xy(p)
		r.pdf.LineTo(x, y)
	}
	r.pdf.DrawPath("D")
}

// Clear начинает новый лист.
func (r *PDFRenderer) Clear() {
	if r.drawn {
		r.newPage()
	}
}

// Pages возвращает число страниц.
func (r *PDFRenderer) Pages() int { return r.pages }

var namedColors = map[string][3]int{
	"black":  {0, 0, 0},
	"white":  {255, 255, 255},
	"red":    {255, 0, 0},
	"green":  {0, 128, 0},
	"blue":   {0, 0, 255},
	"yellow": {255, 255, 0},
	"orange": {255, 165, 0},
	"purple": {128, 0, 128},
	"gray":   {128, 128, 128},
}

// ParseColor понимает #rgb, #rrggbb и несколько имён; всё остальное рисуется чёрным.
func ParseColor(s string) (int, int, int) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c[0], c[1], c[2]
	}
	if !strings.HasPrefix(s, "#") {
		return 0, 0, 0
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
