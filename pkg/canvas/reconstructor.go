// Package canvas собирает штрихи удалённых авторов из потока draw-* сообщений.
package canvas

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cwrk-planet/board-service/pkg/drawing"
	"github.com/cwrk-planet/board-service/pkg/protocol"

	"github.com/samber/lo"
)

// Renderer — поверхность, на которой рисуется доска.
type Renderer interface {
	// Dot рисует закрашенный круг радиуса width/2.
	Dot(p drawing.Point, color string, width float64)
	Segment(a, b drawing.Point, color string, width float64)
	Path(points []drawing.Point, color string, width float64)
	Clear()
}

// Reconstructor держит по одному незавершённому штриху на автора,
// так что чередующиеся draw-move разных авторов не смешиваются.
type Reconstructor struct {
	mu      sync.Mutex
	r       Renderer
	history []drawing.StrokeData
	active  map[string]*drawing.StrokeData
}

func NewReconstructor(r Renderer) *Reconstructor {
	return &Reconstructor{
		r:      r,
		active: make(map[string]*drawing.StrokeData),
	}
}

// DrawStart начинает (или перезапускает) штрих автора.
func (rc *Reconstructor) DrawStart(userID string, d drawing.StrokeData) {
	if len(d.Points) == 0 {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	s := d.Clone()
	rc.active[userID] = &s
	rc.render(s)
}

// DrawMove дописывает последнюю точку d в штрих автора и рисует только новый отрезок.
// Без DrawStart сообщение отбрасывается.
func (rc *Reconstructor) DrawMove(userID string, d drawing.StrokeData) {
	last, ok := d.LastPoint()
	if !ok {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	s, ok := rc.active[userID]
	if !ok {
		return
	}
	prev, _ := s.LastPoint()
	s.Append(last)
	rc.r.Segment(prev, last, s.Color, s.Width)
}

// DrawEnd завершает штрих автора и переносит его в историю.
func (rc *Reconstructor) DrawEnd(userID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	s, ok := rc.active[userID]
	if !ok {
		return
	}
	delete(rc.active, userID)

	if n := len(s.Points); n > 1 {
		rc.r.Segment(s.Points[n-2], s.Points[n-1], s.Color, s.Width)
	} else {
		rc.r.Dot(s.Points[0], s.Color, s.Width)
	}
	rc.history = append(rc.history, *s)
}

// LoadSnapshot заменяет историю логом комнаты и перерисовывает всё заново.
// Незавершённые штрихи других авторов сохраняются поверх.
//
// Штрих, начатый после входа в комнату, может прийти и живьём, и в снимке.
// Такой штрих остаётся только в active: его допишут draw-move и закроет draw-end.
func (rc *Reconstructor) LoadSnapshot(log []drawing.Command) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	visible := lo.Filter(drawing.Visible(log), func(c drawing.Command, _ int) bool { return c.IsStroke() && len(c.Data.Points) > 0 })
	dup := make(map[int]bool, len(rc.active))
	for userID, s := range rc.active {
		c, i, ok := lo.FindLastIndexOf(visible, func(c drawing.Command) bool { return c.UserID == userID })
		if ok && sameStroke(*c.Data, *s) {
			dup[i] = true
		}
	}
	rc.history = lo.FilterMap(visible, func(c drawing.Command, i int) (drawing.StrokeData, bool) {
		return c.Data.Clone(), !dup[i]
	})

	rc.r.Clear()
	for _, s := range rc.history {
		rc.render(s)
	}
	for _, s := range rc.active {
		rc.render(*s)
	}
}

// ClearCanvas стирает всё, включая незавершённые штрихи.
func (rc *Reconstructor) ClearCanvas() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.history = nil
	rc.active = make(map[string]*drawing.StrokeData)
	rc.r.Clear()
}

func (rc *Reconstructor) History() []drawing.StrokeData {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return lo.Map(rc.history, func(s drawing.StrokeData, _ int) drawing.StrokeData { return s.Clone() })
}

func (rc *Reconstructor) Active(userID string) (drawing.StrokeData, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	s, ok := rc.active[userID]
	if !ok {
		return drawing.StrokeData{}, false
	}
	return s.Clone(), true
}

// ActiveAuthors: авторы, у которых штрих ещё не завершён.
func (rc *Reconstructor) ActiveAuthors() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return lo.Keys(rc.active)
}

// Apply разбирает сообщение сервера. Неизвестные типы игнорируются.
func (rc *Reconstructor) Apply(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeLoadDrawingData:
		var log []drawing.Command
		if err := json.Unmarshal(env.Payload, &log); err != nil {
			return fmt.Errorf("%s: %w", env.Type, err)
		}
		rc.LoadSnapshot(log)
	case protocol.TypeDrawStart, protocol.TypeDrawMove, protocol.TypeDrawEnd:
		var p protocol.Draw
		if err := env.Decode(&p); err != nil {
			return err
		}
		switch env.Type {
		case protocol.TypeDrawStart:
			if p.DrawingCommand != nil {
				rc.DrawStart(p.UserID, *p.DrawingCommand)
			}
		case protocol.TypeDrawMove:
			if p.DrawingCommand != nil {
				rc.DrawMove(p.UserID, *p.DrawingCommand)
			}
		default:
			rc.DrawEnd(p.UserID)
		}
	case protocol.TypeClearCanvas:
		rc.ClearCanvas()
	}
	return nil
}

func (rc *Reconstructor) render(s drawing.StrokeData) {
	if len(s.Points) == 1 {
		rc.r.Dot(s.Points[0], s.Color, s.Width)
		return
	}
	rc.r.Path(s.Points, s.Color, s.Width)
}

// sameStroke: одна из версий штриха продолжает другую.
func sameStroke(a, b drawing.StrokeData) bool {
	if a.Color != b.Color || a.Width != b.Width {
		return false
	}
	if len(a.Points) > len(b.Points) {
		a, b = b, a
	}
	for i, p := range a.Points {
		if b.Points[i] != p {
			return false
		}
	}
	return true
}
