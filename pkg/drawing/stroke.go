// Package drawing — модель штрихов и лога команд доски, общая для сервера и клиентов.
package drawing

import (
	"encoding/json"
	"fmt"
	"time"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type StrokeData struct {
	Points []Point `json:"points" validate:"required,min=1"`
	Color  string  `json:"color" validate:"required,max=64"`
	Width  float64 `json:"width" validate:"gt=0,lte=512"`
}

// LastPoint возвращает последнюю точку штриха; false для пустого списка.
func (s StrokeData) LastPoint() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Append: штрих только растёт, существующие точки не меняются.
func (s *StrokeData) Append(p Point) {
	s.Points = append(s.Points, p)
}

func (s StrokeData) Clone() StrokeData {
	out := s
	out.Points = make([]Point, len(s.Points))
	copy(out.Points, s.Points)
	return out
}

type CommandType string

const (
	CommandStroke CommandType = "stroke"
	CommandClear  CommandType = "clear"
)

// Command — элемент лога комнаты. Для clear поле Data всегда nil,
// автор штриха хранится отдельно от содержимого.
type Command struct {
	Type      CommandType
	Data      *StrokeData
	UserID    string
	Timestamp time.Time
}

func NewStrokeCommand(userID string, data StrokeData, at time.Time) Command {
	d := data.Clone()
	return Command{
		Type:      CommandStroke,
		Data:      &d,
		UserID:    userID,
		Timestamp: at,
	}
}

func NewClearCommand(at time.Time) Command {
	return Command{Type: CommandClear, Timestamp: at}
}

func (c Command) IsStroke() bool { return c.Type == CommandStroke && c.Data != nil }

func (c Command) Clone() Command {
	out := c
	if c.Data != nil {
		d := c.Data.Clone()
		out.Data = &d
	}
	return out
}

type commandJSON struct {
	Type      CommandType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

var emptyObject = json.RawMessage(`{}`)

func (c Command) MarshalJSON() ([]byte, error) {
	out := commandJSON{
		Type:      c.Type,
		Data:      emptyObject,
		UserID:    c.UserID,
		Timestamp: c.Timestamp,
	}
	if c.Type == CommandStroke && c.Data != nil {
		b, err := json.Marshal(c.Data)
		if err != nil {
			return nil, err
		}
		out.Data = b
	}
	return json.Marshal(out)
}

func (c *Command) UnmarshalJSON(b []byte) error {
	var in commandJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*c = Command{Type: in.Type, UserID: in.UserID, Timestamp: in.Timestamp}

	switch in.Type {
	case CommandClear:
		return nil
	case CommandStroke:
		var d StrokeData
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &d); err != nil {
				return fmt.Errorf("decode stroke data: %w", err)
			}
		}
		c.Data = &d
		return nil
	default:
		return fmt.Errorf("unknown command type %q", in.Type)
	}
}

// Visible отбрасывает всё до последнего clear включительно —
// именно это видит зритель после реплея лога.
func Visible(log []Command) []Command {
	start := 0
	for i, c := range log {
		if c.Type == CommandClear {
			start = i + 1
		}
	}
	return log[start:]
}
