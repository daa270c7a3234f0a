package domain

import "github.com/cwrk-planet/board-service/pkg/drawing"

// Модель штрихов публичная: её же используют клиенты из pkg/.
type (
	Point       = drawing.Point
	StrokeData  = drawing.StrokeData
	CommandType = drawing.CommandType
	Command     = drawing.Command
)

const (
	CommandStroke = drawing.CommandStroke
	CommandClear  = drawing.CommandClear
)

var (
	NewStrokeCommand = drawing.NewStrokeCommand
	NewClearCommand  = drawing.NewClearCommand
	Visible          = drawing.Visible
)
