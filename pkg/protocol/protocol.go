// Package protocol описывает сообщения WebSocket-релея доски.
//
// Каждый кадр: текстовый JSON {"type": ..., "payload": ...}.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cwrk-planet/board-service/pkg/drawing"
)

// Клиент -> сервер
const (
	TypeJoinRoom    = "join-room"
	TypeLeaveRoom   = "leave-room"
	TypeCursorMove  = "cursor-move"
	TypeDrawStart   = "draw-start"
	TypeDrawMove    = "draw-move"
	TypeDrawEnd     = "draw-end"
	TypeClearCanvas = "clear-canvas"
)

// Сервер -> клиент (плюс ретрансляция cursor-move, draw-*, clear-canvas)
const (
	TypeLoadDrawingData = "load-drawing-data"
	TypeUserCountUpdate = "user-count-update"
	TypeUserJoined      = "user-joined"
	TypeUserLeft        = "user-left"
	TypeError           = "error"
)

// Message — исходящий кадр.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Envelope — входящий кадр; payload разбирается уже по типу.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func New(typ string, payload interface{}) Message {
	return Message{Type: typ, Payload: payload}
}

// Decode разбирает payload конверта в dst.
func (e Envelope) Decode(dst interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// ParseEnvelope разбирает сырой кадр.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing message type")
	}
	return env, nil
}

type JoinRoom struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	UserID   string `json:"userId" validate:"required,max=128"`
	UserName string `json:"userName" validate:"max=128"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

type CursorMove struct {
	RoomID   string  `json:"roomId" validate:"required,max=64"`
	UserID   string  `json:"userId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color,omitempty" validate:"max=64"`
	UserName string  `json:"userName,omitempty" validate:"max=128"`
}

// Draw: payload draw-start, draw-move и draw-end.
// Для draw-move значим только последний элемент DrawingCommand.Points.
type Draw struct {
	RoomID         string              `json:"roomId" validate:"required,max=64"`
	UserID         string              `json:"userId"`
	DrawingCommand *drawing.StrokeData `json:"drawingCommand,omitempty"`
}

type ClearCanvas struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

type UserCount struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

type UserJoined struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserLeft struct {
	RoomID       string `json:"roomId"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}
