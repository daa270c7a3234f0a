package http

import (
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

type JoinRoomRequest struct {
	RoomID string `json:"roomId" validate:"max=64"`
}

type JoinRoomResponse struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type RoomResponse struct {
	RoomID       string           `json:"roomId"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastActivity time.Time        `json:"lastActivity"`
	DrawingData  []domain.Command `json:"drawingData"`
}

type RoomsListResponse struct {
	Items      []domain.RoomSummary `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type ActiveRoomsResponse struct {
	Items []ActiveRoomItem `json:"items"`
}

type ActiveRoomItem struct {
	RoomID string   `json:"roomId"`
	Count  int      `json:"count"`
	Users  []string `json:"users"`
}
