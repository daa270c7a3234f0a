package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const GeneratedRoomIDLen = 8

type Room struct {
	ID           string    `json:"roomId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	DrawingData  []Command `json:"drawingData"`
}

type RoomSummary struct {
	ID           string    `json:"roomId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Commands     int       `json:"commands"`
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		Commands:     len(r.DrawingData),
	}
}

var roomIDPattern = regexp.MustCompile(`^[A-Z0-9_-]{1,64}$`)

// NormalizeRoomID приводит код комнаты к каноническому виду (trim + upper case).
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func ValidateRoomID(id string) error {
	if !roomIDPattern.MatchString(id) {
		return ErrInvalidRoomID
	}
	return nil
}

// GenerateRoomID: короткий код из 8 символов верхнего регистра.
func GenerateRoomID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:GeneratedRoomIDLen])
}
