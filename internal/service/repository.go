package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

// RoomRepository — хранилище логов комнат. Реализации: postgres, badgerdb, sqlite, memory.
//
// Репозиторий не сериализует мутации одной комнаты сам по себе:
// это делает RoomService (по одному актору на комнату).
type RoomRepository interface {
	// Create возвращает domain.ErrRoomExists, если id уже занят.
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id string) (*domain.Room, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// AppendCommand добавляет команду в конец лога и возвращает её индекс.
	AppendCommand(ctx context.Context, id string, cmd domain.Command) (int, error)
	// AppendPoint дописывает точку в штрих с индексом index.
	// domain.ErrStrokeNotFound, если по индексу нет штриха.
	AppendPoint(ctx context.Context, id string, index int, p domain.Point) error
	// ResetLog заменяет весь лог одной командой.
	ResetLog(ctx context.Context, id string, cmd domain.Command) error
	List(ctx context.Context, limit int, cursor string) ([]domain.RoomSummary, string, error)
	Ping(ctx context.Context) error
	Close() error
}
