package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/storage"
)

// RoomRepository — хранилище в памяти процесса. Для dev и тестов.
type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{rooms: make(map[string]*domain.Room)}
}

func (r *RoomRepository) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; ok {
		return domain.ErrRoomExists
	}
	r.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (r *RoomRepository) Get(_ context.Context, id string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (r *RoomRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.LastActivity = at
	return nil
}

func (r *RoomRepository) AppendCommand(_ context.Context, id string, cmd domain.Command) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	room.DrawingData = append(room.DrawingData, cmd.Clone())
	return len(room.DrawingData) - 1, nil
}

func (r *RoomRepository) AppendPoint(_ context.Context, id string, index int, p domain.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if index < 0 || index >= len(room.DrawingData) || !room.DrawingData[index].IsStroke() {
		return domain.ErrStrokeNotFound
	}
	room.DrawingData[index].Data.Append(p)
	return nil
}

func (r *RoomRepository) ResetLog(_ context.Context, id string, cmd domain.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.DrawingData = []domain.Command{cmd.Clone()}
	return nil
}

func (r *RoomRepository) List(_ context.Context, limit int, cursor string) ([]domain.RoomSummary, string, error) {
	r.mu.RLock()
	all := make([]domain.RoomSummary, 0, len(r.rooms))
	for _, room := range r.rooms {
		all = append(all, room.Summary())
	}
	r.mu.RUnlock()

	return storage.Paginate(all, limit, cursor)
}

func (r *RoomRepository) Ping(context.Context) error { return nil }

func (r *RoomRepository) Close() error { return nil }

func cloneRoom(room *domain.Room) *domain.Room {
	out := *room
	out.DrawingData = make([]domain.Command, len(room.DrawingData))
	for i, c := range room.DrawingData {
		out.DrawingData[i] = c.Clone()
	}
	return &out
}
