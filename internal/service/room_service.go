package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

var ErrClosed = errors.New("room service closed")

const (
	defaultIdleTimeout = 5 * time.Minute
	defaultInboxSize   = 64
	maxGenerateTries   = 5
)

type Option func(*RoomService)

// WithIdleTimeout задаёт простой, после которого актор комнаты выгружается.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *RoomService) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

func WithInboxSize(n int) Option {
	return func(s *RoomService) {
		if n > 0 {
			s.inboxSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *RoomService) {
		if now != nil {
			s.now = now
		}
	}
}

type RoomService struct {
	repo RoomRepository
	now  func() time.Time

	idleTimeout time.Duration
	inboxSize   int

	mu     sync.Mutex
	actors map[string]*roomActor
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewRoomService(repo RoomRepository, opts ...Option) *RoomService {
	s := &RoomService{
		repo:        repo,
		now:         time.Now,
		idleTimeout: defaultIdleTimeout,
		inboxSize:   defaultInboxSize,
		actors:      make(map[string]*roomActor),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JoinOrCreate заходит в существующую комнату или создаёт новую.
// Для пустого requestedID генерируется код; иначе код принимается как есть (после нормализации).
func (s *RoomService) JoinOrCreate(ctx context.Context, requestedID string) (string, bool, error) {
	id := domain.NormalizeRoomID(requestedID)
	if id == "" {
		return s.createGenerated(ctx)
	}
	if err := domain.ValidateRoomID(id); err != nil {
		return "", false, err
	}

	var created bool
	err := s.do(ctx, id, func(st *roomState) error {
		err := s.repo.Touch(ctx, id, s.now())
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrRoomNotFound) {
			return err
		}

		err = s.repo.Create(ctx, s.newRoom(id))
		switch {
		case err == nil:
			created = true
			return nil
		case errors.Is(err, domain.ErrRoomExists):
			// комнату успел создать другой инстанс, просто заходим
			return s.repo.Touch(ctx, id, s.now())
		default:
			return err
		}
	})
	if err != nil {
		return "", false, fmt.Errorf("join room %s: %w", id, err)
	}
	return id, created, nil
}

func (s *RoomService) createGenerated(ctx context.Context) (string, bool, error) {
	for i := 0; i < maxGenerateTries; i++ {
		id := domain.GenerateRoomID()
		err := s.do(ctx, id, func(st *roomState) error {
			return s.repo.Create(ctx, s.newRoom(id))
		})
		if err == nil {
			return id, true, nil
		}
		if !errors.Is(err, domain.ErrRoomExists) {
			return "", false, fmt.Errorf("create room: %w", err)
		}
		slog.Debug("generated room id collision", "room", id)
	}
	return "", false, fmt.Errorf("create room: %w", domain.ErrRoomExists)
}

func (s *RoomService) newRoom(id string) *domain.Room {
	now := s.now()
	return &domain.Room{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		DrawingData:  []domain.Command{},
	}
}

// GetRoom возвращает комнату по ID.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	id = domain.NormalizeRoomID(id)
	if err := domain.ValidateRoomID(id); err != nil {
		return nil, domain.ErrRoomNotFound
	}
	return s.repo.Get(ctx, id)
}

// GetSnapshot возвращает полный упорядоченный лог комнаты для реплея.
func (s *RoomService) GetSnapshot(ctx context.Context, id string) ([]domain.Command, error) {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	return room.DrawingData, nil
}

// AppendStroke добавляет новый штрих и делает его продолжаемым для userID.
// Штрих другого автора перестаёт быть продолжаемым.
func (s *RoomService) AppendStroke(ctx context.Context, roomID, userID string, data domain.StrokeData) error {
	if err := domain.ValidateStroke(data); err != nil {
		return err
	}
	roomID, err := roomKey(roomID)
	if err != nil {
		return err
	}

	return s.do(ctx, roomID, func(st *roomState) error {
		st.active = nil
		idx, err := s.repo.AppendCommand(ctx, roomID, domain.NewStrokeCommand(userID, data, s.now()))
		if err != nil {
			return fmt.Errorf("append stroke: %w", err)
		}
		st.active = &activeStroke{userID: userID, index: idx}
		return nil
	})
}

// ExtendLastStroke дописывает точку в продолжаемый штрих userID.
// false без ошибки: штриха нет (чужой start, clear, или start не приходил).
func (s *RoomService) ExtendLastStroke(ctx context.Context, roomID, userID string, p domain.Point) (bool, error) {
	roomID, err := roomKey(roomID)
	if err != nil {
		return false, err
	}

	var extended bool
	err = s.do(ctx, roomID, func(st *roomState) error {
		if !st.owns(userID) {
			return nil
		}
		err := s.repo.AppendPoint(ctx, roomID, st.active.index, p)
		switch {
		case err == nil:
			extended = true
			return nil
		case errors.Is(err, domain.ErrStrokeNotFound), errors.Is(err, domain.ErrRoomNotFound):
			st.active = nil
			return nil
		default:
			return fmt.Errorf("append point: %w", err)
		}
	})
	return extended, err
}

// FinishStroke закрывает штрих userID (draw-end). Содержимое не пишется.
func (s *RoomService) FinishStroke(ctx context.Context, roomID, userID string) error {
	roomID, err := roomKey(roomID)
	if err != nil {
		return err
	}

	return s.do(ctx, roomID, func(st *roomState) error {
		if st.owns(userID) {
			st.active = nil
		}
		return nil
	})
}

// Clear заменяет лог одной командой clear. Необратимо.
func (s *RoomService) Clear(ctx context.Context, roomID string) error {
	roomID, err := roomKey(roomID)
	if err != nil {
		return err
	}

	return s.do(ctx, roomID, func(st *roomState) error {
		st.active = nil
		if err := s.repo.ResetLog(ctx, roomID, domain.NewClearCommand(s.now())); err != nil {
			return fmt.Errorf("clear room: %w", err)
		}
		return nil
	})
}

// ListRooms возвращает список комнат с курсорной пагинацией.
func (s *RoomService) ListRooms(ctx context.Context, limit int, cursor string) ([]domain.RoomSummary, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	return s.repo.List(ctx, limit, cursor)
}

func (s *RoomService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// ActiveRooms: сколько акторов сейчас загружено.
func (s *RoomService) ActiveRooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actors)
}

// Close останавливает всех акторов. Репозиторий закрывает владелец.
func (s *RoomService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
}

func roomKey(id string) (string, error) {
	id = domain.NormalizeRoomID(id)
	if err := domain.ValidateRoomID(id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *RoomService) acquire(id string) (*roomActor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	a, ok := s.actors[id]
	if !ok {
		a = newRoomActor(id, s.inboxSize)
		s.actors[id] = a
		s.wg.Add(1)
		go s.run(a)
	}
	a.pending.Add(1)
	return a, nil
}

// do выполняет fn внутри актора комнаты id и ждёт результат.
func (s *RoomService) do(ctx context.Context, id string, fn func(st *roomState) error) error {
	a, err := s.acquire(id)
	if err != nil {
		return err
	}

	reply := make(chan error, 1)
	job := func(st *roomState) { reply <- fn(st) }

	select {
	case a.inbox <- job:
	case <-ctx.Done():
		a.pending.Add(-1)
		return ctx.Err()
	case <-a.done:
		return ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		// актор мог успеть выполнить задачу перед остановкой
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}
