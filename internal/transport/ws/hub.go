package ws

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/pkg/protocol"

	"github.com/samber/lo"
)

type Conn interface {
	ID() string
	Send(msg protocol.Message) error
	Close() error
}

// RoomPresence — живые участники комнаты (для /rooms/active).
type RoomPresence struct {
	RoomID string   `json:"roomId"`
	Count  int      `json:"count"`
	Users  []string `json:"users"`
}

// Hub — реестр сессий: кто в какой комнате.
// Обе карты меняются только вместе, под одним mu.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]domain.Session // roomID -> conn -> session
	conns map[Conn]map[string]struct{}       // conn -> roomIDs
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[Conn]domain.Session),
		conns: make(map[Conn]map[string]struct{}),
	}
}

// Join добавляет соединение в комнату и возвращает размер комнаты.
// Повторный Join того же соединения обновляет только данные сессии.
func (h *Hub) Join(c Conn, roomID, userID, userName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[roomID]
	if !ok {
		rs = make(map[Conn]domain.Session)
		h.rooms[roomID] = rs
	}
	rs[c] = domain.Session{
		ConnectionID: c.ID(),
		RoomID:       roomID,
		UserID:       userID,
		UserName:     userName,
	}

	cr, ok := h.conns[c]
	if !ok {
		cr = make(map[string]struct{})
		h.conns[c] = cr
	}
	cr[roomID] = struct{}{}

	return len(rs)
}

// Leave возвращает размер комнаты после выхода и был ли c её участником.
func (h *Hub) Leave(c Conn, roomID string) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.leaveLocked(c, roomID)
}

// Disconnect выводит соединение из всех его комнат разом.
func (h *Hub) Disconnect(c Conn) map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	left := make(map[string]int, len(h.conns[c]))
	for roomID := range h.conns[c] {
		if n, ok := h.leaveLocked(c, roomID); ok {
			left[roomID] = n
		}
	}
	delete(h.conns, c)
	return left
}

func (h *Hub) leaveLocked(c Conn, roomID string) (int, bool) {
	rs, ok := h.rooms[roomID]
	if !ok {
		return 0, false
	}
	if _, ok := rs[c]; !ok {
		return len(rs), false
	}

	delete(rs, c)
	n := len(rs)
	if n == 0 {
		delete(h.rooms, roomID)
	}

	if cr, ok := h.conns[c]; ok {
		delete(cr, roomID)
		if len(cr) == 0 {
			delete(h.conns, c)
		}
	}
	return n, true
}

func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Session возвращает сессию c в комнате roomID.
func (h *Hub) Session(c Conn, roomID string) (domain.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.rooms[roomID][c]
	return s, ok
}

// RoomsOf возвращает комнаты соединения.
func (h *Hub) RoomsOf(c Conn) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := lo.Keys(h.conns[c])
	sort.Strings(ids)
	return ids
}

func (h *Hub) Rooms() []RoomPresence {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := lo.MapToSlice(h.rooms, func(roomID string, rs map[Conn]domain.Session) RoomPresence {
		users := lo.Uniq(lo.MapToSlice(rs, func(_ Conn, s domain.Session) string { return s.UserID }))
		sort.Strings(users)
		return RoomPresence{RoomID: roomID, Count: len(rs), Users: users}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Broadcast рассылает msg всем в комнате, кроме except (nil = всем).
// Отправка идёт вне блокировки.
func (h *Hub) Broadcast(roomID string, msg protocol.Message, except Conn) {
	h.mu.RLock()
	targets := lo.Filter(lo.Keys(h.rooms[roomID]), func(c Conn, _ int) bool { return c != except })
	h.mu.RUnlock()

	for _, c := range targets {
		_ = c.Send(msg) // best-effort
	}
}
