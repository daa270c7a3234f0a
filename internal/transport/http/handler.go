package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/export"
	"github.com/cwrk-planet/board-service/internal/storage"
	"github.com/cwrk-planet/board-service/internal/transport/ws"
	"github.com/cwrk-planet/board-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

const (
	msgRoomCreated  = "Room created successfully."
	msgRoomJoined   = "Joined existing room."
	msgRoomNotFound = "Room not found."
	msgBadRoomID    = "Invalid room id: use 1-64 characters A-Z, 0-9, '_' or '-'."
)

type RoomSvc interface {
	JoinOrCreate(ctx context.Context, requestedID string) (string, bool, error)
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	ListRooms(ctx context.Context, limit int, cursor string) ([]domain.RoomSummary, string, error)
	Ping(ctx context.Context) error
}

// Presence отдаёт живые комнаты из реестра сессий.
type Presence interface {
	Rooms() []ws.RoomPresence
}

type Handler struct {
	rooms    RoomSvc
	presence Presence
	now      func() time.Time
}

func NewHandler(rooms RoomSvc, presence Presence) *Handler {
	return &Handler{rooms: rooms, presence: presence, now: time.Now}
}

// POST /rooms/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "Invalid JSON.", nil)
		return
	}
	if err := domain.Struct(req); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, msgBadRoomID, nil)
		return
	}

	roomID, created, err := h.rooms.JoinOrCreate(r.Context(), req.RoomID)
	if err != nil {
		h.fail(w, r, "handler.JoinRoom", err, "Server error while joining/creating room.")
		return
	}

	if created {
		httputil.LoggerFrom(r.Context()).Info("room created", "room", roomID)
		httputil.JSON(w, http.StatusCreated, JoinRoomResponse{RoomID: roomID, Message: msgRoomCreated})
		return
	}
	httputil.JSON(w, http.StatusOK, JoinRoomResponse{RoomID: roomID, Message: msgRoomJoined})
}

// GET /rooms/{roomId}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.fail(w, r, "handler.GetRoom", err, "Server error while fetching room data.")
		return
	}

	httputil.JSON(w, http.StatusOK, RoomResponse{
		RoomID:       room.ID,
		CreatedAt:    room.CreatedAt,
		LastActivity: room.LastActivity,
		DrawingData:  room.DrawingData,
	})
}

// GET /rooms?limit=&cursor=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	rooms, next, err := h.rooms.ListRooms(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid_cursor", nil)
			return
		}
		h.fail(w, r, "handler.ListRooms", err, "Server error while listing rooms.")
		return
	}
	if rooms == nil {
		rooms = []domain.RoomSummary{}
	}

	httputil.JSON(w, http.StatusOK, RoomsListResponse{Items: rooms, NextCursor: next})
}

// GET /rooms/{roomId}/export.pdf
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.fail(w, r, "handler.ExportPDF", err, "Server error while exporting room.")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="board-%s.pdf"`, room.ID))
	if err := export.RenderRoom(w, room, h.now()); err != nil {
		// заголовки уже ушли, остаётся только лог
		httputil.LoggerFrom(r.Context()).Error("handler.ExportPDF: render", "room", room.ID, "err", err)
	}
}

// GET /rooms/active
func (h *Handler) ActiveRooms(w http.ResponseWriter, r *http.Request) {
	items := lo.Map(h.presence.Rooms(), func(p ws.RoomPresence, _ int) ActiveRoomItem {
		return ActiveRoomItem{RoomID: p.RoomID, Count: p.Count, Users: p.Users}
	})
	httputil.JSON(w, http.StatusOK, ActiveRoomsResponse{Items: items})
}

// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GET /readyz
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.rooms.Ping(ctx); err != nil {
		httputil.LoggerFrom(r.Context()).Warn("readiness check failed", "err", err)
		httputil.Error(r.Context(), w, http.StatusServiceUnavailable, "store unavailable", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error, serverMsg string) {
	status := ToHTTP(err)
	switch status {
	case http.StatusNotFound:
		httputil.Error(r.Context(), w, status, msgRoomNotFound, nil)
	case http.StatusBadRequest:
		msg := err.Error()
		if errors.Is(err, domain.ErrInvalidRoomID) {
			msg = msgBadRoomID
		}
		httputil.Error(r.Context(), w, status, msg, nil)
	case http.StatusInternalServerError:
		httputil.LoggerFrom(r.Context()).Error(op, "err", err)
		httputil.Error(r.Context(), w, status, serverMsg, nil)
	default:
		httputil.Error(r.Context(), w, status, http.StatusText(status), nil)
	}
}
