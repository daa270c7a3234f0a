package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/ratelimit"
	"github.com/cwrk-planet/board-service/pkg/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

var (
	ErrSendQueueFull = errors.New("ws: send queue full")
	ErrConnClosed    = errors.New("ws: connection closed")
)

type RoomSvc interface {
	GetSnapshot(ctx context.Context, roomID string) ([]domain.Command, error)
	AppendStroke(ctx context.Context, roomID, userID string, data domain.StrokeData) error
	ExtendLastStroke(ctx context.Context, roomID, userID string, p domain.Point) (bool, error)
	FinishStroke(ctx context.Context, roomID, userID string) error
	Clear(ctx context.Context, roomID string) error
}

type Config struct {
	PingEvery      time.Duration
	WriteWait      time.Duration
	OpTimeout      time.Duration
	SendQueue      int
	MaxMessageSize int64
	RateLimit      float64 // кадров в секунду, 0 = без лимита
	RateBurst      int
	MaxViolations  int // после стольких отказов лимитера соединение закрывается
	AllowedOrigins []string
}

func (c *Config) setDefaults() {
	if c.PingEvery <= 0 {
		c.PingEvery = 15 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 20
	}
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	rooms    RoomSvc
	cfg      Config
}

func NewServer(hub *Hub, rooms RoomSvc, cfg Config) *Server {
	cfg.setDefaults()
	return &Server{
		hub:   hub,
		rooms: rooms,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// GET /ws. Комнаты выбираются сообщениями join-room.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, uuid.NewString(), s.cfg.SendQueue)
	slog.Debug("ws connected", "conn", c.id, "remote", r.RemoteAddr)

	go s.writeLoop(c)
	s.readLoop(r.Context(), c)

	s.disconnect(c)
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "conn", c.id, "err", err)
	}
	slog.Debug("ws disconnected", "conn", c.id)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	})

	limiter := ratelimit.NewLimiter(s.cfg.RateLimit, s.cfg.RateBurst)
	violations := ratelimit.NewViolations(s.cfg.MaxViolations)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.id, "err", err)
			}
			return
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			s.replyError(c, "malformed message")
			continue
		}

		// лимитируются только потоковые кадры; draw-end и clear-canvas
		// должны дойти всегда, иначе у собеседников повиснет штрих
		if throttled(env.Type) && !limiter.Allow() {
			if violations.Hit() {
				slog.Warn("ws rate limit exceeded, closing", "conn", c.id, "violations", violations.Count())
				return
			}
			if violations.Count()%100 == 1 {
				slog.Warn("ws rate limit exceeded", "conn", c.id, "violations", violations.Count())
				s.replyError(c, "rate limit exceeded: "+env.Type+" dropped")
			}
			continue
		}

		s.dispatch(ctx, c, env)

		select {
		case <-c.closed:
			return
		default:
		}
	}
}

func throttled(typ string) bool {
	return typ == protocol.TypeCursorMove || typ == protocol.TypeDrawMove
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoinRoom:
		var p protocol.JoinRoom
		if s.decode(c, env, &p) {
			s.handleJoin(ctx, c, p)
		}
	case protocol.TypeLeaveRoom:
		var p protocol.LeaveRoom
		if s.decode(c, env, &p) {
			s.handleLeave(c, domain.NormalizeRoomID(p.RoomID))
		}
	case protocol.TypeCursorMove:
		var p protocol.CursorMove
		if s.decode(c, env, &p) {
			s.handleCursor(c, p)
		}
	case protocol.TypeDrawStart, protocol.TypeDrawMove, protocol.TypeDrawEnd:
		var p protocol.Draw
		if s.decode(c, env, &p) {
			s.handleDraw(ctx, c, env.Type, p)
		}
	case protocol.TypeClearCanvas:
		var p protocol.ClearCanvas
		if s.decode(c, env, &p) {
			s.handleClear(ctx, c, domain.NormalizeRoomID(p.RoomID))
		}
	default:
		s.replyError(c, "unknown message type: "+env.Type)
	}
}

func (s *Server) handleJoin(ctx context.Context, c *wsConn, p protocol.JoinRoom) {
	roomID := domain.NormalizeRoomID(p.RoomID)
	if err := domain.ValidateRoomID(roomID); err != nil {
		s.replyError(c, err.Error())
		return
	}
	userName := strings.TrimSpace(p.UserName)

	count := s.hub.Join(c, roomID, p.UserID, userName)
	slog.Info("ws join room", "room", roomID, "user", p.UserID, "conn", c.id, "count", count)

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	log, err := s.rooms.GetSnapshot(opCtx, roomID)
	cancel()
	switch {
	case err == nil:
		if len(log) > 0 {
			_ = c.Send(protocol.New(protocol.TypeLoadDrawingData, log))
		}
	case errors.Is(err, domain.ErrRoomNotFound):
		// комнату создают через HTTP join; без неё просто нет истории
	default:
		slog.Warn("ws load drawing data failed", "room", roomID, "err", err)
	}

	s.hub.Broadcast(roomID, protocol.New(protocol.TypeUserCountUpdate, protocol.UserCount{RoomID: roomID, Count: count}), nil)
	s.hub.Broadcast(roomID, protocol.New(protocol.TypeUserJoined, protocol.UserJoined{
		RoomID:   roomID,
		UserID:   p.UserID,
		UserName: userName,
	}), c)
}

func (s *Server) handleLeave(c *wsConn, roomID string) {
	count, ok := s.hub.Leave(c, roomID)
	if !ok {
		slog.Debug("ws leave for room not joined", "room", roomID, "conn", c.id)
		return
	}
	s.announceLeft(c, roomID, count)
}

func (s *Server) disconnect(c *wsConn) {
	for roomID, count := range s.hub.Disconnect(c) {
		s.announceLeft(c, roomID, count)
	}
}

func (s *Server) announceLeft(c *wsConn, roomID string, count int) {
	s.hub.Broadcast(roomID, protocol.New(protocol.TypeUserCountUpdate, protocol.UserCount{RoomID: roomID, Count: count}), nil)
	s.hub.Broadcast(roomID, protocol.New(protocol.TypeUserLeft, protocol.UserLeft{
		RoomID:       roomID,
		ConnectionID: c.id,
	}), c)
}

func (s *Server) handleCursor(c *wsConn, p protocol.CursorMove) {
	p.RoomID = domain.NormalizeRoomID(p.RoomID)
	sess, ok := s.session(c, p.RoomID)
	if !ok {
		return
	}
	p.UserID = sess.UserID
	if p.UserName == "" {
		p.UserName = sess.UserName
	}
	s.hub.Broadcast(p.RoomID, protocol.New(protocol.TypeCursorMove, p), c)
}

func (s *Server) handleDraw(ctx context.Context, c *wsConn, typ string, p protocol.Draw) {
	p.RoomID = domain.NormalizeRoomID(p.RoomID)
	sess, ok := s.session(c, p.RoomID)
	if !ok {
		return
	}
	// автор: тот, кто заходил в комнату, а не поле сообщения
	p.UserID = sess.UserID

	if typ != protocol.TypeDrawEnd {
		if p.DrawingCommand == nil || len(p.DrawingCommand.Points) == 0 {
			s.replyError(c, typ+": drawingCommand.points required")
			return
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	var err error
	switch typ {
	case protocol.TypeDrawStart:
		err = s.rooms.AppendStroke(opCtx, p.RoomID, sess.UserID, *p.DrawingCommand)
		if errors.Is(err, domain.ErrInvalidStroke) || errors.Is(err, domain.ErrEmptyStroke) {
			s.replyError(c, err.Error())
			return
		}
	case protocol.TypeDrawMove:
		last, _ := p.DrawingCommand.LastPoint()
		var extended bool
		extended, err = s.rooms.ExtendLastStroke(opCtx, p.RoomID, sess.UserID, last)
		if err == nil && !extended {
			slog.Debug("ws draw-move without active stroke", "room", p.RoomID, "user", sess.UserID)
		}
	case protocol.TypeDrawEnd:
		err = s.rooms.FinishStroke(opCtx, p.RoomID, sess.UserID)
	}
	if err != nil {
		slog.Warn("ws persist draw event failed", "type", typ, "room", p.RoomID, "user", sess.UserID, "err", err)
	}

	s.hub.Broadcast(p.RoomID, protocol.New(typ, p), c)
}

func (s *Server) handleClear(ctx context.Context, c *wsConn, roomID string) {
	if _, ok := s.session(c, roomID); !ok {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	if err := s.rooms.Clear(opCtx, roomID); err != nil {
		slog.Warn("ws clear canvas failed", "room", roomID, "err", err)
	}

	s.hub.Broadcast(roomID, protocol.New(protocol.TypeClearCanvas, protocol.ClearCanvas{RoomID: roomID}), nil)
}

func (s *Server) session(c *wsConn, roomID string) (domain.Session, bool) {
	sess, ok := s.hub.Session(c, roomID)
	if !ok {
		slog.Debug("ws message for room not joined", "room", roomID, "conn", c.id)
	}
	return sess, ok
}

func (s *Server) decode(c *wsConn, env protocol.Envelope, dst interface{}) bool {
	if err := env.Decode(dst); err != nil {
		s.replyError(c, "malformed "+env.Type)
		return false
	}
	if err := domain.Struct(dst); err != nil {
		s.replyError(c, "invalid "+env.Type+": "+err.Error())
		return false
	}
	return true
}

func (s *Server) replyError(c *wsConn, msg string) {
	_ = c.Send(protocol.New(protocol.TypeError, protocol.Error{Message: msg}))
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingEvery)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// --- conn ---

type wsConn struct {
	conn *websocket.Conn
	id   string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, id string, queue int) *wsConn {
	return &wsConn{
		conn:   c,
		id:     id,
		send:   make(chan []byte, queue),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send не блокирует: при переполненной очереди медленный клиент отключается.
func (c *wsConn) Send(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("ws send queue full, dropping connection", "conn", c.id)
		_ = c.Close()
		return ErrSendQueueFull
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
