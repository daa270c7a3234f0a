package boardclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/cwrk-planet/board-service/pkg/drawing"
	"github.com/cwrk-planet/board-service/pkg/protocol"

	"github.com/gorilla/websocket"
)

// Conn — клиентская сторона relay-протокола.
// Входящие кадры приходят в Events(); канал закрывается при разрыве.
type Conn struct {
	ws     *websocket.Conn
	events chan protocol.Envelope
	done   chan struct{}

	writeMu sync.Mutex
	once    sync.Once
	errMu   sync.Mutex
	err     error
}

// Dial открывает соединение с wsURL (см. Client.WSURL).
func Dial(ctx context.Context, wsURL string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Conn{ws: ws, events: make(chan protocol.Envelope, 64), done: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

func (c *Conn) Events() <-chan protocol.Envelope { return c.events }

// Err возвращает причину закрытия Events.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) Send(typ string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(protocol.New(typ, payload))
}

func (c *Conn) Join(roomID, userID, userName string) error {
	return c.Send(protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: roomID, UserID: userID, UserName: userName})
}

func (c *Conn) Leave(roomID string) error {
	return c.Send(protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomID: roomID})
}

func (c *Conn) Cursor(roomID string, x, y float64, color string) error {
	return c.Send(protocol.TypeCursorMove, protocol.CursorMove{RoomID: roomID, X: x, Y: y, Color: color})
}

// DrawStart начинает штрих; stroke содержит хотя бы первую точку.
func (c *Conn) DrawStart(roomID string, stroke drawing.StrokeData) error {
	return c.Send(protocol.TypeDrawStart, protocol.Draw{RoomID: roomID, DrawingCommand: &stroke})
}

// DrawMove отправляет штрих целиком, сервер берёт последнюю точку.
func (c *Conn) DrawMove(roomID string, stroke drawing.StrokeData) error {
	return c.Send(protocol.TypeDrawMove, protocol.Draw{RoomID: roomID, DrawingCommand: &stroke})
}

func (c *Conn) DrawEnd(roomID string) error {
	return c.Send(protocol.TypeDrawEnd, protocol.Draw{RoomID: roomID})
}

func (c *Conn) Clear(roomID string) error {
	return c.Send(protocol.TypeClearCanvas, protocol.ClearCanvas{RoomID: roomID})
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setErr(err)
			}
			return
		}
		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			// битый кадр пропускаем
			continue
		}
		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
}
