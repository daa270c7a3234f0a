// Package boardclient — HTTP и WebSocket клиент board-service.
package boardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/board-service/pkg/drawing"
)

var ErrRoomNotFound = errors.New("room not found")

// APIError — ответ сервера с кодом не 2xx.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("board-service: %d %s", e.Status, e.Message)
}

type JoinResult struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	Created bool   `json:"-"`
}

type Room struct {
	RoomID       string            `json:"roomId"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
	DrawingData  []drawing.Command `json:"drawingData"`
}

type RoomsPage struct {
	Items      []RoomSummary `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type RoomSummary struct {
	ID           string    `json:"roomId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Commands     int       `json:"commands"`
}

type ActiveRoom struct {
	RoomID string   `json:"roomId"`
	Count  int      `json:"count"`
	Users  []string `json:"users"`
}

type Client struct {
	base *url.URL
	http *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New принимает базовый адрес сервиса, например http://localhost:5000.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// WSURL: адрес relay-эндпоинта для этого сервиса.
func (c *Client) WSURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/ws"
	return u.String()
}

// JoinRoom заходит в комнату или создаёт её. Пустой roomID создаёт новую.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (*JoinResult, error) {
	body, err := json.Marshal(map[string]string{"roomId": roomID})
	if err != nil {
		return nil, err
	}

	var out JoinResult
	status, err := c.do(ctx, http.MethodPost, "/rooms/join", bytes.NewReader(body), &out)
	if err != nil {
		return nil, err
	}
	out.Created = status == http.StatusCreated
	return &out, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var out Room
	if _, err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRooms(ctx context.Context, limit int, cursor string) (*RoomsPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/rooms"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out RoomsPage
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ActiveRooms(ctx context.Context) ([]ActiveRoom, error) {
	var out struct {
		Items []ActiveRoom `json:"items"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/rooms/active", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ExportPDF пишет PDF комнаты в w.
func (c *Client) ExportPDF(ctx context.Context, roomID string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/export.pdf", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) (int, error) {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// send выполняет запрос и превращает не-2xx ответ в ошибку.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	var msg struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&msg)
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, path)
	}
	if msg.Message == "" {
		msg.Message = http.StatusText(resp.StatusCode)
	}
	return nil, &APIError{Status: resp.StatusCode, Message: msg.Message}
}
