package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/memory"
	"github.com/cwrk-planet/board-service/internal/service"
	httpx "github.com/cwrk-planet/board-service/internal/transport/http"
	"github.com/cwrk-planet/board-service/internal/transport/ws"
	"github.com/cwrk-planet/board-service/pkg/protocol"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc *service.RoomService
	hub *ws.Hub
	srv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	svc := service.NewRoomService(memory.NewRoomRepository())
	t.Cleanup(svc.Close)
	return newTestEnvWith(t, svc, svc)
}

func newTestEnvWith(t *testing.T, rooms httpx.RoomSvc, svc *service.RoomService) *testEnv {
	t.Helper()
	hub := ws.NewHub()
	wsSrv := ws.NewServer(hub, svc, ws.Config{})
	router := httpx.NewRouter(httpx.NewHandler(rooms, hub), wsSrv.HandleWS, httpx.RouterConfig{})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{svc: svc, hub: hub, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestJoinRoom(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, "/rooms/join", `{"roomId":"ab12cd34"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out httpx.JoinRoomResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, httpx.JoinRoomResponse{RoomID: "AB12CD34", Message: "Room created successfully."}, out)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = e.do(t, http.MethodPost, "/api/rooms/join", `{"roomId":"AB12CD34"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, "Joined existing room.", out.Message)

	// без id комната создаётся с новым кодом
	resp, body = e.do(t, http.MethodPost, "/rooms/join", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.RoomID, domain.GeneratedRoomIDLen)
}

func TestJoinRoom_BadRequest(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/rooms/join", `{"roomId":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/rooms/join", `{"roomId":"bad id!"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "A-Z, 0-9, '_' or '-'")

	resp, body = e.do(t, http.MethodPost, "/rooms/join", `{"roomId":"`+strings.Repeat("A", 65)+`"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "1-64 characters")
}

func TestGetRoom(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	resp, body := e.do(t, http.MethodGet, "/rooms/NOPE1234", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var msg struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(body, &msg))
	require.Equal(t, "Room not found.", msg.Message)

	_, _, err := e.svc.JoinOrCreate(ctx, "R1")
	require.NoError(t, err)
	require.NoError(t, e.svc.AppendStroke(ctx, "R1", "u1", domain.StrokeData{
		Points: []domain.Point{{X: 1, Y: 2}}, Color: "#000000", Width: 2,
	}))

	resp, body = e.do(t, http.MethodGet, "/api/rooms/r1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var room httpx.RoomResponse
	require.NoError(t, json.Unmarshal(body, &room))
	require.Equal(t, "R1", room.RoomID)
	require.Len(t, room.DrawingData, 1)
	require.Equal(t, "u1", room.DrawingData[0].UserID)
	require.Equal(t, []domain.Point{{X: 1, Y: 2}}, room.DrawingData[0].Data.Points)
}

func TestListRooms(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, id := range []string{"A1", "B2", "C3"} {
		_, _, err := e.svc.JoinOrCreate(ctx, id)
		require.NoError(t, err)
	}

	resp, body := e.do(t, http.MethodGet, "/rooms?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page httpx.RoomsListResponse
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	resp, body = e.do(t, http.MethodGet, "/rooms?limit=2&cursor="+page.NextCursor, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = httpx.RoomsListResponse{}
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Items, 1)
	require.Empty(t, page.NextCursor)

	resp, _ = e.do(t, http.MethodGet, "/rooms?cursor=%25%25%25", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/rooms?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportPDF(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, _, err := e.svc.JoinOrCreate(ctx, "R1")
	require.NoError(t, err)
	require.NoError(t, e.svc.AppendStroke(ctx, "R1", "u1", domain.StrokeData{
		Points: []domain.Point{{X: 10, Y: 10}, {X: 50, Y: 80}}, Color: "#ff0000", Width: 3,
	}))

	resp, body := e.do(t, http.MethodGet, "/rooms/R1/export.pdf", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	require.True(t, strings.HasPrefix(string(body), "%PDF"))

	resp, _ = e.do(t, http.MethodGet, "/rooms/NOPE/export.pdf", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActiveRooms(t *testing.T) {
	e := newTestEnv(t)

	e.hub.Join(&stubConn{id: "c1"}, "R1", "u1", "Alice")
	e.hub.Join(&stubConn{id: "c2"}, "R1", "u2", "Bob")

	resp, body := e.do(t, http.MethodGet, "/rooms/active", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out httpx.ActiveRoomsResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Items, 1)
	require.Equal(t, "R1", out.Items[0].RoomID)
	require.Equal(t, 2, out.Items[0].Count)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, _ = e.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type brokenRooms struct{ err error }

func (b brokenRooms) JoinOrCreate(context.Context, string) (string, bool, error) {
	return "", false, b.err
}
func (b brokenRooms) GetRoom(context.Context, string) (*domain.Room, error) { return nil, b.err }
func (b brokenRooms) ListRooms(context.Context, int, string) ([]domain.RoomSummary, string, error) {
	return nil, "", b.err
}
func (b brokenRooms) Ping(context.Context) error { return b.err }

func TestServerErrors(t *testing.T) {
	svc := service.NewRoomService(memory.NewRoomRepository())
	t.Cleanup(svc.Close)
	e := newTestEnvWith(t, brokenRooms{err: errors.New("disk on fire")}, svc)

	resp, body := e.do(t, http.MethodPost, "/rooms/join", `{"roomId":"R1"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, string(body), "Server error while joining/creating room.")
	require.NotContains(t, string(body), "disk on fire")

	resp, body = e.do(t, http.MethodGet, "/rooms/R1", "")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, string(body), "Server error while fetching room data.")

	resp, _ = e.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestToHTTP(t *testing.T) {
	require.Equal(t, http.StatusNotFound, httpx.ToHTTP(domain.ErrRoomNotFound))
	require.Equal(t, http.StatusBadRequest, httpx.ToHTTP(domain.ErrInvalidRoomID))
	require.Equal(t, http.StatusServiceUnavailable, httpx.ToHTTP(service.ErrClosed))
	require.Equal(t, http.StatusInternalServerError, httpx.ToHTTP(errors.New("x")))
}

type stubConn struct{ id string }

func (c *stubConn) ID() string { return c.id }
func (c *stubConn) Send(protocol.Message) error { return nil }
func (c *stubConn) Close() error { return nil }
