// Package storagetest — общий набор проверок для реализаций service.RoomRepository.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/service"
	"github.com/cwrk-planet/board-service/internal/storage"

	"github.com/stretchr/testify/require"
)

// Factory возвращает пустое хранилище. Закрывать его должна сама фабрика (t.Cleanup).
type Factory func(t *testing.T) service.RoomRepository

// postgres хранит микросекунды
const tolerance = time.Millisecond

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, newRepo Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("AppendCommand", func(t *testing.T) { testAppendCommand(t, newRepo(t)) })
	t.Run("AppendPoint", func(t *testing.T) { testAppendPoint(t, newRepo(t)) })
	t.Run("ResetLog", func(t *testing.T) { testResetLog(t, newRepo(t)) })
	t.Run("Touch", func(t *testing.T) { testTouch(t, newRepo(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newRepo(t).Ping(context.Background())) })
}

func newRoom(id string, at time.Time) *domain.Room {
	return &domain.Room{ID: id, CreatedAt: at, LastActivity: at, DrawingData: []domain.Command{}}
}

func stroke(user string, pts ...domain.Point) domain.Command {
	return domain.NewStrokeCommand(user, domain.StrokeData{Points: pts, Color: "#000000", Width: 2}, base)
}

func testCreateAndGet(t *testing.T, repo service.RoomRepository) {
	ctx := context.Background()

	_, err := repo.Get(ctx, "NOPE")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	require.NoError(t, repo.Create(ctx, newRoom("AB12CD34", base)))
	require.ErrorIs(t, repo.Create(ctx, newRoom("AB12CD34", base.Add(time.Hour))), domain.ErrRoomExists)

	got, err := repo.Get(ctx, "AB12CD34")
	require.NoError(t, err)
	require.Equal(t, "AB12CD34", got.ID)
	require.WithinDuration(t, base, got.CreatedAt, tolerance)
	require.WithinDuration(t, base, got.LastActivity, tolerance)
	require.NotNil(t, got.DrawingData)
	require.Empty(t, got.DrawingData)
}

func testAppendCommand(t *testing.T, repo service.RoomRepository) {
	ctx := context.Background()

	_, err := repo.AppendCommand(ctx, "NOPE", stroke("u1", domain.Point{X: 1, Y: 1}))
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	require.NoError(t, repo.Create(ctx, newRoom("R1", base)))

	idx, err := repo.AppendCommand(ctx, "R1", stroke("u1", domain.Point{X: 10, Y: 20}))
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = repo.AppendCommand(ctx, "R1", stroke("u2", domain.Point{X: 5, Y: 5}))
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	got, err := repo.Get(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, got.DrawingData, 2)

	first := got.DrawingData[0]
	require.Equal(t, domain.CommandStroke, first.Type)
	require.Equal(t, "u1", first.UserID)
	require.Equal(t, []domain.Point{{X: 10, Y: 20}}, first.Data.Points)
	require.Equal(t, "#000000", first.Data.Color)
	require.Equal(t, 2.0, first.Data.Width)
	require.WithinDuration(t, base, first.Timestamp, tolerance)
	require.Equal(t, "u2", got.DrawingData[1].UserID)
}

func testAppendPoint(t *testing.T, repo service.RoomRepository) {
	ctx := context.Background()

	require.ErrorIs(t, repo.AppendPoint(ctx, "NOPE", 0, domain.Point{}), domain.ErrRoomNotFound)

	require.NoError(t, repo.Create(ctx, newRoom("R1", base)))
	require.ErrorIs(t, repo.AppendPoint(ctx, "R1", 0, domain.Point{}), domain.ErrStrokeNotFound)

	_, err := repo.AppendCommand(ctx, "R1", domain.NewClearCommand(base))
	require.NoError(t, err)
	_, err = repo.AppendCommand(ctx, "R1", stroke("u1", domain.Point{X: 10, Y: 20}))
	require.NoError(t, err)

	require.NoError(t, repo.AppendPoint(ctx, "R1", 1, domain.Point{X: 15, Y: 25}))
	require.NoError(t, repo.AppendPoint(ctx, "R1", 1, domain.Point{X: 20, Y: 30}))

	// по индексу 0 лежит clear
	require.ErrorIs(t, repo.AppendPoint(ctx, "R1", 0, domain.Point{X: 1, Y: 1}), domain.ErrStrokeNotFound)
	require.ErrorIs(t, repo.AppendPoint(ctx, "R1", 7, domain.Point{X: 1, Y: 1}), domain.ErrStrokeNotFound)

	got, err := repo.Get(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, got.DrawingData, 2)
	require.Nil(t, got.DrawingData[0].Data)
	require.Equal(t, []domain.Point{{X: 10, Y: 20}, {X: 15, Y: 25}, {X: 20, Y: 30}}, got.DrawingData[1].Data.Points)
}

func testResetLog(t *testing.T, repo service.RoomRepository) {
	ctx := context.Background()

	require.ErrorIs(t, repo.ResetLog(ctx, "NOPE", domain.NewClearCommand(base)), domain.ErrRoomNotFound)

	require.NoError(t, repo.Create(ctx, newRoom("R1", base)))
	for i := 0; i < 5; i++ {
		_, err := repo.AppendCommand(ctx, "R1", stroke("u1", domain.Point{X: float64(i), Y: 0}))
		require.NoError(t, err)
	}

	at := base.Add(time.Minute)
	require.NoError(t, repo.ResetLog(ctx, "R1", domain.NewClearCommand(at)))

	got, err := repo.Get(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, got.DrawingData, 1)
	require.Equal(t, domain.CommandClear, got.DrawingData[0].Type)
	require.Nil(t, got.DrawingData[0].Data)
	require.WithinDuration(t, at, got.DrawingData[0].Timestamp, tolerance)

	// повторный clear даёт тот же лог
	require.NoError(t, repo.ResetLog(ctx, "R1", domain.NewClearCommand(at)))
	got, err = repo.Get(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, got.DrawingData, 1)

	idx, err := repo.AppendCommand(ctx, "R1", stroke("u2", domain.Point{X: 1, Y: 1}))
	require.NoError(t, err)
	require.Equal(t, 1, idx)
}

func testTouch(t *testing.T, repo service.RoomRepository) {
	ctx := context.Background()

	require.ErrorIs(t, repo.Touch(ctx, "NOPE", base), domain.ErrRoomNotFound)

	require.NoError(t, repo.Create(ctx, newRoom("R1", base)))
	later := base.Add(10 * time.Minute)
	require.NoError(t, repo.Touch(ctx, "R1", later))

	got, err := repo.Get(ctx, "R1")
	require.NoError(t, err)
	require.WithinDuration(t, base, got.CreatedAt, tolerance)
	require.WithinDuration(t, later, got.LastActivity, tolerance)
}

func testList(t *testing.T, repo service.RoomRepository) {
	ctx := context.Background()

	page, next, err := repo.List(ctx, 10, "")
	require.NoError(t, err)
	require.Empty(t, page)
	require.Empty(t, next)

	require.NoError(t, repo.Create(ctx, newRoom("A", base)))
	require.NoError(t, repo.Create(ctx, newRoom("B", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newRoom("C", base.Add(2*time.Minute))))
	_, err = repo.AppendCommand(ctx, "A", stroke("u1", domain.Point{X: 1, Y: 1}))
	require.NoError(t, err)

	page, next, err = repo.List(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "C", page[0].ID)
	require.Equal(t, "B", page[1].ID)
	require.NotEmpty(t, next)

	page, next, err = repo.List(ctx, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "A", page[0].ID)
	require.Equal(t, 1, page[0].Commands)
	require.Empty(t, next)

	_, _, err = repo.List(ctx, 2, "%%%")
	require.ErrorIs(t, err, storage.ErrInvalidCursor)
}
