package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/memory"
	"github.com/cwrk-planet/board-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, opts ...service.Option) (*service.RoomService, *memory.RoomRepository) {
	t.Helper()
	repo := memory.NewRoomRepository()
	svc := service.NewRoomService(repo, opts...)
	t.Cleanup(svc.Close)
	return svc, repo
}

func mustJoin(t *testing.T, svc *service.RoomService, id string) string {
	t.Helper()
	got, _, err := svc.JoinOrCreate(context.Background(), id)
	require.NoError(t, err)
	return got
}

func data(pts ...domain.Point) domain.StrokeData {
	return domain.StrokeData{Points: pts, Color: "#000000", Width: 2}
}

func TestJoinOrCreate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	id, created, err := svc.JoinOrCreate(ctx, "  ab12cd34 ")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", id)
	assert.True(t, created)

	id, created, err = svc.JoinOrCreate(ctx, "AB12CD34")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", id)
	assert.False(t, created)

	gen, created, err := svc.JoinOrCreate(ctx, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, gen, domain.GeneratedRoomIDLen)
	assert.NoError(t, domain.ValidateRoomID(gen))

	_, _, err = svc.JoinOrCreate(ctx, "bad id!")
	assert.ErrorIs(t, err, domain.ErrInvalidRoomID)
}

func TestJoinOrCreate_TouchesActivity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	svc, _ := newService(t, service.WithClock(clock))

	mustJoin(t, svc, "ROOM1")

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()
	mustJoin(t, svc, "ROOM1")

	room, err := svc.GetRoom(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), room.CreatedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), room.LastActivity)
}

func TestGetRoom_NotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.GetRoom(context.Background(), "MISSING")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = svc.GetSnapshot(context.Background(), "not a room id")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestStrokeLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	id := mustJoin(t, svc, "AB12CD34")

	require.NoError(t, svc.AppendStroke(ctx, id, "u1", data(domain.Point{X: 10, Y: 20})))

	ok, err := svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: 15, Y: 25})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: 20, Y: 30})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.FinishStroke(ctx, id, "u1"))

	// после draw-end штрих закрыт
	ok, err = svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: 99, Y: 99})
	require.NoError(t, err)
	assert.False(t, ok)

	log, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, domain.CommandStroke, log[0].Type)
	assert.Equal(t, "u1", log[0].UserID)
	assert.Equal(t, []domain.Point{{X: 10, Y: 20}, {X: 15, Y: 25}, {X: 20, Y: 30}}, log[0].Data.Points)
}

func TestExtendWithoutStart(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	id := mustJoin(t, svc, "R1")

	ok, err := svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: 1, Y: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	log, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestInterleavedAuthors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	id := mustJoin(t, svc, "R1")

	require.NoError(t, svc.AppendStroke(ctx, id, "alice", data(domain.Point{X: 0, Y: 0})))
	require.NoError(t, svc.AppendStroke(ctx, id, "bob", data(domain.Point{X: 100, Y: 100})))

	// ход alice больше не продолжает ни её, ни чужой штрих
	ok, err := svc.ExtendLastStroke(ctx, id, "alice", domain.Point{X: 1, Y: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ExtendLastStroke(ctx, id, "bob", domain.Point{X: 101, Y: 101})
	require.NoError(t, err)
	assert.True(t, ok)

	// draw-end alice не трогает штрих bob
	require.NoError(t, svc.FinishStroke(ctx, id, "alice"))
	ok, err = svc.ExtendLastStroke(ctx, id, "bob", domain.Point{X: 102, Y: 102})
	require.NoError(t, err)
	assert.True(t, ok)

	log, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, []domain.Point{{X: 0, Y: 0}}, log[0].Data.Points)
	assert.Equal(t, []domain.Point{{X: 100, Y: 100}, {X: 101, Y: 101}, {X: 102, Y: 102}}, log[1].Data.Points)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	id := mustJoin(t, svc, "R1")

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AppendStroke(ctx, id, "u1", data(domain.Point{X: float64(i), Y: 0})))
	}
	require.NoError(t, svc.Clear(ctx, id))

	log, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, domain.CommandClear, log[0].Type)
	assert.Nil(t, log[0].Data)

	// clear обрывает начатый штрих
	ok, err := svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: 9, Y: 9})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Clear(ctx, id))
	log, err = svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestAppendStroke_Invalid(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	id := mustJoin(t, svc, "R1")

	assert.ErrorIs(t, svc.AppendStroke(ctx, id, "u1", domain.StrokeData{Color: "#000", Width: 2}), domain.ErrEmptyStroke)
	assert.ErrorIs(t, svc.AppendStroke(ctx, id, "u1", domain.StrokeData{
		Points: []domain.Point{{X: 1, Y: 1}}, Color: "#000", Width: -1,
	}), domain.ErrInvalidStroke)
	assert.ErrorIs(t, svc.AppendStroke(ctx, "no such room", "u1", data(domain.Point{})), domain.ErrInvalidRoomID)
	assert.ErrorIs(t, svc.AppendStroke(ctx, "MISSING", "u1", data(domain.Point{})), domain.ErrRoomNotFound)
}

func TestConcurrentExtends(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	id := mustJoin(t, svc, "R1")

	require.NoError(t, svc.AppendStroke(ctx, id, "u1", data(domain.Point{X: 0, Y: 0})))

	const n = 50
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: float64(i), Y: float64(i)})
			assert.NoError(t, err)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()

	log, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Len(t, log[0].Data.Points, n+1)
}

func TestIdleRetire(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, service.WithIdleTimeout(20*time.Millisecond))
	id := mustJoin(t, svc, "R1")

	require.NoError(t, svc.AppendStroke(ctx, id, "u1", data(domain.Point{X: 0, Y: 0})))

	require.Eventually(t, func() bool { return svc.ActiveRooms() == 0 }, time.Second, 5*time.Millisecond)

	// состояние актора потеряно вместе с ним, лог остался
	ok, err := svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: 1, Y: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	log, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

type flakyRepo struct {
	*memory.RoomRepository
	mu          sync.Mutex
	appendErr   error
	appendPtErr error
}

func (f *flakyRepo) AppendCommand(ctx context.Context, id string, c domain.Command) (int, error) {
	f.mu.Lock()
	err := f.appendErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.RoomRepository.AppendCommand(ctx, id, c)
}

func (f *flakyRepo) AppendPoint(ctx context.Context, id string, index int, p domain.Point) error {
	f.mu.Lock()
	err := f.appendPtErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.RoomRepository.AppendPoint(ctx, id, index, p)
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	repo := &flakyRepo{RoomRepository: memory.NewRoomRepository()}
	svc := service.NewRoomService(repo)
	t.Cleanup(svc.Close)

	id := mustJoin(t, svc, "R1")
	require.NoError(t, svc.AppendStroke(ctx, id, "u1", data(domain.Point{X: 0, Y: 0})))

	repo.mu.Lock()
	repo.appendPtErr = boom
	repo.mu.Unlock()

	ok, err := svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: 1, Y: 1})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	repo.mu.Lock()
	repo.appendPtErr = nil
	repo.appendErr = boom
	repo.mu.Unlock()

	// неудачный start сбрасывает ссылку на предыдущий штрих
	assert.ErrorIs(t, svc.AppendStroke(ctx, id, "u1", data(domain.Point{X: 5, Y: 5})), boom)
	ok, err = svc.ExtendLastStroke(ctx, id, "u1", domain.Point{X: 6, Y: 6})
	require.NoError(t, err)
	assert.False(t, ok)

	log, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, []domain.Point{{X: 0, Y: 0}}, log[0].Data.Points)
}

func TestListRooms(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	for _, id := range []string{"A", "B", "C"} {
		mustJoin(t, svc, id)
	}

	rooms, _, err := svc.ListRooms(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, rooms, 3)
}

func TestClose(t *testing.T) {
	svc := service.NewRoomService(memory.NewRoomRepository())
	mustJoin(t, svc, "R1")

	svc.Close()
	svc.Close()

	_, _, err := svc.JoinOrCreate(context.Background(), "R1")
	assert.ErrorIs(t, err, service.ErrClosed)
	assert.ErrorIs(t, svc.Clear(context.Background(), "R1"), service.ErrClosed)
}
