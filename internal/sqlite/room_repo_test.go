package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/cwrk-planet/board-service/internal/service"
	"github.com/cwrk-planet/board-service/internal/sqlite"
	"github.com/cwrk-planet/board-service/internal/storage/storagetest"

	"github.com/stretchr/testify/require"
)

func TestRoomRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) service.RoomRepository {
		db, err := sqlite.Open(filepath.Join(t.TempDir(), "board.db"))
		require.NoError(t, err)
		repo := sqlite.NewRoomRepository(db)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}
