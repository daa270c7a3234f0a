package main

import (
	"context"
	"log/slog"

	"github.com/cwrk-planet/board-service/config"
	"github.com/cwrk-planet/board-service/internal/badgerdb"
	"github.com/cwrk-planet/board-service/internal/memory"
	"github.com/cwrk-planet/board-service/internal/postgres"
	"github.com/cwrk-planet/board-service/internal/service"
	"github.com/cwrk-planet/board-service/internal/sqlite"
)

// openStore поднимает хранилище по storage.driver.
func openStore(ctx context.Context, cfg config.Storage) (service.RoomRepository, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			ApplicationName: "board-service",
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewRoomRepository(pool), nil

	case config.DriverBadger:
		db, err := badgerdb.Open(cfg.Badger.Dir)
		if err != nil {
			return nil, err
		}
		slog.Info("badger opened", "dir", cfg.Badger.Dir)
		return badgerdb.NewRoomRepository(db), nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("sqlite opened", "path", cfg.SQLite.Path)
		return sqlite.NewRoomRepository(db), nil

	default:
		slog.Warn("using in-memory storage, rooms are lost on restart")
		return memory.NewRoomRepository(), nil
	}
}
