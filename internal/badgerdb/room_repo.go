package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

const roomPrefix = "room:"

// RoomRepository хранит комнату целиком одним значением по ключу "room:{id}".
// Каждая мутация делает read-modify-write в одной транзакции db.Update.
type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Open открывает базу по пути; пустой путь включает in-memory режим.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return db, nil
}

func roomKey(id string) []byte {
	return []byte(roomPrefix + id)
}

func (r *RoomRepository) Create(_ context.Context, room *domain.Room) error {
	return r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(roomKey(room.ID))
		if err == nil {
			return domain.ErrRoomExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return put(txn, room)
	})
}

func (r *RoomRepository) Get(_ context.Context, id string) (*domain.Room, error) {
	var room *domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = get(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepository) Touch(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(room *domain.Room) error {
		room.LastActivity = at
		return nil
	})
}

func (r *RoomRepository) AppendCommand(_ context.Context, id string, cmd domain.Command) (int, error) {
	var idx int
	err := r.mutate(id, func(room *domain.Room) error {
		room.DrawingData = append(room.DrawingData, cmd)
		idx = len(room.DrawingData) - 1
		return nil
	})
	return idx, err
}

func (r *RoomRepository) AppendPoint(_ context.Context, id string, index int, p domain.Point) error {
	return r.mutate(id, func(room *domain.Room) error {
		if index < 0 || index >= len(room.DrawingData) || !room.DrawingData[index].IsStroke() {
			return domain.ErrStrokeNotFound
		}
		room.DrawingData[index].Data.Append(p)
		return nil
	})
}

func (r *RoomRepository) ResetLog(_ context.Context, id string, cmd domain.Command) error {
	return r.mutate(id, func(room *domain.Room) error {
		room.DrawingData = []domain.Command{cmd}
		return nil
	})
}

func (r *RoomRepository) List(_ context.Context, limit int, cursor string) ([]domain.RoomSummary, string, error) {
	var all []domain.RoomSummary
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var room domain.Room
				if err := json.Unmarshal(val, &room); err != nil {
					return err
				}
				all = append(all, room.Summary())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return storage.Paginate(all, limit, cursor)
}

func (r *RoomRepository) Ping(context.Context) error {
	if r.db.IsClosed() {
		return errors.New("badger: db closed")
	}
	return nil
}

func (r *RoomRepository) Close() error {
	return r.db.Close()
}

func (r *RoomRepository) mutate(id string, fn func(room *domain.Room) error) error {
	return r.db.Update(func(txn *badger.Txn) error {
		room, err := get(txn, id)
		if err != nil {
			return err
		}
		if err := fn(room); err != nil {
			return err
		}
		return put(txn, room)
	})
}

func get(txn *badger.Txn, id string) (*domain.Room, error) {
	item, err := txn.Get(roomKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}

	var room domain.Room
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &room)
	})
	if err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	if room.DrawingData == nil {
		room.DrawingData = []domain.Command{}
	}
	return &room, nil
}

func put(txn *badger.Txn, room *domain.Room) error {
	b, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return txn.Set(roomKey(room.ID), b)
}
