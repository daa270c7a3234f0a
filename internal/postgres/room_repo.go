package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room.DrawingData)
	if err != nil {
		return err
	}
	if room.DrawingData == nil {
		data = []byte("[]")
	}

	cmd, err := r.db.Exec(ctx, `
		INSERT INTO board_rooms (id, created_at, last_activity, drawing_data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (id) DO NOTHING`,
		room.ID, room.CreatedAt, room.LastActivity, string(data))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoomExists
	}
	return nil
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	var (
		rm  domain.Room
		raw []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, created_at, last_activity, drawing_data FROM board_rooms WHERE id=$1`, id).
		Scan(&rm.ID, &rm.CreatedAt, &rm.LastActivity, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &rm.DrawingData); err != nil {
		return nil, fmt.Errorf("decode drawing_data: %w", err)
	}
	if rm.DrawingData == nil {
		rm.DrawingData = []domain.Command{}
	}
	return &rm, nil
}

func (r *RoomRepository) Touch(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE board_rooms SET last_activity=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepository) AppendCommand(ctx context.Context, id string, c domain.Command) (int, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return 0, err
	}

	var n int
	err = r.db.QueryRow(ctx, `
		UPDATE board_rooms
		SET drawing_data = drawing_data || jsonb_build_array($2::jsonb)
		WHERE id = $1
		RETURNING jsonb_array_length(drawing_data)`,
		id, string(b)).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrRoomNotFound
		}
		return 0, err
	}
	return n - 1, nil
}

// AppendPoint блокирует строку комнаты, чтобы проверка типа и вставка точки были атомарны.
func (r *RoomRepository) AppendPoint(ctx context.Context, id string, index int, p domain.Point) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var kind *string
	err = tx.QueryRow(ctx,
		`SELECT drawing_data -> $2::int ->> 'type' FROM board_rooms WHERE id=$1 FOR UPDATE`,
		id, index).Scan(&kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		return err
	}
	if kind == nil || domain.CommandType(*kind) != domain.CommandStroke {
		return domain.ErrStrokeNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE board_rooms
		SET drawing_data = jsonb_insert(drawing_data, ARRAY[$2::text, 'data', 'points', '-1'], $3::jsonb, true)
		WHERE id = $1`,
		id, strconv.Itoa(index), string(b)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *RoomRepository) ResetLog(ctx context.Context, id string, c domain.Command) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx,
		`UPDATE board_rooms SET drawing_data = jsonb_build_array($2::jsonb) WHERE id=$1`,
		id, string(b))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepository) List(ctx context.Context, limit int, cursorStr string) ([]domain.RoomSummary, string, error) {
	cur, err := storage.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT id, created_at, last_activity, jsonb_array_length(drawing_data)
		FROM board_rooms
		WHERE ($1::timestamptz IS NULL OR last_activity < $1
		       OR (last_activity = $1 AND id < $2))
		ORDER BY last_activity DESC, id DESC
		LIMIT $3`

	var lastActivity any
	var id any
	if cur != nil {
		lastActivity = cur.LastActivity
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, query, lastActivity, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var rooms []domain.RoomSummary
	for rows.Next() {
		var s domain.RoomSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.LastActivity, &s.Commands); err != nil {
			return nil, "", err
		}
		rooms = append(rooms, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	return rooms, storage.NextCursor(rooms, limit), nil
}

func (r *RoomRepository) Ping(ctx context.Context) error {
	return Ping(ctx, r.db)
}

func (r *RoomRepository) Close() error {
	r.db.Close()
	return nil
}
