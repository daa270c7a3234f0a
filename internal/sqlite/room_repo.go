package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/storage"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS board_rooms (
	id            TEXT PRIMARY KEY,
	created_at    INTEGER NOT NULL,
	last_activity INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS board_commands (
	room_id TEXT    NOT NULL,
	seq     INTEGER NOT NULL,
	type    TEXT    NOT NULL,
	data    TEXT    NOT NULL DEFAULT '{}',
	user_id TEXT    NOT NULL DEFAULT '',
	ts      INTEGER NOT NULL,
	PRIMARY KEY (room_id, seq),
	FOREIGN KEY (room_id) REFERENCES board_rooms(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_board_rooms_activity ON board_rooms(last_activity DESC, id DESC);
`

// RoomRepository хранит лог комнаты построчно: одна строка board_commands на команду.
type RoomRepository struct {
	db *sql.DB
}

// Open открывает (или создаёт) файл базы и применяет схему.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// один писатель: sqlite всё равно сериализует запись
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO board_rooms (id, created_at, last_activity) VALUES (?, ?, ?)`,
		room.ID, room.CreatedAt.UnixNano(), room.LastActivity.UnixNano())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRoomExists
	}

	for i, c := range room.DrawingData {
		if err := insertCommand(ctx, tx, room.ID, i, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	var (
		room              domain.Room
		created, activity int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, last_activity FROM board_rooms WHERE id = ?`, id).
		Scan(&room.ID, &created, &activity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	room.CreatedAt = time.Unix(0, created).UTC()
	room.LastActivity = time.Unix(0, activity).UTC()

	rows, err := r.db.QueryContext(ctx,
		`SELECT type, data, user_id, ts FROM board_commands WHERE room_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	room.DrawingData = []domain.Command{}
	for rows.Next() {
		var (
			kind, data, userID string
			ts                 int64
		)
		if err := rows.Scan(&kind, &data, &userID, &ts); err != nil {
			return nil, err
		}
		c := domain.Command{
			Type:      domain.CommandType(kind),
			UserID:    userID,
			Timestamp: time.Unix(0, ts).UTC(),
		}
		if c.Type == domain.CommandStroke {
			var d domain.StrokeData
			if err := json.Unmarshal([]byte(data), &d); err != nil {
				return nil, fmt.Errorf("decode stroke: %w", err)
			}
			c.Data = &d
		}
		room.DrawingData = append(room.DrawingData, c)
	}
	return &room, rows.Err()
}

func (r *RoomRepository) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE board_rooms SET last_activity = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepository) AppendCommand(ctx context.Context, id string, c domain.Command) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := roomExists(ctx, tx, id); err != nil {
		return 0, err
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM board_commands WHERE room_id = ?`, id).Scan(&next); err != nil {
		return 0, err
	}
	if err := insertCommand(ctx, tx, id, next, c); err != nil {
		return 0, err
	}
	return next, tx.Commit()
}

func (r *RoomRepository) AppendPoint(ctx context.Context, id string, index int, p domain.Point) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := roomExists(ctx, tx, id); err != nil {
		return err
	}

	var kind, data string
	err = tx.QueryRowContext(ctx,
		`SELECT type, data FROM board_commands WHERE room_id = ? AND seq = ?`, id, index).Scan(&kind, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrStrokeNotFound
		}
		return err
	}
	if domain.CommandType(kind) != domain.CommandStroke {
		return domain.ErrStrokeNotFound
	}

	var d domain.StrokeData
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return fmt.Errorf("decode stroke: %w", err)
	}
	d.Append(p)
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE board_commands SET data = ? WHERE room_id = ? AND seq = ?`, string(b), id, index); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *RoomRepository) ResetLog(ctx context.Context, id string, c domain.Command) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := roomExists(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM board_commands WHERE room_id = ?`, id); err != nil {
		return err
	}
	if err := insertCommand(ctx, tx, id, 0, c); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *RoomRepository) List(ctx context.Context, limit int, cursorStr string) ([]domain.RoomSummary, string, error) {
	cur, err := storage.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	var (
		hasCursor int
		curTS     int64
		curID     string
	)
	if cur != nil {
		hasCursor, curTS, curID = 1, cur.LastActivity.UnixNano(), cur.ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.created_at, r.last_activity,
		       (SELECT COUNT(*) FROM board_commands c WHERE c.room_id = r.id)
		FROM board_rooms r
		WHERE (? = 0 OR r.last_activity < ? OR (r.last_activity = ? AND r.id < ?))
		ORDER BY r.last_activity DESC, r.id DESC
		LIMIT ?`,
		hasCursor, curTS, curTS, curID, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.RoomSummary
	for rows.Next() {
		var (
			s                 domain.RoomSummary
			created, activity int64
		)
		if err := rows.Scan(&s.ID, &created, &activity, &s.Commands); err != nil {
			return nil, "", err
		}
		s.CreatedAt = time.Unix(0, created).UTC()
		s.LastActivity = time.Unix(0, activity).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return out, storage.NextCursor(out, limit), nil
}

func (r *RoomRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *RoomRepository) Close() error {
	return r.db.Close()
}

func roomExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM board_rooms WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrRoomNotFound
	}
	return err
}

func insertCommand(ctx context.Context, tx *sql.Tx, roomID string, seq int, c domain.Command) error {
	data := "{}"
	if c.IsStroke() {
		b, err := json.Marshal(c.Data)
		if err != nil {
			return err
		}
		data = string(b)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO board_commands (room_id, seq, type, data, user_id, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		roomID, seq, string(c.Type), data, c.UserID, c.Timestamp.UnixNano())
	return err
}
