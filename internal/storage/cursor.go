package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor — позиция в списке комнат, отсортированном по (last_activity, id) DESC.
type Cursor struct {
	LastActivity time.Time `json:"last_activity"`
	ID           string    `json:"id"`
}

func EncodeCursor(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidCursor, err)
	}
	return &c, nil
}

// NextCursor возвращает курсор следующей страницы, если страница заполнена целиком.
func NextCursor(page []domain.RoomSummary, limit int) string {
	if limit <= 0 || len(page) < limit {
		return ""
	}
	last := page[len(page)-1]
	next, err := EncodeCursor(Cursor{LastActivity: last.LastActivity, ID: last.ID})
	if err != nil {
		return ""
	}
	return next
}

// Paginate: пагинация в памяти для бэкендов без SQL (memory, badger).
func Paginate(all []domain.RoomSummary, limit int, cursor string) ([]domain.RoomSummary, string, error) {
	cur, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastActivity.Equal(all[j].LastActivity) {
			return all[i].LastActivity.After(all[j].LastActivity)
		}
		return all[i].ID > all[j].ID
	})

	out := make([]domain.RoomSummary, 0, limit)
	for _, r := range all {
		if cur != nil && !before(r, *cur) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, NextCursor(out, limit), nil
}

// before: r идёт после курсора в порядке (last_activity, id) DESC.
func before(r domain.RoomSummary, c Cursor) bool {
	if r.LastActivity.Before(c.LastActivity) {
		return true
	}
	return r.LastActivity.Equal(c.LastActivity) && r.ID < c.ID
}
