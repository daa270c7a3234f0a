package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// OK — «успешный» ответ с обёрткой.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{"data": data})
}

// Message — ответ вида {"message": ...}, плюс необязательные поля.
func Message(w http.ResponseWriter, status int, msg string, fields map[string]any) {
	payload := envelope{"message": msg}
	for k, v := range fields {
		payload[k] = v
	}
	JSON(w, status, payload)
}

// Error — унифицированная ошибка (message + meta).
func Error(ctx context.Context, w http.ResponseWriter, status int, msg string, meta map[string]any) {
	payload := envelope{
		"message": msg,
		"error": envelope{
			"message": msg,
		},
	}
	if len(meta) > 0 {
		payload["error"].(envelope)["meta"] = meta
	}
	if status >= http.StatusInternalServerError {
		LoggerFrom(ctx).Error("http error response", slog.Int("status", status), slog.String("message", msg))
	}
	JSON(w, status, payload)
}

// DecodeJSON читает тело запроса в dst. Пустое тело — не ошибка.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
