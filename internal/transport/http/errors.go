package http

import (
	"errors"
	"net/http"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/service"
	"github.com/cwrk-planet/board-service/internal/storage"
)

// ToHTTP мапит ошибку сервиса в HTTP-статус.
func ToHTTP(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRoomID),
		errors.Is(err, domain.ErrInvalidStroke),
		errors.Is(err, domain.ErrEmptyStroke),
		errors.Is(err, storage.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
