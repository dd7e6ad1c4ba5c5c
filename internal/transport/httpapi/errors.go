package httpapi

import (
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// statusFor переводит ошибку ядра в HTTP-статус.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest
	case domain.IsIdempotencyConflict(err), errors.Is(err, domain.ErrOrderVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// messageFor скрывает детали внутренних сбоев от клиента.
func messageFor(status int, err error) string {
	if status >= http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
