package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrValidation)
		}
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrValidation, err)
	}
	return nil
}

// classify maps lifecycle errors onto HTTP statuses and stable codes.
func classify(err error) (int, string) {
	var unavailable *domain.BookingUnavailableError
	var cell *domain.CellUnavailableError
	var stale *domain.StaleReleaseError
	switch {
	case errors.As(err, &unavailable), errors.As(err, &cell):
		return http.StatusConflict, "BOOKING_UNAVAILABLE"
	case errors.Is(err, domain.ErrReservationConflict):
		return http.StatusConflict, "RESERVATION_CONFLICT"
	case errors.Is(err, domain.ErrReservationTooLarge):
		return http.StatusUnprocessableEntity, "RESERVATION_TOO_LARGE"
	case errors.Is(err, domain.ErrInvalidPricingInput), errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrStaleTransition), errors.Is(err, domain.ErrVersionConflict), errors.As(err, &stale):
		return http.StatusConflict, "STALE"
	case errors.Is(err, domain.ErrBookingNotPayable):
		return http.StatusConflict, "BOOKING_NOT_PAYABLE"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}
