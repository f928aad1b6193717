package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/rider-core/internal/fare"
	"github.com/example/rider-core/internal/resolver"
	"github.com/example/rider-core/internal/ride"
	"github.com/example/rider-core/internal/storage"
)

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ride.ErrLocationsNotSet),
		errors.Is(err, ride.ErrInvalidPaymentMethod),
		errors.Is(err, fare.ErrUnknownVehicleClass),
		errors.Is(err, fare.ErrInvalidTrip),
		errors.Is(err, resolver.ErrInvalidTarget),
		errors.Is(err, resolver.ErrNoPinnedLocation),
		errors.Is(err, storage.ErrInvalidFeedback):
		return http.StatusBadRequest
	case errors.Is(err, ride.ErrInvalidStateTransition),
		errors.Is(err, resolver.ErrSuperseded),
		errors.Is(err, storage.ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, resolver.ErrResolutionFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resolver.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrRideNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
