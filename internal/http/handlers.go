package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/dispatch"
	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/resolver"
	"github.com/example/rider-core/internal/ride"
)

type queryRequest struct {
	Text string `json:"text"`
}

type selectRequest struct {
	Target     resolver.Target    `json:"target"`
	Source     string             `json:"source"`
	Suggestion *models.Suggestion `json:"suggestion,omitempty"`
	Location   *models.Location   `json:"location,omitempty"`
}

type pinRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// currentRequest carries the device fix. Granted=false reports a denied
// location permission.
type currentRequest struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Granted *bool   `json:"granted,omitempty"`
}

func (c currentRequest) CurrentPosition(context.Context) (models.Coord, error) {
	if c.Granted != nil && !*c.Granted {
		return models.Coord{}, resolver.ErrPermissionDenied
	}
	return models.Coord{Lat: c.Lat, Lon: c.Lng}, nil
}

type estimateRequest struct {
	VehicleClass string `json:"vehicle_class"`
}

type confirmRequest struct {
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Resolver.View())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.deps.Resolver.OnQueryChanged(req.Text)
	writeJSON(w, http.StatusAccepted, s.deps.Resolver.View())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Target.Valid() {
		s.writeError(w, r, resolver.ErrInvalidTarget)
		return
	}

	var (
		loc models.Location
		err error
	)
	switch req.Source {
	case "suggestion", "":
		if req.Suggestion == nil {
			s.writeError(w, r, fmt.Errorf("%w: suggestion is required", errBadRequest))
			return
		}
		loc, err = s.deps.Resolver.OnSuggestionSelected(r.Context(), *req.Suggestion, req.Target)
	case "recent", "pin":
		if req.Location == nil {
			if req.Source == "pin" {
				loc, err = s.deps.Resolver.ConfirmPin(r.Context(), req.Target)
				break
			}
			s.writeError(w, r, fmt.Errorf("%w: location is required", errBadRequest))
			return
		}
		loc = *req.Location
		if req.Source == "recent" {
			err = s.deps.Resolver.SelectRecent(r.Context(), loc, req.Target)
		} else {
			err = s.deps.Resolver.SelectPinned(r.Context(), loc, req.Target)
		}
	default:
		err = fmt.Errorf("%w: unknown source %q", errBadRequest, req.Source)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.deps.Resolver.OnPinMoved(req.Lat, req.Lng)
	writeJSON(w, http.StatusAccepted, s.deps.Resolver.View())
}

func (s *Server) handleGetLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Locations.Snapshot())
}

func (s *Server) handleUseCurrent(w http.ResponseWriter, r *http.Request) {
	var req currentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	loc, err := s.deps.Resolver.UseCurrentLocation(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleSetSlot(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if err := decode(r, &loc); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Resolver.SelectManual(r.Context(), loc, resolver.Target(mux.Vars(r)["slot"])); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Locations.Snapshot())
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	s.deps.Locations.SwapLocations()
	writeJSON(w, http.StatusOK, s.deps.Locations.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.deps.Locations.ClearLocations()
	writeJSON(w, http.StatusOK, s.deps.Locations.Snapshot())
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentRide(false).Snapshot())
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rd, err := s.currentRide(true).ConfirmDropoff(r.Context(), req.VehicleClass)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rd, err := s.currentRide(false).Confirm(r.Context(), req.PaymentMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rd)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, err)
		return
	}
	rd, err := s.currentRide(false).Cancel(r.Context(), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	rd, err := s.currentRide(false).CompleteTrip(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleCancelReasons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"reasons":             ride.CancellationReasons,
		"free_window_seconds": int(ride.FreeCancellationWindow / time.Second),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		limit = n
	}
	entries, err := s.deps.History.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rides": entries})
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.History.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if err := decode(r, &fb); err != nil {
		s.writeError(w, r, err)
		return
	}
	fb.SubmittedAt = time.Now().UTC()
	if err := s.deps.History.SubmitFeedback(r.Context(), mux.Vars(r)["id"], fb); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDriverLocation takes a simulated driver ping. The ping goes to the
// broker when one is configured and into the local pool when tracking is on.
func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := decode(r, &d); err != nil {
		s.writeError(w, r, err)
		return
	}
	if d.ID == "" {
		s.writeError(w, r, fmt.Errorf("%w: driver id is required", errBadRequest))
		return
	}
	d.Online = true
	d.Updated = time.Now().UTC()
	if s.deps.Pings != nil {
		if err := s.deps.Pings.PublishLocation(r.Context(), d); err != nil {
			s.logger.Warn("driver ping publish failed", zap.String("driver_id", d.ID), zap.Error(err))
		}
	}
	if s.deps.TrackDriver != nil {
		if err := s.deps.TrackDriver(r.Context(), d); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// handleWS registers a rider client and sends it the current snapshots.
// The read loop only watches for the client going away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	id := uuid.NewString()
	err = s.deps.WS.Attach(id, conn,
		dispatch.Envelope{Type: "ride", Data: s.currentRide(false).Snapshot()},
		dispatch.Envelope{Type: "locations", Data: s.deps.Locations.Snapshot()},
		dispatch.Envelope{Type: "search", Data: s.deps.Resolver.View()},
	)
	if err != nil {
		return
	}
	go func() {
		defer s.deps.WS.Remove(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
