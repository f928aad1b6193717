package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/dispatch"
	"github.com/example/rider-core/internal/ingest"
	"github.com/example/rider-core/internal/location"
	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/resolver"
	"github.com/example/rider-core/internal/ride"
	"github.com/example/rider-core/internal/storage"
)

// DriverPinger forwards driver positions to the broker.
type DriverPinger interface {
	PublishLocation(ctx context.Context, d models.Driver) error
}

var _ DriverPinger = (*ingest.DriverPings)(nil)

type Deps struct {
	Resolver  *resolver.Resolver
	Locations *location.Store
	History   storage.History
	// NewRide builds the controller for the next ride; called once at
	// start-up and again whenever the current ride has ended.
	NewRide func() *ride.Controller
	// TrackDriver records a driver ping in the local pool. Optional.
	TrackDriver func(ctx context.Context, d models.Driver) error
	Pings       DriverPinger
	WS          *dispatch.WSRegistry
	CORSOrigins []string
	Logger      *zap.Logger
}

type Server struct {
	deps    Deps
	logger  *zap.Logger
	mux     *mux.Router
	handler http.Handler

	rideMu     sync.Mutex
	ride       *ride.Controller
	unsubRide  func()
	unsubViews []func()
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.WS == nil {
		d.WS = dispatch.NewWSRegistry(d.Logger)
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &Server{deps: d, logger: d.Logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	s.handler = cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})(s.mux)

	s.unsubViews = append(s.unsubViews,
		d.Resolver.Subscribe(func(v resolver.View) { s.deps.WS.Broadcast("search", v) }),
		d.Locations.Subscribe(func(snap location.Snapshot) { s.deps.WS.Broadcast("locations", snap) }),
	)
	s.replaceRideLocked()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/search", s.handleGetSearch).Methods(http.MethodGet)
	api.HandleFunc("/search/query", s.handleQuery).Methods(http.MethodPost)
	api.HandleFunc("/search/select", s.handleSelect).Methods(http.MethodPost)
	api.HandleFunc("/search/pin", s.handlePin).Methods(http.MethodPost)

	api.HandleFunc("/locations", s.handleGetLocations).Methods(http.MethodGet)
	api.HandleFunc("/locations/current", s.handleUseCurrent).Methods(http.MethodPost)
	api.HandleFunc("/locations/swap", s.handleSwap).Methods(http.MethodPost)
	api.HandleFunc("/locations/clear", s.handleClear).Methods(http.MethodPost)
	api.HandleFunc("/locations/{slot:pickup|dropoff}", s.handleSetSlot).Methods(http.MethodPut)

	api.HandleFunc("/ride", s.handleGetRide).Methods(http.MethodGet)
	api.HandleFunc("/ride/estimate", s.handleEstimate).Methods(http.MethodPost)
	api.HandleFunc("/ride/confirm", s.handleConfirm).Methods(http.MethodPost)
	api.HandleFunc("/ride/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/ride/complete", s.handleComplete).Methods(http.MethodPost)
	api.HandleFunc("/ride/cancellation-reasons", s.handleCancelReasons).Methods(http.MethodGet)

	api.HandleFunc("/rides/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}", s.handleHistoryEntry).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}/feedback", s.handleFeedback).Methods(http.MethodPost)

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods(http.MethodPost)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/ride", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

// Close detaches the server from the resolver, store and current ride.
func (s *Server) Close() {
	s.rideMu.Lock()
	if s.unsubRide != nil {
		s.unsubRide()
	}
	if s.ride != nil {
		s.ride.Close()
	}
	s.rideMu.Unlock()
	for _, u := range s.unsubViews {
		u()
	}
}

// currentRide returns the active controller. With fresh set, a ride that
// has completed or been cancelled is replaced by a new one first.
func (s *Server) currentRide(fresh bool) *ride.Controller {
	s.rideMu.Lock()
	defer s.rideMu.Unlock()
	if fresh && s.ride.State().Terminal() {
		s.replaceRideLocked()
	}
	return s.ride
}

func (s *Server) replaceRideLocked() {
	if s.unsubRide != nil {
		s.unsubRide()
	}
	if s.ride != nil {
		s.ride.Close()
	}
	c := s.deps.NewRide()
	s.unsubRide = c.Subscribe(func(r models.Ride) { s.deps.WS.Broadcast("ride", r) })
	s.ride = c
}
