package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/rider-core/internal/config"
	"github.com/example/rider-core/internal/dispatch"
	"github.com/example/rider-core/internal/eta"
	"github.com/example/rider-core/internal/events"
	"github.com/example/rider-core/internal/fare"
	"github.com/example/rider-core/internal/geo"
	httpapi "github.com/example/rider-core/internal/http"
	"github.com/example/rider-core/internal/ingest"
	"github.com/example/rider-core/internal/location"
	"github.com/example/rider-core/internal/logging"
	"github.com/example/rider-core/internal/matcher"
	"github.com/example/rider-core/internal/models"
	"github.com/example/rider-core/internal/observability"
	"github.com/example/rider-core/internal/places"
	"github.com/example/rider-core/internal/resolver"
	"github.com/example/rider-core/internal/ride"
	"github.com/example/rider-core/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.LogLevel, "rider-core")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) error {
	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
	}

	persister, err := storage.OpenRecentPersister(ctx, cfg.Recent, rdb)
	if err != nil {
		return fmt.Errorf("open recent persister: %w", err)
	}
	store := location.NewStore(ctx, persister, logger.Named("location"))

	res := resolver.New(places.NewClient(cfg.Places, logger.Named("places")), store, resolver.Options{
		Debounce:       cfg.Resolver.Debounce,
		PinDebounce:    cfg.Resolver.PinDebounce,
		MinQueryLength: cfg.Resolver.MinQueryLength,
		Logger:         logger.Named("resolver"),
	})
	defer res.Close()

	history, closeHistory, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHistory()

	var publisher events.Publisher = events.Nop{}
	var pings *ingest.DriverPings
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.RideEventsTopic, logger.Named("events"))
		pings = ingest.NewDriverPings(cfg.KafkaBrokers, cfg.DriverPingTopic)
		defer func() { _ = pings.Close() }()
	}
	defer func() { _ = publisher.Close() }()

	// Live drivers come from pings; the simulated roster answers when no
	// live driver is near.
	var (
		live  geo.Pool
		track func(context.Context, models.Driver) error
	)
	if rdb != nil {
		rg := geo.NewRedisGeo(rdb, cfg.RedisGeoKey)
		live, track = rg, rg.Upsert
	} else {
		idx := geo.NewIndex()
		live = idx
		track = func(_ context.Context, d models.Driver) error {
			idx.Upsert(d)
			observability.DriversOnline.Set(float64(idx.Len()))
			return nil
		}
	}
	match := &matcher.Service{
		Pool:           geo.Chain{live, geo.NewRoster()},
		TopN:           cfg.Matcher.TopN,
		DriverSpeedKmh: cfg.Matcher.DriverSpeedKmh,
		Delay:          cfg.Matcher.Delay,
		Jitter:         cfg.Matcher.Jitter,
		Logger:         logger.Named("matcher"),
	}
	trips := eta.NewEstimator(cfg.Fares.AverageSpeedKm)
	fares := fare.FromConfig(cfg.Fares)

	deps := httpapi.Deps{
		Resolver:  res,
		Locations: store,
		History:   history,
		NewRide: func() *ride.Controller {
			return ride.NewController(ride.Deps{
				Locations:    store,
				Trips:        trips,
				Fares:        fares,
				Matcher:      match,
				History:      history,
				Events:       publisher,
				Logger:       logger.Named("ride"),
				ArrivalDelay: cfg.Ride.ArrivalDelay,
				TripDuration: cfg.Ride.TripDuration,
			})
		},
		TrackDriver: track,
		WS:          dispatch.NewWSRegistry(logger.Named("ws")),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger.Named("http"),
	}
	if pings != nil {
		deps.Pings = pings
	}
	api := httpapi.NewServer(deps)
	defer api.Close()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("rider-core listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openHistory picks Postgres when PG_DSN is set and memory otherwise,
// applying migrations/001_create_rides.sql first when MIGRATE=true.
func openHistory(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) (storage.History, func(), error) {
	if cfg.PGDSN == "" {
		logger.Info("PG_DSN not set; ride history kept in memory")
		return storage.NewMemoryHistory(), func() {}, nil
	}
	ph, err := storage.NewPostgresHistory(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open ride history: %w", err)
	}
	if cfg.RunMigrations {
		b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
		if err != nil {
			_ = ph.Close()
			return nil, nil, fmt.Errorf("read migration: %w", err)
		}
		if _, err := ph.DB().ExecContext(ctx, string(b)); err != nil {
			_ = ph.Close()
			return nil, nil, fmt.Errorf("apply migration: %w", err)
		}
		logger.Info("migration applied", zap.String("file", "001_create_rides.sql"))
	}
	return ph, func() { _ = ph.Close() }, nil
}
