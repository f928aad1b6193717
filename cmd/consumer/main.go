package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/rider-core/internal/config"
	"github.com/example/rider-core/internal/geo"
	"github.com/example/rider-core/internal/logging"
	"github.com/example/rider-core/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total driver location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.LogLevel, "driver-pool-consumer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("consumer exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.ConsumerConfig, logger *zap.Logger) error {
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := rc.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("metrics/health listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		consume(gctx, r, &redisAdapter{c: rc}, cfg.RedisGeoKey, logger)
		return nil
	})
	return g.Wait()
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// consume folds driver pings into the Redis pool until ctx ends.
func consume(ctx context.Context, r messageReader, rc RedisUpdater, geoKey string, logger *zap.Logger) {
	logger.Info("consumer started", zap.String("geo_key", geoKey))

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var d models.Driver
		if err := json.Unmarshal(m.Value, &d); err != nil || d.ID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid driver ping", zap.ByteString("key", m.Key), zap.Error(err))
			continue
		}
		if d.Updated.IsZero() {
			d.Updated = m.Time
		}

		if err := updateRedisWithRetry(ctx, rc, geoKey, &d, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			logger.Error("redis update failed", zap.String("driver_id", d.ID), zap.Error(err))
			continue
		}
		redisUpdates.Inc()
	}
}

// RedisUpdater is the subset of redis the consumer writes through.
type RedisUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	return r.c.GeoAdd(ctx, key, loc).Err()
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return r.c.HSet(ctx, key, values).Err()
}

// updateRedisWithRetry writes the driver's position and metadata, retrying
// each step with doubling delay.
func updateRedisWithRetry(ctx context.Context, rc RedisUpdater, geoKey string, d *models.Driver, attempts int, delay time.Duration) error {
	steps := []func() error{
		func() error {
			return rc.GeoAdd(ctx, geoKey, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID})
		},
		func() error {
			return rc.HSet(ctx, geo.MetaKey(d.ID), geo.MetaFields(*d, d.Updated))
		},
	}
	for _, step := range steps {
		wait := delay
		var err error
		for i := 0; i < attempts; i++ {
			if err = step(); err == nil {
				break
			}
			if i == attempts-1 {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
	}
	return nil
}
