package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig captures all tunable parameters for the rider-session process.
// Values are loaded from the environment (optionally seeded from a .env file)
// with defaults that let the binary run locally without any backing services.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers    []string
	RideEventsTopic string
	DriverPingTopic string

	PGDSN         string
	RunMigrations bool

	Places   PlacesConfig
	Resolver ResolverConfig
	Recent   RecentConfig
	Fares    FareConfig
	Matcher  MatcherConfig
	Ride     RideConfig

	LogLevel string
}

type PlacesConfig struct {
	BaseURL  string
	APIKey   string
	BiasLat  float64
	BiasLng  float64
	RadiusM  int
	Region   string
	Timeout  time.Duration
	Language string
}

type ResolverConfig struct {
	Debounce       time.Duration
	PinDebounce    time.Duration
	MinQueryLength int
}

// RecentConfig selects where the recent-locations record lives.
type RecentConfig struct {
	Backend string // file | redis | s3
	File    string
	Key     string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
}

type RateConfig struct {
	Base      int64
	PerKm     float64
	PerMinute float64
}

type FareConfig struct {
	Currency       string
	Bike           RateConfig
	Auto           RateConfig
	Scooty         RateConfig
	Cab            RateConfig
	CabAC          RateConfig
	AverageSpeedKm float64
}

type MatcherConfig struct {
	TopN           int
	DriverSpeedKmh float64
	Delay          time.Duration
	Jitter         time.Duration
}

type RideConfig struct {
	ArrivalDelay time.Duration
	TripDuration time.Duration
}

// ConsumerConfig is the driver-ping consumer's configuration.
type ConsumerConfig struct {
	MetricsAddr  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	RedisAddr    string
	RedisGeoKey  string
	LogLevel     string
}

func newViper() *viper.Viper {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_READ_TIMEOUT", 5*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 120*time.Second)
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second)
	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("REDIS_GEO_KEY", "drivers_geo")
	v.SetDefault("RIDE_EVENTS_TOPIC", "ride-lifecycle")
	v.SetDefault("KAFKA_TOPIC", "driver-locations")
	v.SetDefault("KAFKA_GROUP", "rider-core-driver-pool")
	v.SetDefault("METRICS_ADDR", ":2112")

	v.SetDefault("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api")
	v.SetDefault("PLACES_BIAS_LAT", 28.6139)
	v.SetDefault("PLACES_BIAS_LNG", 77.2090)
	v.SetDefault("PLACES_RADIUS_M", 50000)
	v.SetDefault("PLACES_REGION", "country:in")
	v.SetDefault("PLACES_TIMEOUT", 10*time.Second)
	v.SetDefault("PLACES_LANGUAGE", "en")

	v.SetDefault("RESOLVER_DEBOUNCE", 300*time.Millisecond)
	v.SetDefault("RESOLVER_PIN_DEBOUNCE", 400*time.Millisecond)
	v.SetDefault("RESOLVER_MIN_QUERY", 3)

	v.SetDefault("RECENT_BACKEND", "file")
	v.SetDefault("RECENT_FILE", "recent-locations.json")
	v.SetDefault("RECENT_KEY", "rapido-locations")
	v.SetDefault("RECENT_S3_BUCKET", "rider-core")

	v.SetDefault("FARE_CURRENCY", "INR")
	v.SetDefault("FARE_BASE", 25)
	v.SetDefault("FARE_PER_KM", 5.3)
	v.SetDefault("FARE_PER_MIN", 0.85)
	v.SetDefault("FARE_AUTO_BASE", 40)
	v.SetDefault("FARE_AUTO_PER_KM", 9.5)
	v.SetDefault("FARE_AUTO_PER_MIN", 1.2)
	v.SetDefault("FARE_SCOOTY_BASE", 27)
	v.SetDefault("FARE_SCOOTY_PER_KM", 5.6)
	v.SetDefault("FARE_SCOOTY_PER_MIN", 0.9)
	v.SetDefault("FARE_CAB_BASE", 60)
	v.SetDefault("FARE_CAB_PER_KM", 14)
	v.SetDefault("FARE_CAB_PER_MIN", 1.8)
	v.SetDefault("FARE_CABAC_BASE", 75)
	v.SetDefault("FARE_CABAC_PER_KM", 16)
	v.SetDefault("FARE_CABAC_PER_MIN", 2.1)
	v.SetDefault("TRIP_AVERAGE_SPEED_KMH", 25.0)

	v.SetDefault("MATCHER_TOP_N", 8)
	v.SetDefault("MATCHER_DRIVER_SPEED_KMH", 25.0)
	v.SetDefault("MATCH_DELAY", 5*time.Second)
	v.SetDefault("MATCH_JITTER", 0)

	v.SetDefault("ARRIVAL_DELAY", 5*time.Second)
	v.SetDefault("TRIP_DURATION", 10*time.Second)

	v.SetDefault("LOG_LEVEL", "info")
	return v
}

func LoadServerConfig() (ServerConfig, error) {
	v := newViper()
	var errs []error

	cfg := ServerConfig{
		HTTPAddr:        v.GetString("HTTP_ADDR"),
		ReadTimeout:     v.GetDuration("HTTP_READ_TIMEOUT"),
		WriteTimeout:    v.GetDuration("HTTP_WRITE_TIMEOUT"),
		IdleTimeout:     v.GetDuration("HTTP_IDLE_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("HTTP_SHUTDOWN_TIMEOUT"),
		CORSOrigins:     splitAndTrim(v.GetString("CORS_ORIGINS")),

		RedisAddr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisGeoKey:   v.GetString("REDIS_GEO_KEY"),

		KafkaBrokers:    splitAndTrim(v.GetString("KAFKA_BROKERS")),
		RideEventsTopic: v.GetString("RIDE_EVENTS_TOPIC"),
		DriverPingTopic: v.GetString("KAFKA_TOPIC"),

		PGDSN:         v.GetString("PG_DSN"),
		RunMigrations: strings.EqualFold(v.GetString("MIGRATE"), "true"),

		Places: PlacesConfig{
			BaseURL:  strings.TrimRight(v.GetString("PLACES_BASE_URL"), "/"),
			APIKey:   v.GetString("GOOGLE_MAPS_API_KEY"),
			BiasLat:  v.GetFloat64("PLACES_BIAS_LAT"),
			BiasLng:  v.GetFloat64("PLACES_BIAS_LNG"),
			RadiusM:  v.GetInt("PLACES_RADIUS_M"),
			Region:   v.GetString("PLACES_REGION"),
			Timeout:  v.GetDuration("PLACES_TIMEOUT"),
			Language: v.GetString("PLACES_LANGUAGE"),
		},
		Resolver: ResolverConfig{
			Debounce:       v.GetDuration("RESOLVER_DEBOUNCE"),
			PinDebounce:    v.GetDuration("RESOLVER_PIN_DEBOUNCE"),
			MinQueryLength: v.GetInt("RESOLVER_MIN_QUERY"),
		},
		Recent: RecentConfig{
			Backend:     strings.ToLower(v.GetString("RECENT_BACKEND")),
			File:        v.GetString("RECENT_FILE"),
			Key:         v.GetString("RECENT_KEY"),
			S3Endpoint:  v.GetString("MINIO_ENDPOINT"),
			S3AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			S3SecretKey: v.GetString("MINIO_SECRET_KEY"),
			S3Bucket:    v.GetString("RECENT_S3_BUCKET"),
			S3UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		Fares: FareConfig{
			Currency: v.GetString("FARE_CURRENCY"),
			Bike: RateConfig{
				Base:      v.GetInt64("FARE_BASE"),
				PerKm:     v.GetFloat64("FARE_PER_KM"),
				PerMinute: v.GetFloat64("FARE_PER_MIN"),
			},
			Auto: RateConfig{
				Base:      v.GetInt64("FARE_AUTO_BASE"),
				PerKm:     v.GetFloat64("FARE_AUTO_PER_KM"),
				PerMinute: v.GetFloat64("FARE_AUTO_PER_MIN"),
			},
			Scooty:         rateConfig(v, "FARE_SCOOTY"),
			Cab:            rateConfig(v, "FARE_CAB"),
			CabAC:          rateConfig(v, "FARE_CABAC"),
			AverageSpeedKm: v.GetFloat64("TRIP_AVERAGE_SPEED_KMH"),
		},
		Matcher: MatcherConfig{
			TopN:           v.GetInt("MATCHER_TOP_N"),
			DriverSpeedKmh: v.GetFloat64("MATCHER_DRIVER_SPEED_KMH"),
			Delay:          v.GetDuration("MATCH_DELAY"),
			Jitter:         v.GetDuration("MATCH_JITTER"),
		},
		Ride: RideConfig{
			ArrivalDelay: v.GetDuration("ARRIVAL_DELAY"),
			TripDuration: v.GetDuration("TRIP_DURATION"),
		},
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
	}

	if cfg.Matcher.TopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_TOP_N must be > 0"))
	}
	if cfg.Resolver.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("RESOLVER_DEBOUNCE must be > 0"))
	}
	if cfg.Resolver.MinQueryLength < 1 {
		errs = append(errs, fmt.Errorf("RESOLVER_MIN_QUERY must be >= 1"))
	}
	if cfg.Fares.AverageSpeedKm <= 0 {
		errs = append(errs, fmt.Errorf("TRIP_AVERAGE_SPEED_KMH must be > 0"))
	}
	for _, rc := range []RateConfig{cfg.Fares.Bike, cfg.Fares.Auto, cfg.Fares.Scooty, cfg.Fares.Cab, cfg.Fares.CabAC} {
		if rc.PerKm < 0 || rc.PerMinute < 0 || rc.Base < 0 {
			errs = append(errs, fmt.Errorf("fare rates must not be negative"))
			break
		}
	}
	switch cfg.Recent.Backend {
	case "file":
	case "redis":
		if cfg.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("RECENT_BACKEND=redis requires REDIS_ADDR"))
		}
	case "s3":
		if cfg.Recent.S3Endpoint == "" || cfg.Recent.S3AccessKey == "" || cfg.Recent.S3SecretKey == "" {
			errs = append(errs, fmt.Errorf("RECENT_BACKEND=s3 requires MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RECENT_BACKEND %q", cfg.Recent.Backend))
	}

	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	v := newViper()

	brokers := splitAndTrim(v.GetString("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		brokers = splitAndTrim(v.GetString("KAFKA_BROKER"))
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	redisAddr := strings.TrimSpace(v.GetString("REDIS_ADDR"))
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	cfg := ConsumerConfig{
		MetricsAddr:  v.GetString("METRICS_ADDR"),
		KafkaBrokers: brokers,
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),
		KafkaGroup:   v.GetString("KAFKA_GROUP"),
		RedisAddr:    redisAddr,
		RedisGeoKey:  v.GetString("REDIS_GEO_KEY"),
		LogLevel:     strings.ToLower(v.GetString("LOG_LEVEL")),
	}
	if cfg.KafkaTopic == "" {
		return cfg, errors.New("KAFKA_TOPIC must not be empty")
	}
	return cfg, nil
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func rateConfig(v *viper.Viper, prefix string) RateConfig {
	return RateConfig{
		Base:      v.GetInt64(prefix + "_BASE"),
		PerKm:     v.GetFloat64(prefix + "_PER_KM"),
		PerMinute: v.GetFloat64(prefix + "_PER_MIN"),
	}
}
