package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"github.com/example/rider-core/internal/config"
	"github.com/example/rider-core/internal/models"
)

// RecentPersister stores the bounded recent-locations list as one record.
type RecentPersister interface {
	LoadRecent(ctx context.Context) ([]models.Location, error)
	SaveRecent(ctx context.Context, recent []models.Location) error
}

// recentRecord is the stored schema shared by every backend.
type recentRecord struct {
	RecentLocations []models.Location `json:"recentLocations"`
}

func encodeRecent(recent []models.Location) ([]byte, error) {
	if recent == nil {
		recent = []models.Location{}
	}
	return json.Marshal(recentRecord{RecentLocations: recent})
}

func decodeRecent(b []byte) ([]models.Location, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var rec recentRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode recent locations: %w", err)
	}
	return rec.RecentLocations, nil
}

// OpenRecentPersister builds the backend selected by cfg.Backend. rdb is only
// consulted for the redis backend.
func OpenRecentPersister(ctx context.Context, cfg config.RecentConfig, rdb redis.UniversalClient) (RecentPersister, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFilePersister(cfg.File), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis recent backend requires a redis client")
		}
		return NewRedisPersister(rdb, cfg.Key), nil
	case "s3":
		client, err := minio.New(cfg.S3Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			Secure: cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create MinIO client: %w", err)
		}
		return NewS3Persister(ctx, client, cfg.S3Bucket, cfg.Key+".json")
	default:
		return nil, fmt.Errorf("unknown recent backend %q", cfg.Backend)
	}
}
