package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/rider-core/internal/models"
)

// RedisPersister keeps the recent list under a single string key.
type RedisPersister struct {
	client redis.UniversalClient
	key    string
}

func NewRedisPersister(client redis.UniversalClient, key string) *RedisPersister {
	return &RedisPersister{client: client, key: key}
}

func (r *RedisPersister) LoadRecent(ctx context.Context) ([]models.Location, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return decodeRecent(b)
}

func (r *RedisPersister) SaveRecent(ctx context.Context, recent []models.Location) error {
	b, err := encodeRecent(recent)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}
