//go:build integration

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/example/rider-core/internal/models"
)

func startRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewRedisPersister(startRedis(t), "rapido-locations")

	got, err := p.LoadRecent(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	want := []models.Location{{Latitude: 12.97, Longitude: 77.59, Address: "MG Road, Bengaluru", Name: "MG Road"}}
	require.NoError(t, p.SaveRecent(ctx, want))
	got, err = p.LoadRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPostgresHistory(t *testing.T) {
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "rides",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=rides sslmode=disable", host, port.Port())

	var db *sqlx.DB
	require.Eventually(t, func() bool {
		db, err = sqlx.Connect("postgres", dsn)
		return err == nil
	}, 30*time.Second, time.Second, "PostgreSQL not ready for connections")
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_create_rides.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	h := NewPostgresHistoryFromDB(db)
	first := completedRide("r1")
	second := completedRide("r2")
	later := second.CompletedAt.Add(time.Minute)
	second.CompletedAt = &later
	require.NoError(t, h.Append(ctx, first))
	require.NoError(t, h.Append(ctx, second))
	require.NoError(t, h.Append(ctx, second))

	list, err := h.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].Ride.ID)
	assert.EqualValues(t, 85, list[0].Ride.Estimate.Fare)

	require.NoError(t, h.SubmitFeedback(ctx, "r1", models.Feedback{Rating: 4, Tags: []string{"Polite"}}))
	e, err := h.Get(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, e.Feedback)
	assert.Equal(t, []string{"Polite"}, e.Feedback.Tags)

	assert.ErrorIs(t, h.SubmitFeedback(ctx, "nope", models.Feedback{Rating: 4}), ErrRideNotFound)
	_, err = h.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrRideNotFound)
}
