package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/models"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestPublishKeysByRide(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaPublisher{writer: w, logger: zap.NewNop()}
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	ride := models.Ride{ID: "ride-1", State: models.RideMatchingDriver}

	require.NoError(t, p.Publish(context.Background(), NewTransition(models.RideConfirmed, ride, at)))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ride-1", string(msg.Key))
	assert.Equal(t, "ride.matching_driver", string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, models.RideConfirmed, got.From)
	assert.Equal(t, models.RideMatchingDriver, got.State)
	assert.Equal(t, at, got.OccurredAt)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := &KafkaPublisher{writer: &captureWriter{err: boom}, logger: zap.NewNop()}
	err := p.Publish(context.Background(), NewTransition(models.RideIdle, models.Ride{ID: "r"}, time.Now()))
	assert.ErrorIs(t, err, boom)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
