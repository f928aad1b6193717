package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/rider-core/internal/models"
)

// DriverPings publishes simulated driver positions for cmd/consumer to fold
// into the Redis driver pool.
type DriverPings struct {
	writer *kafka.Writer
}

func NewDriverPings(brokers []string, topic string) *DriverPings {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.LeastBytes{}}
	return &DriverPings{writer: w}
}

func (k *DriverPings) PublishLocation(ctx context.Context, d models.Driver) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode driver %s: %w", d.ID, err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(d.ID), Value: b})
}

func (k *DriverPings) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
