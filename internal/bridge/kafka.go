// Package bridge republishes tracked-entity lifecycle events to Kafka
// for downstream consumers that do not speak MQTT.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event kinds forwarded downstream.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventExpired = "expired"
)

// Event is the downstream rendering of a lifecycle transition.
type Event struct {
	EventID   string      `json:"event_id"`
	Event     string      `json:"event"`
	Category  string      `json:"category"`
	Key       string      `json:"key"`
	Timestamp time.Time   `json:"timestamp"`
	Entity    interface{} `json:"entity,omitempty"`
}

// Options configure the Kafka writer.
type Options struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
}

// Bridge owns an async batching Kafka writer keyed by entity identity,
// so per-entity event ordering survives partitioning.
type Bridge struct {
	writer *kafka.Writer
	logger *log.Logger
}

// New creates a bridge. The writer is asynchronous: delivery errors are
// logged, never propagated to the ingest path.
func New(opts Options, logger *log.Logger) *Bridge {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 5 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(opts.Brokers...),
		Topic:    opts.Topic,
		Balancer: &kafka.Hash{},

		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,

		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
	}
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			logger.Printf("kafka write error: %v (%d messages)", err, len(messages))
		}
	}
	return &Bridge{writer: w, logger: logger}
}

// Publish forwards one lifecycle event. The entity snapshot must be
// JSON-serializable.
func (b *Bridge) Publish(ctx context.Context, event, category, key string, entity interface{}) {
	evt := Event{
		EventID:   uuid.NewString(),
		Event:     event,
		Category:  category,
		Key:       key,
		Timestamp: time.Now().UTC(),
		Entity:    entity,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		b.logger.Printf("marshal error: %v", err)
		return
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	}); err != nil {
		b.logger.Printf("kafka write error: %v", err)
	}
}

// Close flushes and closes the writer.
func (b *Bridge) Close() {
	if err := b.writer.Close(); err != nil {
		b.logger.Printf("kafka close error: %v", err)
	}
}
