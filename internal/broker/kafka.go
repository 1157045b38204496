// Package broker publishes engine events to external message brokers.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

// kafkaBatchTimeout bounds how long a single event waits for batch mates.
const kafkaBatchTimeout = 10 * time.Millisecond

// messageWriter is the subset of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes every event to one topic, keyed by event kind.
type KafkaSink struct {
	w     messageWriter
	topic string
	now   func() time.Time
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           kafkaBatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{w: w, topic: topic, now: time.Now}
}

func (k *KafkaSink) Name() string { return "kafka:" + k.topic }

func (k *KafkaSink) Publish(ctx context.Context, ev data.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{Key: []byte(ev.Kind), Value: b, Time: k.now()}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error { return k.w.Close() }
