package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalpovskii/tasktracker/internal/app/models"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes task events as JSON, keyed by task id so that all
// events of one task land on the same partition.
// Writes are synchronous; a single event is flushed after batchTimeout
// instead of waiting for a full batch.
const batchTimeout = 10 * time.Millisecond

type Producer struct {
	writer messageWriter
}

func NewProducer(broker, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           batchTimeout,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, event models.TaskEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode task event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TaskID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
