package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kalpovskii/tasktracker/internal/app/models"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Handler receives every decoded event. A returned error is logged and the
// consumer moves on to the next message.
type Handler func(ctx context.Context, event models.TaskEvent, msg kafka.Message) error

type Consumer struct {
	reader messageReader
	logger *slog.Logger
}

func NewConsumer(broker, topic, groupID string, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{broker},
			Topic:   topic,
			GroupID: groupID,
		}),
		logger: logger,
	}
}

// Run reads until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil // reader closed
			}
			c.logger.ErrorContext(ctx, "read kafka message", slog.Any("error", err))
			continue
		}

		var event models.TaskEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.WarnContext(ctx, "skip undecodable message",
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err),
			)
			continue
		}

		if err := handle(ctx, event, msg); err != nil {
			c.logger.ErrorContext(ctx, "handle task event",
				slog.String("event", string(event.Type)),
				slog.Any("error", fmt.Errorf("offset %d: %w", msg.Offset, err)),
			)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
