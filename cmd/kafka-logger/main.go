package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kalpovskii/tasktracker/internal/app/models"
	"github.com/kalpovskii/tasktracker/internal/config"
	"github.com/kalpovskii/tasktracker/internal/kafka"
	"github.com/kalpovskii/tasktracker/internal/logging"
	kafkago "github.com/segmentio/kafka-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateKafkaLogger(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal(err)
	}

	file, err := os.OpenFile(cfg.Kafka.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer file.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID, logger)
	defer consumer.Close()

	logger.Info("kafka logger started",
		slog.String("topic", cfg.Kafka.Topic),
		slog.String("file", cfg.Kafka.LogFile),
	)

	if err := consumer.Run(ctx, writeEvent(file)); err != nil {
		logger.Error("consumer stopped", slog.Any("error", err))
	}
}

// writeEvent appends one line per event.
func writeEvent(w io.Writer) kafka.Handler {
	return func(_ context.Context, event models.TaskEvent, msg kafkago.Message) error {
		_, err := fmt.Fprintf(w, "[%s] partition=%d offset=%d %s task=%s title=%q completed=%t\n",
			event.OccurredAt.UTC().Format(time.RFC3339),
			msg.Partition,
			msg.Offset,
			event.Type,
			event.TaskID,
			event.Title,
			event.Completed,
		)
		return err
	}
}
