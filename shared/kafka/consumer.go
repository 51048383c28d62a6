package kafka

import (
	"context"
	"log/slog"
	"time"

	skafka "github.com/segmentio/kafka-go"
)

// Reader is the subset of segmentio kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (skafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Handler processes one message. Returning an error leaves the offset
// uncommitted, so the message is delivered again.
type Handler func(ctx context.Context, key []byte, value []byte) error

// Consumer pulls messages from one topic as part of a consumer group.
type Consumer struct {
	reader         Reader
	logger         *slog.Logger
	topic          string
	groupID        string
	processTimeout time.Duration
	retryDelay     time.Duration
}

// NewConsumer creates the group reader.
// groupID is crucial: running several copies of the process splits the
// partitions between them instead of each copy processing every message.
func NewConsumer(brokers []string, topic string, groupID string, logger *slog.Logger) *Consumer {
	r := skafka.NewReader(skafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	c := NewConsumerWithReader(r, logger)
	c.topic, c.groupID = topic, groupID
	return c
}

// NewConsumerWithReader allows injecting a test reader.
func NewConsumerWithReader(r Reader, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:         r,
		logger:         logger,
		processTimeout: 10 * time.Second,
		retryDelay:     time.Second,
	}
}

// Start runs the fetch/handle/commit loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	c.logger.Info("kafka consumer started", slog.String("topic", c.topic), slog.String("group", c.groupID))

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("error fetching message", slog.Any("error", err))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		// the handler gets a bounded amount of time per message
		processCtx, cancel := context.WithTimeout(ctx, c.processTimeout)
		err = handler(processCtx, m.Key, m.Value)
		cancel()

		if err != nil {
			// not committed: kafka redelivers it
			c.logger.Error("processing failed", slog.Int64("offset", m.Offset), slog.Any("error", err))
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit offset", slog.Int64("offset", m.Offset), slog.Any("error", err))
		}
	}
}

// Close disconnects from the brokers.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
