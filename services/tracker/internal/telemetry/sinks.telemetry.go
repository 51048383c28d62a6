package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const DefaultAlertQueue = "telemetry_alerts"

// Publisher is a keyed event publisher; the shared Kafka producer implements it.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// QueuePublisher publishes raw bodies to a named queue; the shared RabbitMQ
// client implements it.
type QueuePublisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// AsyncSink hands records to a publish func on background workers so the
// dispatch path never waits on a broker. When the buffer is full the record
// is dropped with a warning.
type AsyncSink struct {
	name    string
	publish func(ctx context.Context, meta ActionMetadata) error
	events  chan ActionMetadata
	timeout time.Duration
	logger  *slog.Logger

	quitChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewAsyncSink(name string, buffer int, logger *slog.Logger, publish func(ctx context.Context, meta ActionMetadata) error) *AsyncSink {
	if buffer <= 0 {
		buffer = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncSink{
		name:     name,
		publish:  publish,
		events:   make(chan ActionMetadata, buffer),
		timeout:  5 * time.Second,
		logger:   logger,
		quitChan: make(chan struct{}),
	}
}

// NewKafkaSink publishes every action record keyed by action type. The
// encrypted snapshot stays local.
func NewKafkaSink(pub Publisher, buffer int, logger *slog.Logger) *AsyncSink {
	return NewAsyncSink("kafka", buffer, logger, func(ctx context.Context, meta ActionMetadata) error {
		meta.EncryptedSnapshot = nil
		return pub.Publish(ctx, meta.Type, meta)
	})
}

// Alert is the message body published for slow or failed actions.
type Alert struct {
	Level     string         `json:"level"`
	Reason    string         `json:"reason"`
	SessionID string         `json:"sessionId"`
	Action    ActionMetadata `json:"action"`
}

// NewAlertSink publishes slow and failed actions to a durable queue.
func NewAlertSink(q QueuePublisher, queue, sessionID string, buffer int, logger *slog.Logger) *AsyncSink {
	if queue == "" {
		queue = DefaultAlertQueue
	}
	return NewAsyncSink("rabbitmq", buffer, logger, func(ctx context.Context, meta ActionMetadata) error {
		meta.EncryptedSnapshot = nil
		alert := Alert{Level: "warning", Reason: "slow_action", SessionID: sessionID, Action: meta}
		if meta.Error != nil {
			alert.Level, alert.Reason = "error", "action_error"
		}
		body, err := json.Marshal(alert)
		if err != nil {
			return err
		}
		return q.Publish(ctx, queue, body)
	})
}

// Start launches the publishing workers.
func (s *AsyncSink) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("telemetry sink started", slog.String("sink", s.name), slog.Int("workers", workers))
}

// Emit queues meta without blocking.
func (s *AsyncSink) Emit(meta ActionMetadata) {
	select {
	case s.events <- meta:
	default:
		s.logger.Warn("telemetry sink full, dropping record",
			slog.String("sink", s.name),
			slog.String("action_id", meta.ID),
		)
	}
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()
	for {
		select {
		case meta := <-s.events:
			s.send(meta)
		case <-s.quitChan:
			// drain what is buffered before exiting
			for {
				select {
				case meta := <-s.events:
					s.send(meta)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) send(meta ActionMetadata) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.publish(ctx, meta); err != nil {
		s.logger.Error("telemetry publish failed",
			slog.String("sink", s.name),
			slog.String("action", meta.Type),
			slog.Any("error", err),
		)
	}
}

// Stop signals the workers and waits until the buffer is drained.
func (s *AsyncSink) Stop() {
	s.stopOnce.Do(func() {
		close(s.quitChan)
		s.wg.Wait()
		s.logger.Info("telemetry sink stopped", slog.String("sink", s.name))
	})
}
