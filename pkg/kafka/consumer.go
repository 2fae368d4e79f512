package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxHandlerRetries is the maximum number of times a message handler will be
// attempted before the message is committed and skipped (poison pill protection).
const maxHandlerRetries = 3

const defaultBackoff = 100 * time.Millisecond

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
	// Permanent reports handler errors that fail the same way on every
	// attempt. They skip the remaining retries.
	Permanent func(error) bool
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages whose handler failed for good.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, lastErr error, consumerGroup string) error
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter forwards failed messages to d before they are committed.
func WithDeadLetter(d DeadLetterPublisher) ConsumerOption {
	return func(c *Consumer) { c.deadLetter = d }
}

// Consumer reads one topic and hands every event to a handler.
type Consumer struct {
	reader     messageReader
	topic      string
	group      string
	handler    Handler
	permanent  func(error) bool
	backoff    time.Duration
	deadLetter DeadLetterPublisher
	logger     *slog.Logger
	closeOnce  sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger, opts...)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:    r,
		topic:     cfg.Topic,
		group:     cfg.GroupID,
		handler:   handler,
		permanent: cfg.Permanent,
		backoff:   cfg.Backoff,
		logger:    logger.With(slog.String("topic", cfg.Topic), slog.String("group", cfg.GroupID)),
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}
		c.process(ctx, msg)
	}
}

// process handles one message and commits it unless ctx was canceled
// before the outcome was known.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		consumerMessages.WithLabelValues(c.topic, c.group, outcomeMalformed).Inc()
		c.logger.Error("failed to unmarshal event",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.commit(ctx, msg)
		return
	}

	start := time.Now()
	err = c.handle(extractTrace(ctx, msg.Headers), event, msg)
	consumerDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())
	if ctx.Err() != nil {
		return
	}

	if err == nil {
		consumerMessages.WithLabelValues(c.topic, c.group, outcomeProcessed).Inc()
		c.commit(ctx, msg)
		return
	}

	consumerMessages.WithLabelValues(c.topic, c.group, outcomeFailed).Inc()
	c.logger.Error("handler failed, skipping message",
		slog.String("event_type", event.EventType),
		slog.String("event_id", event.EventID),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("error", err.Error()),
	)
	if c.deadLetter != nil {
		if dlqErr := c.deadLetter.Publish(ctx, msg, err, c.group); dlqErr == nil {
			consumerMessages.WithLabelValues(c.topic, c.group, outcomeDeadLettered).Inc()
		}
	}
	c.commit(ctx, msg)
}

func (c *Consumer) handle(ctx context.Context, event *Event, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		if err = c.handler(ctx, event); err == nil {
			return nil
		}
		if c.permanent != nil && c.permanent(err) {
			return err
		}
		c.logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt == maxHandlerRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
