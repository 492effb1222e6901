package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
	"github.com/fashion-supplychain/progress-service/pkg/metrics"
)

// EventHandler handles one CloudEvent
type EventHandler func(ctx context.Context, event *cloudevents.CloudEvent) error

// ErrPoisonMessage marks a handler failure that retrying cannot fix. The
// message is committed and skipped.
var ErrPoisonMessage = errors.New("poison message")

// MessageReader is the subset of *kafka.Reader the consumer needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory opens a reader for a topic
type ReaderFactory func(topic string) MessageReader

// Consumer dispatches messages from subscribed topics to handlers
type Consumer struct {
	config    *Config
	newReader ReaderFactory
	metrics   *metrics.Metrics
	logger    *logging.Logger

	mu       sync.Mutex
	readers  map[string]MessageReader
	handlers map[string]map[string]EventHandler // topic -> eventType -> handler
}

// NewConsumer creates a consumer backed by kafka-go readers
func NewConsumer(config *Config, m *metrics.Metrics, logger *logging.Logger) *Consumer {
	c := &Consumer{
		config:   config,
		metrics:  m,
		logger:   logger.WithComponent("kafka-consumer"),
		readers:  make(map[string]MessageReader),
		handlers: make(map[string]map[string]EventHandler),
	}
	c.newReader = func(topic string) MessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        config.Brokers,
			GroupID:        config.ConsumerGroup,
			Topic:          topic,
			MinBytes:       config.MinBytes,
			MaxBytes:       config.MaxBytes,
			MaxWait:        config.MaxWait,
			CommitInterval: config.CommitInterval,
		})
	}
	return c
}

// WithReaderFactory replaces how readers are opened
func (c *Consumer) WithReaderFactory(f ReaderFactory) *Consumer {
	c.newReader = f
	return c
}

// Subscribe registers a handler for one event type on a topic
func (c *Consumer) Subscribe(topic, eventType string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[topic]; !ok {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

// Start consumes all subscribed topics until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			c.consumeTopic(ctx, topic)
		}(topic)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) reader(topic string) MessageReader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.readers[topic]; ok {
		return r
	}
	r := c.newReader(topic)
	c.readers[topic] = r
	return r
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	reader := c.reader(topic)
	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.WithError(err).Error("Error fetching message", "topic", topic)
			continue
		}

		if c.process(ctx, topic, msg) {
			if err := reader.CommitMessages(ctx, msg); err != nil {
				c.logger.WithError(err).Error("Error committing message", "topic", topic)
			}
		}
	}
}

// process handles one message and reports whether its offset should be
// committed. Unparseable and poison messages are committed; other handler
// failures are left uncommitted for redelivery.
func (c *Consumer) process(ctx context.Context, topic string, msg kafka.Message) bool {
	event, err := parseMessage(msg)
	if err != nil {
		c.logger.WithError(err).Error("Error parsing message", "topic", topic, "offset", msg.Offset)
		c.metrics.RecordKafkaConsume(topic, "unknown", false)
		return true
	}

	ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
	c.logger.KafkaConsume(ctx, topic, event.Type, msg.Partition, msg.Offset)

	err = c.dispatch(ctx, topic, event)
	c.metrics.RecordKafkaConsume(topic, event.Type, err == nil)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrPoisonMessage):
		c.logger.WithError(err).Warn("Skipping poison message", "topic", topic, "eventId", event.ID)
		return true
	default:
		c.logger.WithError(err).Error("Error handling event", "topic", topic, "eventType", event.Type, "eventId", event.ID)
		return false
	}
}

func parseMessage(msg kafka.Message) (*cloudevents.CloudEvent, error) {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case headerCorrelationID:
			event.CorrelationID = string(h.Value)
		case headerUnitID:
			event.UnitID = string(h.Value)
		case headerTraceParent:
			event.TraceParent = string(h.Value)
		case headerTraceState:
			event.TraceState = string(h.Value)
		}
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Consumer) dispatch(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	c.mu.Lock()
	handlers := c.handlers[topic]
	handler, ok := handlers[event.Type]
	if !ok {
		handler, ok = handlers["*"]
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("No handler found for event type", "topic", topic, "eventType", event.Type)
		return nil
	}
	return handler(ctx, event)
}

// Close closes all readers
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for topic, r := range c.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader for topic %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
