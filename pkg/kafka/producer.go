package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
	"github.com/fashion-supplychain/progress-service/pkg/metrics"
)

const (
	headerCorrelationID = "ce-mescorrelationid"
	headerUnitID        = "ce-mesunitid"
	headerTraceParent   = "ce-traceparent"
	headerTraceState    = "ce-tracestate"
)

// MessageWriter is the subset of *kafka.Writer the producer needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes CloudEvents with one writer per topic
type Producer struct {
	config    *Config
	newWriter func(topic string) MessageWriter
	metrics   *metrics.Metrics
	logger    *logging.Logger

	mu      sync.Mutex
	writers map[string]MessageWriter
}

// NewProducer creates a producer backed by kafka-go writers
func NewProducer(config *Config, m *metrics.Metrics, logger *logging.Logger) *Producer {
	p := &Producer{
		config:  config,
		metrics: m,
		logger:  logger,
		writers: make(map[string]MessageWriter),
	}
	p.newWriter = func(topic string) MessageWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    config.BatchSize,
			BatchTimeout: config.BatchTimeout,
			RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		}
	}
	return p
}

// WithWriterFactory replaces how writers are opened
func (p *Producer) WithWriterFactory(f func(topic string) MessageWriter) *Producer {
	p.newWriter = f
	return p
}

func (p *Producer) writer(topic string) MessageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

// ToMessage encodes an event with CloudEvents binary-mode headers, keyed by subject
func ToMessage(event *cloudevents.CloudEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Subject),
		Value: data,
		Time:  event.Time,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
			{Key: "ce-type", Value: []byte(event.Type)},
			{Key: "ce-source", Value: []byte(event.Source)},
			{Key: "ce-id", Value: []byte(event.ID)},
			{Key: "ce-time", Value: []byte(event.Time.Format(time.RFC3339Nano))},
			{Key: "content-type", Value: []byte(event.DataContentType)},
		},
	}
	for _, h := range []struct{ key, value string }{
		{headerCorrelationID, event.CorrelationID},
		{headerUnitID, event.UnitID},
		{headerTraceParent, event.TraceParent},
		{headerTraceState, event.TraceState},
	} {
		if h.value != "" {
			msg.Headers = append(msg.Headers, kafka.Header{Key: h.key, Value: []byte(h.value)})
		}
	}
	return msg, nil
}

// PublishEvent publishes a CloudEvent to topic
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	msg, err := ToMessage(event)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.writer(topic).WriteMessages(ctx, msg)
	duration := time.Since(start)

	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, duration)
	}
	if err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}
	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer for topic %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
