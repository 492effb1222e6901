package outbox

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
)

type memoryRepo struct {
	mu        sync.Mutex
	events    []*OutboxEvent
	published map[string]bool
	retries   map[string]string
}

func newMemoryRepo(events ...*OutboxEvent) *memoryRepo {
	return &memoryRepo{events: events, published: map[string]bool{}, retries: map[string]string{}}
}

func (r *memoryRepo) SaveAll(_ context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *memoryRepo) FindUnpublished(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range r.events {
		if !r.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkPublished(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[id] = true
	return nil
}

func (r *memoryRepo) IncrementRetry(_ context.Context, id, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[id] = msg
	return nil
}

type stubPublisher struct {
	failTypes map[string]bool
	sent      []*cloudevents.CloudEvent
	topics    []string
}

func (p *stubPublisher) PublishEvent(_ context.Context, topic string, e *cloudevents.CloudEvent) error {
	if p.failTypes[e.Type] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, e)
	p.topics = append(p.topics, topic)
	return nil
}

func outboxEvent(t *testing.T, eventType string) *OutboxEvent {
	t.Helper()
	ce, err := cloudevents.NewEventFactory(cloudevents.SourceProgress).
		CreateEvent(context.Background(), eventType, "PO-1", map[string]string{"k": "v"})
	require.NoError(t, err)
	e, err := NewOutboxEventFromCloudEvent("PO-1", "mes.progress.events", ce)
	require.NoError(t, err)
	return e
}

func TestProcessBatch(t *testing.T) {
	ok := outboxEvent(t, cloudevents.ScanRecorded)
	bad := outboxEvent(t, cloudevents.ScanUndone)
	repo := newMemoryRepo(ok, bad)
	producer := &stubPublisher{failTypes: map[string]bool{cloudevents.ScanUndone: true}}
	logger := logging.New(&logging.Config{Level: logging.LevelError, Output: io.Discard})

	p := NewPublisher(repo, producer, logger, nil, nil)
	p.ProcessBatch(context.Background())

	require.Len(t, producer.sent, 1)
	assert.Equal(t, ok.EventType, producer.sent[0].Type)
	assert.Equal(t, "mes.progress.events", producer.topics[0])
	assert.True(t, repo.published[ok.ID])
	assert.False(t, repo.published[bad.ID])
	assert.Contains(t, repo.retries[bad.ID], "broker unavailable")

	published, failed := p.Stats()
	assert.Equal(t, 1, published)
	assert.Equal(t, 1, failed)
}

func TestPublisherStartStop(t *testing.T) {
	logger := logging.New(&logging.Config{Level: logging.LevelError, Output: io.Discard})
	p := NewPublisher(newMemoryRepo(), &stubPublisher{}, logger, nil, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "second start rejected")
	require.NoError(t, p.Stop())
	assert.Error(t, p.Stop())
}

func TestOutboxEventRetryState(t *testing.T) {
	e := outboxEvent(t, cloudevents.TaskClaimed)
	assert.True(t, e.ShouldRetry())

	e.RetryCount = e.MaxRetries
	assert.False(t, e.ShouldRetry())

	ce, err := e.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, cloudevents.TaskClaimed, ce.Type)
	assert.Equal(t, "PO-1", ce.Subject)
}
