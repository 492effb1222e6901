package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	"github.com/fashion-supplychain/progress-service/pkg/kafka"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
)

// ConsumerConfig scopes deduplication to one topic and consumer group
type ConsumerConfig struct {
	ServiceName     string
	Topic           string
	ConsumerGroup   string
	Repository      MessageRepository
	RetentionPeriod time.Duration
	Logger          *logging.Logger
}

// DeduplicatingHandler skips events whose id was already handled and records
// the id after a successful run. Failed runs are not recorded so they retry.
func DeduplicatingHandler(config *ConsumerConfig, handler kafka.EventHandler) kafka.EventHandler {
	retention := config.RetentionPeriod
	if retention <= 0 {
		retention = DefaultRetention
	}

	return func(ctx context.Context, event *cloudevents.CloudEvent) error {
		log := config.Logger.WithContext(ctx).With(
			"messageId", event.ID,
			"topic", config.Topic,
			"eventType", event.Type,
		)

		processed, err := config.Repository.IsProcessed(ctx, event.ID, config.Topic, config.ConsumerGroup)
		if err != nil {
			log.Error("Failed to check if message is processed", "error", err)
			return err
		}
		if processed {
			log.Info("Duplicate message skipped")
			return nil
		}

		if err := handler(ctx, event); err != nil {
			return err
		}

		now := time.Now().UTC()
		err = config.Repository.MarkProcessed(ctx, &ProcessedMessage{
			MessageID:     event.ID,
			Topic:         config.Topic,
			EventType:     event.Type,
			ConsumerGroup: config.ConsumerGroup,
			ServiceID:     config.ServiceName,
			ProcessedAt:   now,
			ExpiresAt:     now.Add(retention),
			CorrelationID: event.CorrelationID,
		})
		switch {
		case errors.Is(err, ErrMessageAlreadyProcessed):
			log.Warn("Message was processed concurrently")
			return nil
		case err != nil:
			log.Error("Failed to mark message as processed", "error", err)
			return err
		}
		return nil
	}
}
