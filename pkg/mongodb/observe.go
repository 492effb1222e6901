package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fashion-supplychain/progress-service/pkg/logging"
	"github.com/fashion-supplychain/progress-service/pkg/metrics"
)

// Observer records a span, a metric sample and a debug log line for each
// repository operation. A nil *Observer only runs the operation.
type Observer struct {
	database string
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewObserver creates an observer for the given database
func NewObserver(database string, m *metrics.Metrics, logger *logging.Logger) *Observer {
	return &Observer{
		database: database,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("mongodb"),
	}
}

// Observe wraps one collection operation. ErrNoDocuments counts as success.
func (o *Observer) Observe(ctx context.Context, collection, operation string, fn func(ctx context.Context) error) error {
	if o == nil {
		return fn(ctx)
	}

	ctx, span := o.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.name", o.database),
			attribute.String("db.mongodb.collection", collection),
			attribute.String("db.operation", operation),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	failed := err != nil && !errors.Is(err, mongo.ErrNoDocuments)
	if failed {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.metrics.RecordMongoDBOperation(collection, operation, !failed, duration)
	if o.logger != nil {
		var logged error
		if failed {
			logged = err
		}
		o.logger.DatabaseQuery(ctx, collection, operation, duration, logged)
	}
	return err
}
