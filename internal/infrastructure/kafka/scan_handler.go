package kafka

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fashion-supplychain/progress-service/internal/application"
	"github.com/fashion-supplychain/progress-service/pkg/cloudevents"
	"github.com/fashion-supplychain/progress-service/pkg/contracts"
	"github.com/fashion-supplychain/progress-service/pkg/errors"
	"github.com/fashion-supplychain/progress-service/pkg/idempotency"
	"github.com/fashion-supplychain/progress-service/pkg/kafka"
	"github.com/fashion-supplychain/progress-service/pkg/logging"
	"github.com/fashion-supplychain/progress-service/pkg/tracing"
)

const tracerName = "progress-service/kafka"

// ScanRecorder is the use case scans are handed to
type ScanRecorder interface {
	RecordScan(ctx context.Context, cmd application.RecordScanCommand) (*application.RecordScanResultDTO, error)
}

// ScanHandler consumes mes.scan.submitted events
type ScanHandler struct {
	recorder  ScanRecorder
	validator *contracts.Validator
	logger    *logging.Logger
}

// NewScanHandler creates a ScanHandler
func NewScanHandler(recorder ScanRecorder, validator *contracts.Validator, logger *logging.Logger) *ScanHandler {
	return &ScanHandler{
		recorder:  recorder,
		validator: validator,
		logger:    logger.WithComponent("scan-consumer"),
	}
}

// Register subscribes the handler, deduplicated by event id when dedup is set
func (h *ScanHandler) Register(consumer *kafka.Consumer, dedup *idempotency.ConsumerConfig) {
	var handler kafka.EventHandler = h.Handle
	if dedup != nil {
		dedup.Topic = kafka.Topics.ScansInbound
		handler = idempotency.DeduplicatingHandler(dedup, handler)
	}
	consumer.Subscribe(kafka.Topics.ScansInbound, cloudevents.ScanSubmitted, handler)
}

// Handle validates, decodes and records one scan. Payloads that can never
// succeed are reported as poison so their offset is committed.
func (h *ScanHandler) Handle(ctx context.Context, event *cloudevents.CloudEvent) (err error) {
	ctx = tracing.ContextWithRemoteParent(ctx, event.TraceParent, event.TraceState)
	ctx, span := tracing.StartSpan(ctx, tracerName, "consume "+event.Type,
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.message.id", event.ID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := h.validator.ValidateScan(event.Data); err != nil {
		return fmt.Errorf("%w: %v", kafka.ErrPoisonMessage, err)
	}
	var cmd application.RecordScanCommand
	if err := event.DecodeData(&cmd); err != nil {
		return fmt.Errorf("%w: %v", kafka.ErrPoisonMessage, err)
	}

	result, err := h.recorder.RecordScan(ctx, cmd)
	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok && isPermanent(appErr) {
			h.logger.WithContext(ctx).Warn("Rejected scan",
				"requestId", cmd.RequestID,
				"unitId", cmd.UnitID,
				"code", appErr.Code,
				"reason", appErr.Message,
			)
			return fmt.Errorf("%w: %v", kafka.ErrPoisonMessage, err)
		}
		return err
	}

	h.logger.WithContext(ctx).Debug("Consumed scan",
		"requestId", cmd.RequestID,
		"scanId", result.Scan.ID,
		"duplicate", result.Duplicate,
	)
	return nil
}

// isPermanent reports client errors that a redelivery cannot fix
func isPermanent(appErr *errors.AppError) bool {
	switch appErr.HTTPStatus {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500
}
