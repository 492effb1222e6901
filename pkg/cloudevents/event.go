package cloudevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/fashion-supplychain/progress-service/pkg/logging"
)

// Event types handled or emitted by the progress service
const (
	ScanSubmitted = "mes.scan.submitted"
	ScanRecorded  = "mes.progress.scan-recorded"
	ScanUndone    = "mes.progress.scan-undone"
	TaskClaimed   = "mes.progress.task-claimed"
)

// SourceProgress is the CloudEvents source of this service
const SourceProgress = "/mes/progress-service"

// CloudEvent is a CloudEvents v1.0 envelope with MES extensions
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`

	CorrelationID string `json:"mescorrelationid,omitempty"`
	UnitID        string `json:"mesunitid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
	TraceState    string `json:"tracestate,omitempty"`
}

// DecodeData unmarshals the event payload into v
func (e *CloudEvent) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.ID)
	}
	return json.Unmarshal(e.Data, v)
}

// Validate checks the required CloudEvents attributes
func (e *CloudEvent) Validate() error {
	switch {
	case e.SpecVersion != "1.0":
		return fmt.Errorf("unsupported specversion %q", e.SpecVersion)
	case e.ID == "":
		return fmt.Errorf("event id is required")
	case e.Type == "":
		return fmt.Errorf("event type is required")
	case e.Source == "":
		return fmt.Errorf("event source is required")
	}
	return nil
}

// EventFactory creates CloudEvents for one source
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent builds an event around data, carrying the correlation id and
// W3C trace context found in ctx
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any) (*CloudEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	event := &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.NewString(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            payload,
		UnitID:          subject,
	}
	if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
		event.CorrelationID = v
	}

	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	event.TraceParent = carrier.Get("traceparent")
	event.TraceState = carrier.Get("tracestate")
	return event, nil
}
