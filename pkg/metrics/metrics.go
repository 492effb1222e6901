package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Stage tracking metrics
	StageResolutions      *prometheus.CounterVec
	ResolutionDuration    *prometheus.HistogramVec
	ConservativeFallbacks *prometheus.CounterVec
	ScansRecorded         *prometheus.CounterVec
	UndoDecisions         *prometheus.CounterVec
	ClaimDecisions        *prometheus.CounterVec
	WarehousingPages      *prometheus.CounterVec
	CatalogCacheLookups   *prometheus.CounterVec

	// Outbox metrics
	OutboxPublished *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "mes",
	}
}

var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// New creates and registers all collectors on a private registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help}, append([]string{"service"}, labels...))
		registry.MustRegister(c)
		return c
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: name, Help: help, Buckets: latencyBuckets}, append([]string{"service"}, labels...))
		registry.MustRegister(h)
		return h
	}

	m := &Metrics{serviceName: config.ServiceName, registry: registry}

	m.HTTPRequestsTotal = counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status")
	m.HTTPRequestDuration = histogram("http_request_duration_seconds", "HTTP request duration in seconds", "method", "path")
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	registry.MustRegister(m.HTTPRequestsInFlight)

	m.KafkaEventsPublished = counter("kafka_events_published_total", "Total number of Kafka events published", "topic", "event_type", "status")
	m.KafkaEventsConsumed = counter("kafka_events_consumed_total", "Total number of Kafka events consumed", "topic", "event_type", "status")
	m.KafkaPublishDuration = histogram("kafka_publish_duration_seconds", "Kafka publish duration in seconds", "topic")

	m.MongoDBOperations = counter("mongodb_operations_total", "Total number of MongoDB operations", "collection", "operation", "status")
	m.MongoDBOperationDuration = histogram("mongodb_operation_duration_seconds", "MongoDB operation duration in seconds", "collection", "operation")

	m.StageResolutions = counter("stage_resolutions_total", "Stage resolutions by resolved stage and outcome", "stage", "outcome")
	m.ResolutionDuration = histogram("stage_resolution_duration_seconds", "Time to resolve a unit's stage including fetches", "outcome")
	m.ConservativeFallbacks = counter("conservative_fallbacks_total", "Fetch failures resolved toward not complete", "source")
	m.ScansRecorded = counter("scans_recorded_total", "Scan submissions by category, outcome and duplicate flag", "category", "outcome", "duplicate")
	m.UndoDecisions = counter("undo_decisions_total", "Undo eligibility decisions by reason", "reason")
	m.ClaimDecisions = counter("claim_decisions_total", "Task claim decisions by action", "action")
	m.WarehousingPages = counter("warehousing_pages_fetched_total", "Warehousing record pages fetched", "status")
	m.CatalogCacheLookups = counter("catalog_cache_lookups_total", "Stage catalog cache lookups", "result")

	m.OutboxPublished = counter("outbox_events_published_total", "Outbox events forwarded to Kafka", "event_type", "status")

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service", "name"})
	registry.MustRegister(m.CircuitBreakerState)
	m.CircuitBreakerTrips = counter("circuit_breaker_trips_total", "Total number of circuit breaker trips", "name")

	return m
}

// Handler returns the HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Inc()
	}
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Dec()
	}
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a consumed Kafka event
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	if m == nil {
		return
	}
	m.KafkaEventsConsumed.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// RecordStageResolution records one resolution. outcome is one of
// "resolved", "completed", "undetermined" or "missing_catalog".
func (m *Metrics) RecordStageResolution(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageResolutions.WithLabelValues(m.serviceName, stage, outcome).Inc()
	m.ResolutionDuration.WithLabelValues(m.serviceName, outcome).Observe(duration.Seconds())
}

// RecordConservativeFallback records a fetch failure that forced a fail-closed answer
func (m *Metrics) RecordConservativeFallback(source string) {
	if m != nil {
		m.ConservativeFallbacks.WithLabelValues(m.serviceName, source).Inc()
	}
}

// RecordScan records a scan submission
func (m *Metrics) RecordScan(category, outcome string, duplicate bool) {
	if m != nil {
		m.ScansRecorded.WithLabelValues(m.serviceName, category, outcome, strconv.FormatBool(duplicate)).Inc()
	}
}

// RecordUndoDecision records an undo eligibility decision
func (m *Metrics) RecordUndoDecision(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "ALLOWED"
	}
	m.UndoDecisions.WithLabelValues(m.serviceName, reason).Inc()
}

// RecordClaimDecision records a claim decision
func (m *Metrics) RecordClaimDecision(action string) {
	if m != nil {
		m.ClaimDecisions.WithLabelValues(m.serviceName, action).Inc()
	}
}

// RecordWarehousingPage records a warehousing page fetch
func (m *Metrics) RecordWarehousingPage(success bool) {
	if m != nil {
		m.WarehousingPages.WithLabelValues(m.serviceName, status(success)).Inc()
	}
}

// RecordCatalogCache records a catalog cache hit or miss
func (m *Metrics) RecordCatalogCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CatalogCacheLookups.WithLabelValues(m.serviceName, result).Inc()
}

// RecordOutboxPublish records an outbox forward attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	if m != nil {
		m.OutboxPublished.WithLabelValues(m.serviceName, eventType, status(success)).Inc()
	}
}

// SetCircuitBreakerState sets circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
	}
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m != nil {
		m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
	}
}
