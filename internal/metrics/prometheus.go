package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Emitter metrics
	envelopesEmittedTotal *prometheus.CounterVec
	envelopesDroppedTotal prometheus.Counter

	// Dispatcher metrics
	deliveryAttemptsTotal *prometheus.CounterVec
	deliveryOutcomesTotal *prometheus.CounterVec
	sinkDuration          prometheus.Histogram
	retriesScheduledTotal prometheus.Counter
	eventsInFlight        prometheus.Gauge

	// EventBus metrics
	bufferSize      prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Reconciler metrics
	staleRecords prometheus.Gauge
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// Metrics that fail to register are logged and silently degraded.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initEmitterMetrics(reg)
	s.initDispatcherMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initReconcilerMetrics(reg)
	return s
}

func (s *PrometheusSink) initEmitterMetrics(reg prometheus.Registerer) {
	s.envelopesEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_emitter_envelopes_emitted_total",
		Help: "Total number of envelopes handed off to the dispatcher.",
	}, []string{"operation"})
	s.envelopesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookrelay_emitter_envelopes_dropped_total",
		Help: "Total number of envelopes dropped at hand-off (buffer full).",
	})

	s.register(reg, s.envelopesEmittedTotal, "hookrelay_emitter_envelopes_emitted_total")
	s.register(reg, s.envelopesDroppedTotal, "hookrelay_emitter_envelopes_dropped_total")
}

func (s *PrometheusSink) initDispatcherMetrics(reg prometheus.Registerer) {
	s.deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_dispatcher_delivery_attempts_total",
		Help: "Total number of sink delivery attempts.",
	}, []string{"attempt", "status_class"})

	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_dispatcher_delivery_outcomes_total",
		Help: "Total number of resolved attempt outcomes.",
	}, []string{"outcome"})

	s.sinkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hookrelay_dispatcher_sink_duration_seconds",
		Help:    "Sink request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.retriesScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookrelay_dispatcher_retries_scheduled_total",
		Help: "Total number of retry attempts scheduled after transient failures.",
	})

	s.eventsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookrelay_dispatcher_events_in_flight",
		Help: "Number of envelopes currently being dispatched.",
	})

	s.register(reg, s.deliveryAttemptsTotal, "hookrelay_dispatcher_delivery_attempts_total")
	s.register(reg, s.deliveryOutcomesTotal, "hookrelay_dispatcher_delivery_outcomes_total")
	s.register(reg, s.sinkDuration, "hookrelay_dispatcher_sink_duration_seconds")
	s.register(reg, s.retriesScheduledTotal, "hookrelay_dispatcher_retries_scheduled_total")
	s.register(reg, s.eventsInFlight, "hookrelay_dispatcher_events_in_flight")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookrelay_eventbus_buffer_size",
		Help: "Current number of envelopes in the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookrelay_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full or cancelled).",
	})

	s.register(reg, s.bufferSize, "hookrelay_eventbus_buffer_size")
	s.register(reg, s.emitErrorsTotal, "hookrelay_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initReconcilerMetrics(reg prometheus.Registerer) {
	s.staleRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookrelay_reconciler_stale_records",
		Help: "Number of stale records found in the last reconciliation cycle.",
	})

	s.register(reg, s.staleRecords, "hookrelay_reconciler_stale_records")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Emitter metrics implementation

func (s *PrometheusSink) EnvelopeEmitted(operation string) {
	s.envelopesEmittedTotal.WithLabelValues(operation).Inc()
}

func (s *PrometheusSink) EnvelopeDropped() {
	s.envelopesDroppedTotal.Inc()
}

// Dispatcher metrics implementation

func (s *PrometheusSink) DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.deliveryAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.sinkDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) RetryScheduled() {
	s.retriesScheduledTotal.Inc()
}

func (s *PrometheusSink) EventsInFlightIncr() {
	s.eventsInFlight.Inc()
}

func (s *PrometheusSink) EventsInFlightDecr() {
	s.eventsInFlight.Dec()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Reconciler metrics implementation

func (s *PrometheusSink) StaleRecordsUpdate(count int) {
	s.staleRecords.Set(float64(count))
}
