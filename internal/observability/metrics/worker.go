package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const namespace = "docintel"

// WorkerMetrics covers the processing pipeline. It implements
// ports.ProcessingObserver.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal     *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	processInFlight  prometheus.Gauge
	queueLag         prometheus.Histogram
	strategyTotal    *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
	llmTokensTotal   *prometheus.CounterVec
	llmCostTotal     *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	circuitOpen      *prometheus.GaugeVec
	deadLetterTotal  prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "document_process_total",
			Help:        "Total processed documents by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "document_process_duration_seconds",
			Help:        "Document processing duration in seconds by status.",
			Buckets:     []float64{1, 2, 5, 10, 20, 30, 60, 90, 120, 180, 300},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "document_process_in_flight",
			Help:        "Number of in-flight document processing tasks.",
			ConstLabels: constLabels,
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between enqueue and processing start.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
	)
	strategyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "strategy",
			Name:        "runs_total",
			Help:        "Summarization strategy runs by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"strategy", "status"},
	)
	strategyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "strategy",
			Name:        "duration_seconds",
			Help:        "Summary generation time per strategy.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
			ConstLabels: constLabels,
		},
		[]string{"strategy", "status"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "llm",
			Name:        "tokens_total",
			Help:        "Provider-reported token usage by direction.",
			ConstLabels: constLabels,
		},
		[]string{"model", "operation", "direction"},
	)
	llmCostTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "llm",
			Name:        "cost_usd_total",
			Help:        "Estimated provider spend in USD.",
			ConstLabels: constLabels,
		},
		[]string{"model", "operation"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "resilience",
			Name:        "retries_total",
			Help:        "Retried calls by operation.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	circuitOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "resilience",
			Name:        "circuit_open",
			Help:        "1 while the breaker for an operation is open.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	deadLetterTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "dead_letter_total",
			Help:        "Tasks handed to the dead letter subject.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		queueLag,
		strategyTotal,
		strategyDuration,
		llmTokensTotal,
		llmCostTotal,
		retriesTotal,
		circuitOpen,
		deadLetterTotal,
	)

	return &WorkerMetrics{
		registry:         registry,
		processTotal:     processTotal,
		processDuration:  processDuration,
		processInFlight:  processInFlight,
		queueLag:         queueLag,
		strategyTotal:    strategyTotal,
		strategyDuration: strategyDuration,
		llmTokensTotal:   llmTokensTotal,
		llmCostTotal:     llmCostTotal,
		retriesTotal:     retriesTotal,
		circuitOpen:      circuitOpen,
		deadLetterTotal:  deadLetterTotal,
	}
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(status).Inc()
	m.processDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveStrategy(strategy domain.Strategy, status domain.SummaryStatus, elapsed time.Duration) {
	m.strategyTotal.WithLabelValues(string(strategy), string(status)).Inc()
	m.strategyDuration.WithLabelValues(string(strategy), string(status)).Observe(elapsed.Seconds())
}

func (m *WorkerMetrics) ObserveUsage(modelID, operation string, usage domain.TokenUsage) {
	if modelID == "" {
		modelID = "unknown"
	}
	if usage.InputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(modelID, operation, "in").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(modelID, operation, "out").Add(float64(usage.OutputTokens))
	}
	if usage.EstimatedCostUSD > 0 {
		m.llmCostTotal.WithLabelValues(modelID, operation).Add(usage.EstimatedCostUSD)
	}
}

// RecordRetry matches resilience.RetryHook.
func (m *WorkerMetrics) RecordRetry(operation string, _ int, _ error) {
	m.retriesTotal.WithLabelValues(operation).Inc()
}

// SetCircuitOpen matches resilience.CircuitHook.
func (m *WorkerMetrics) SetCircuitOpen(operation string, open bool) {
	value := 0.0
	if open {
		value = 1
	}
	m.circuitOpen.WithLabelValues(operation).Set(value)
}

func (m *WorkerMetrics) RecordDeadLetter() {
	m.deadLetterTotal.Inc()
}
