package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const metricsPath = "/metrics"

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Task pipeline metrics
	TasksProcessedTotal    *prometheus.CounterVec
	TaskProcessingDuration *prometheus.HistogramVec
	TasksInFlight          prometheus.Gauge
	StageDuration          *prometheus.HistogramVec

	// Transcription service metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionLatency  prometheus.Histogram

	// Search index metrics
	IndexOperations *prometheus.CounterVec

	// AMQP metrics
	AMQPConsumedMessages  *prometheus.CounterVec
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionErrors  *prometheus.CounterVec
	AMQPReconnectAttempts *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		// Initialize task pipeline metrics
		TasksProcessedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callai_tasks_processed_total",
				Help: "Total number of tasks taken through the pipeline",
			},
			[]string{"status"},
		)

		TaskProcessingDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callai_task_processing_duration_seconds",
				Help:    "End-to-end processing time per task",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
			},
			[]string{"status"},
		)

		TasksInFlight = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callai_tasks_in_flight",
				Help: "Number of tasks currently being processed",
			},
		)

		StageDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callai_pipeline_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4 minutes
			},
			[]string{"stage"},
		)

		// Initialize transcription service metrics
		TranscriptionRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callai_transcription_requests_total",
				Help: "Total number of requests to the recognition service",
			},
			[]string{"status"},
		)

		TranscriptionLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callai_transcription_latency_seconds",
				Help:    "Latency of recognition service calls",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~8 minutes
			},
		)

		// Initialize search index metrics
		IndexOperations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callai_index_operations_total",
				Help: "Total number of search index operations",
			},
			[]string{"operation", "status"},
		)

		// Initialize AMQP metrics
		AMQPConsumedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callai_amqp_consumed_messages_total",
				Help: "Total number of messages consumed from AMQP",
			},
			[]string{"queue", "status"},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callai_amqp_published_messages_total",
				Help: "Total number of messages published to AMQP",
			},
			[]string{"queue", "status"},
		)

		AMQPConnectionErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callai_amqp_connection_errors_total",
				Help: "Total number of AMQP connection errors",
			},
			[]string{"error_type"},
		)

		AMQPReconnectAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callai_amqp_reconnect_attempts_total",
				Help: "Total number of AMQP reconnection attempts",
			},
			[]string{"status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callai_amqp_connection_status",
				Help: "Status of AMQP connection (1 = connected, 0 = disconnected)",
			},
		)

		// Register all metrics
		registry.MustRegister(
			// Task pipeline metrics
			TasksProcessedTotal,
			TaskProcessingDuration,
			TasksInFlight,
			StageDuration,

			// Transcription service metrics
			TranscriptionRequests,
			TranscriptionLatency,

			// Search index metrics
			IndexOperations,

			// AMQP metrics
			AMQPConsumedMessages,
			AMQPPublishedMessages,
			AMQPConnectionErrors,
			AMQPReconnectAttempts,
			AMQPConnectionStatus,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	handler := promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
	mux.Handle(metricsPath, handler)
}
