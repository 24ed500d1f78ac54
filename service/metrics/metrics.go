package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Mining Metrics
	miningDuration   *prometheus.HistogramVec
	miningIterations *prometheus.HistogramVec

	// Ledger Write Metrics
	transactionsAppendedTotal *prometheus.CounterVec
	appendRetriesTotal        *prometheus.CounterVec
	appendDuration            *prometheus.HistogramVec

	// Verification Metrics
	chainVerificationsTotal *prometheus.CounterVec
	chainBrokenLinks        *prometheus.GaugeVec

	// Anomaly Metrics
	anomaliesDetectedTotal *prometheus.CounterVec
	anomalySweepsTotal     *prometheus.CounterVec

	// Audit Workflow Metrics
	auditWorkflowDuration        *prometheus.HistogramVec
	auditWorkflowExecutionsTotal *prometheus.CounterVec
	auditActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Mining Metrics
		miningDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mining_duration_seconds",
				Help:    "Duration of the nonce search per transaction in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"status"},
		),
		miningIterations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mining_iterations",
				Help:    "Number of hash attempts per mined transaction",
				Buckets: []float64{10, 100, 1000, 10000, 50000, 100000},
			},
			[]string{"status"},
		),

		// Ledger Write Metrics
		transactionsAppendedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_appended_total",
				Help: "Total number of transactions appended to the chain",
			},
			[]string{"transaction_type", "assurance"},
		),
		appendRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_append_retries_total",
				Help: "Total number of append retries after block number conflicts",
			},
			[]string{"reason"},
		),
		appendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_append_duration_seconds",
				Help:    "End-to-end duration of createTransaction in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"transaction_type", "status"},
		),

		// Verification Metrics
		chainVerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_verifications_total",
				Help: "Total number of chain verification runs by scope and result",
			},
			[]string{"scope", "result"},
		),
		chainBrokenLinks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chain_broken_links",
				Help: "Broken links reported by the most recent verification run",
			},
			[]string{"scope"},
		),

		// Anomaly Metrics
		anomaliesDetectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anomalies_detected_total",
				Help: "Total number of anomalies detected by type and severity",
			},
			[]string{"batch_id", "type", "severity"},
		),
		anomalySweepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anomaly_sweeps_total",
				Help: "Total number of batch anomaly sweeps by resulting risk level",
			},
			[]string{"risk_level"},
		),

		// Audit Workflow Metrics
		auditWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audit_workflow_duration_seconds",
				Help:    "Duration of ledger audit workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		auditWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_workflow_executions_total",
				Help: "Total number of ledger audit workflow executions",
			},
			[]string{"status"},
		),
		auditActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audit_activity_duration_seconds",
				Help:    "Duration of audit workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Mining metric helpers

// RecordMining records one nonce search. Status is "mined" when the
// difficulty target was met, "exhausted" when the iteration cap tripped.
func (m *Metrics) RecordMining(exhausted bool, iterations int, duration float64) {
	status := "mined"
	if exhausted {
		status = "exhausted"
	}
	m.miningDuration.WithLabelValues(status).Observe(duration)
	m.miningIterations.WithLabelValues(status).Observe(float64(iterations))
}

// Ledger write metric helpers

// RecordTransactionAppended records a successful chain append.
func (m *Metrics) RecordTransactionAppended(transactionType string, mined bool) {
	assurance := "full"
	if !mined {
		assurance = "lower"
	}
	m.transactionsAppendedTotal.WithLabelValues(transactionType, assurance).Inc()
}

// RecordAppendRetry records one retried append.
func (m *Metrics) RecordAppendRetry(reason string) {
	m.appendRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordAppendDuration records the end-to-end createTransaction duration.
func (m *Metrics) RecordAppendDuration(transactionType, status string, duration float64) {
	m.appendDuration.WithLabelValues(transactionType, status).Observe(duration)
}

// Verification metric helpers

// RecordChainVerification records a verification run and the number of
// broken links it reported. Scope is "global" or "batch".
func (m *Metrics) RecordChainVerification(scope string, valid bool, brokenLinks int) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.chainVerificationsTotal.WithLabelValues(scope, result).Inc()
	m.chainBrokenLinks.WithLabelValues(scope).Set(float64(brokenLinks))
}

// Anomaly metric helpers

// RecordAnomaly records one detected anomaly.
func (m *Metrics) RecordAnomaly(batchID, anomalyType, severity string) {
	m.anomaliesDetectedTotal.WithLabelValues(batchID, anomalyType, severity).Inc()
}

// RecordAnomalySweep records a completed batch sweep.
func (m *Metrics) RecordAnomalySweep(riskLevel string) {
	m.anomalySweepsTotal.WithLabelValues(riskLevel).Inc()
}

// Audit workflow metric helpers

// RecordWorkflowDuration records audit workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.auditWorkflowDuration.WithLabelValues(status).Observe(duration)
	m.auditWorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.auditActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
