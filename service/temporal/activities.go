package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Payal2904/drug-verification-system-sub000/service/ledger"
	"github.com/Payal2904/drug-verification-system-sub000/service/metrics"
	natspkg "github.com/Payal2904/drug-verification-system-sub000/service/nats"
)

// AuditLedgerInput contains the input parameters for a ledger audit run.
// Audits always cover the full chain and every batch, so there are no
// parameters yet.
type AuditLedgerInput struct{}

// AuditLedgerResult contains the outcome of one ledger audit run.
type AuditLedgerResult struct {
	AuditTime       time.Time `json:"audit_time"`
	ChainValid      bool      `json:"chain_valid"`
	TotalBlocks     int64     `json:"total_blocks"`
	BrokenLinks     int       `json:"broken_links"`
	BatchesAudited  int       `json:"batches_audited"`
	BatchesFailed   int       `json:"batches_failed"`
	BatchesFlagged  int       `json:"batches_flagged"`
	TotalAnomalies  int       `json:"total_anomalies"`
	HighRiskBatches []string  `json:"high_risk_batches,omitempty"`
	AlertsPublished int       `json:"alerts_published"`
	Error           *string   `json:"error,omitempty"`
}

// VerifyChainInput contains parameters for the VerifyChain activity.
// The scan always covers the full chain.
type VerifyChainInput struct{}

// VerifyChainResult contains the result of verifying the chain.
type VerifyChainResult struct {
	Verification *ledger.GlobalVerification `json:"verification"`
}

// ListBatchesInput contains parameters for the ListBatches activity.
type ListBatchesInput struct{}

// ListBatchesResult contains the batch IDs found in the ledger.
type ListBatchesResult struct {
	BatchIDs []string `json:"batch_ids"`
}

// DetectBatchAnomaliesInput contains parameters for the DetectBatchAnomalies activity.
type DetectBatchAnomaliesInput struct {
	BatchID string `json:"batch_id"`
}

// DetectBatchAnomaliesResult contains the anomaly sweep for one batch.
type DetectBatchAnomaliesResult struct {
	Report *ledger.AnomalyReport `json:"report"`
}

// PublishAnomalyAlertsInput contains parameters for the PublishAnomalyAlerts activity.
type PublishAnomalyAlertsInput struct {
	Reports []*ledger.AnomalyReport `json:"reports"`
}

// PublishAnomalyAlertsResult contains the result of publishing anomaly alerts.
type PublishAnomalyAlertsResult struct {
	Published int `json:"published"`
}

// RecordAuditSummaryInput contains parameters for the RecordAuditSummary activity.
type RecordAuditSummaryInput struct {
	StartedAt       time.Time `json:"started_at"`
	ChainValid      bool      `json:"chain_valid"`
	BrokenLinks     int       `json:"broken_links"`
	BatchesAudited  int       `json:"batches_audited"`
	BatchesFlagged  int       `json:"batches_flagged"`
	TotalAnomalies  int       `json:"total_anomalies"`
	HighRiskBatches []string  `json:"high_risk_batches,omitempty"`
}

// RecordAuditSummaryResult contains the classification of the audit run.
type RecordAuditSummaryResult struct {
	Status string `json:"status"`
}

// LedgerInterface defines the ledger operations needed by activities.
// This allows for easy mocking in tests.
type LedgerInterface interface {
	VerifyGlobalChain(ctx context.Context) (*ledger.GlobalVerification, error)
	ListBatchIDs(ctx context.Context) ([]string, error)
	DetectAnomalies(ctx context.Context, batchID string) (*ledger.AnomalyReport, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishAnomalies(ctx context.Context, alerts []*natspkg.AnomalyAlert) error
	PublishChainAlert(ctx context.Context, alert *natspkg.ChainAlert) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	ledger    LedgerInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If publisher is nil, alerts are skipped. If metrics is nil, no metrics
// will be recorded.
func NewActivities(
	ldgr LedgerInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		ledger:    ldgr,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// VerifyChain walks the full hash chain and reports any broken links.
// When the chain is broken it also publishes a chain alert to NATS so
// subscribers hear about it without polling the verify endpoint.
func (a *Activities) VerifyChain(ctx context.Context, input VerifyChainInput) (*VerifyChainResult, error) {
	if a.metrics != nil {
		defer metrics.Timer(time.Now(), func(d float64) {
			a.metrics.RecordActivityDuration("VerifyChain", d)
		})()
	}

	a.logger.DebugContext(ctx, "verifying ledger chain")

	verification, err := a.ledger.VerifyGlobalChain(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to verify ledger chain", "error", err)
		return nil, fmt.Errorf("failed to verify ledger chain: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordChainVerification("audit", verification.IsValid, len(verification.BrokenLinks))
	}

	if verification.IsValid {
		a.logger.InfoContext(ctx, "ledger chain verified",
			"total_blocks", verification.TotalBlocks,
		)
		return &VerifyChainResult{Verification: verification}, nil
	}

	a.logger.ErrorContext(ctx, "ledger chain verification failed",
		"total_blocks", verification.TotalBlocks,
		"broken_links", len(verification.BrokenLinks),
	)

	if a.publisher != nil {
		if err := a.publisher.PublishChainAlert(ctx, natspkg.FromVerification(verification)); err != nil {
			// The alert is best-effort - the verification result still stands
			a.logger.ErrorContext(ctx, "failed to publish chain alert", "error", err)
		}
	}

	return &VerifyChainResult{Verification: verification}, nil
}

// ListBatches returns every batch ID present in the ledger.
func (a *Activities) ListBatches(ctx context.Context, input ListBatchesInput) (*ListBatchesResult, error) {
	if a.metrics != nil {
		defer metrics.Timer(time.Now(), func(d float64) {
			a.metrics.RecordActivityDuration("ListBatches", d)
		})()
	}

	batchIDs, err := a.ledger.ListBatchIDs(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list batches", "error", err)
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	a.logger.DebugContext(ctx, "listed batches for audit", "count", len(batchIDs))

	return &ListBatchesResult{BatchIDs: batchIDs}, nil
}

// DetectBatchAnomalies sweeps one batch for supply-chain anomalies.
func (a *Activities) DetectBatchAnomalies(ctx context.Context, input DetectBatchAnomaliesInput) (*DetectBatchAnomaliesResult, error) {
	if a.metrics != nil {
		defer metrics.Timer(time.Now(), func(d float64) {
			a.metrics.RecordActivityDuration("DetectBatchAnomalies", d)
		})()
	}

	if input.BatchID == "" {
		return nil, fmt.Errorf("batch id is required")
	}

	a.logger.DebugContext(ctx, "sweeping batch for anomalies", "batch_id", input.BatchID)

	report, err := a.ledger.DetectAnomalies(ctx, input.BatchID)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to detect anomalies",
			"batch_id", input.BatchID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to detect anomalies for batch %s: %w", input.BatchID, err)
	}

	if a.metrics != nil {
		a.metrics.RecordAnomalySweep(string(report.RiskLevel))
		for _, anomaly := range report.Anomalies {
			a.metrics.RecordAnomaly(report.BatchID, string(anomaly.Type), string(anomaly.Severity))
		}
	}

	if report.AnomaliesDetected {
		a.logger.WarnContext(ctx, "batch anomalies detected",
			"batch_id", input.BatchID,
			"total_anomalies", report.TotalAnomalies,
			"risk_level", report.RiskLevel,
		)
	} else {
		a.logger.DebugContext(ctx, "batch is clean", "batch_id", input.BatchID)
	}

	return &DetectBatchAnomaliesResult{Report: report}, nil
}

// PublishAnomalyAlerts publishes one AnomalyAlert per detected anomaly to
// NATS. Unlike the per-append transaction events, alert publishing is the
// whole point of this activity, so a publish failure fails the activity
// and Temporal retries it.
func (a *Activities) PublishAnomalyAlerts(ctx context.Context, input PublishAnomalyAlertsInput) (*PublishAnomalyAlertsResult, error) {
	if a.metrics != nil {
		defer metrics.Timer(time.Now(), func(d float64) {
			a.metrics.RecordActivityDuration("PublishAnomalyAlerts", d)
		})()
	}

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping anomaly alerts")
		return &PublishAnomalyAlertsResult{Published: 0}, nil
	}

	published := 0
	for _, report := range input.Reports {
		if report == nil || len(report.Anomalies) == 0 {
			continue
		}

		alerts := make([]*natspkg.AnomalyAlert, 0, len(report.Anomalies))
		for _, anomaly := range report.Anomalies {
			alerts = append(alerts, natspkg.FromAnomaly(report.BatchID, anomaly, report.RiskLevel))
		}

		if err := a.publisher.PublishAnomalies(ctx, alerts); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish anomaly alerts",
				"batch_id", report.BatchID,
				"count", len(alerts),
				"error", err,
			)
			return nil, fmt.Errorf("failed to publish anomaly alerts for batch %s: %w", report.BatchID, err)
		}

		published += len(alerts)
	}

	a.logger.InfoContext(ctx, "published anomaly alerts",
		"alerts", published,
		"batches", len(input.Reports),
	)

	return &PublishAnomalyAlertsResult{Published: published}, nil
}

// RecordAuditSummary classifies a finished audit run, logs the outcome,
// and records workflow-level metrics. The audit findings are already
// final when this runs.
func (a *Activities) RecordAuditSummary(ctx context.Context, input RecordAuditSummaryInput) (*RecordAuditSummaryResult, error) {
	status := "clean"
	switch {
	case !input.ChainValid:
		status = "chain_broken"
	case input.TotalAnomalies > 0:
		status = "anomalies_found"
	}

	if a.metrics != nil {
		a.metrics.RecordWorkflowDuration(status, time.Since(input.StartedAt).Seconds())
	}

	if status == "clean" {
		a.logger.InfoContext(ctx, "ledger audit finished",
			"status", status,
			"batches_audited", input.BatchesAudited,
		)
	} else {
		a.logger.WarnContext(ctx, "ledger audit finished",
			"status", status,
			"chain_valid", input.ChainValid,
			"broken_links", input.BrokenLinks,
			"batches_audited", input.BatchesAudited,
			"batches_flagged", input.BatchesFlagged,
			"total_anomalies", input.TotalAnomalies,
			"high_risk_batches", input.HighRiskBatches,
		)
	}

	return &RecordAuditSummaryResult{Status: status}, nil
}
