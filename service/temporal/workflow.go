package temporal

import (
	"fmt"
	"time"

	"github.com/Payal2904/drug-verification-system-sub000/service/ledger"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// AuditLedgerWorkflow is the Temporal workflow that audits the supply chain
// ledger. It is triggered by a Temporal schedule at a configured interval
// (e.g., every hour).
//
// The workflow performs these steps:
// 1. Verify the global hash chain (VerifyChain activity)
// 2. List every batch in the ledger (ListBatches activity)
// 3. Sweep each batch for anomalies (DetectBatchAnomalies activity)
// 4. Publish alerts for flagged batches to NATS (PublishAnomalyAlerts activity)
// 5. Classify and record the audit outcome (RecordAuditSummary activity)
//
// A batch whose sweep fails after retries is counted in BatchesFailed and
// skipped. Alert publishing and the summary are best-effort.
func AuditLedgerWorkflow(ctx workflow.Context, input AuditLedgerInput) (*AuditLedgerResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("AuditLedgerWorkflow started")

	result := &AuditLedgerResult{
		AuditTime: workflow.Now(ctx),
	}

	// Configure activity options
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Verify the global hash chain
	var verifyResult *VerifyChainResult
	err := workflow.ExecuteActivity(ctx, a.VerifyChain, VerifyChainInput{}).Get(ctx, &verifyResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to verify ledger chain: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to verify ledger chain: %w", err)
	}

	result.ChainValid = verifyResult.Verification.IsValid
	result.TotalBlocks = verifyResult.Verification.TotalBlocks
	result.BrokenLinks = len(verifyResult.Verification.BrokenLinks)

	if !result.ChainValid {
		// Keep auditing - a broken chain does not stop the anomaly sweep
		logger.Error("ledger chain is broken",
			"total_blocks", result.TotalBlocks,
			"broken_links", result.BrokenLinks,
		)
	} else {
		logger.Info("ledger chain verified", "total_blocks", result.TotalBlocks)
	}

	// Step 2: List every batch in the ledger
	var listResult *ListBatchesResult
	err = workflow.ExecuteActivity(ctx, a.ListBatches, ListBatchesInput{}).Get(ctx, &listResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to list batches: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to list batches: %w", err)
	}

	logger.Info("listed batches for audit", "count", len(listResult.BatchIDs))

	// Step 3: Sweep each batch for anomalies
	var flagged []*ledger.AnomalyReport
	for _, batchID := range listResult.BatchIDs {
		var sweepResult *DetectBatchAnomaliesResult
		err = workflow.ExecuteActivity(ctx, a.DetectBatchAnomalies, DetectBatchAnomaliesInput{BatchID: batchID}).Get(ctx, &sweepResult)
		if err != nil {
			// Log error but don't fail the workflow - continue with the remaining batches
			logger.Error("failed to sweep batch", "batch_id", batchID, "error", err)
			result.BatchesFailed++
			continue
		}

		result.BatchesAudited++

		report := sweepResult.Report
		if !report.AnomaliesDetected {
			continue
		}

		result.BatchesFlagged++
		result.TotalAnomalies += report.TotalAnomalies
		if report.RiskLevel == ledger.RiskHigh {
			result.HighRiskBatches = append(result.HighRiskBatches, batchID)
		}
		flagged = append(flagged, report)
	}

	logger.Info("anomaly sweep complete",
		"batches_audited", result.BatchesAudited,
		"batches_failed", result.BatchesFailed,
		"batches_flagged", result.BatchesFlagged,
		"total_anomalies", result.TotalAnomalies,
	)

	// Step 4: Publish alerts for flagged batches
	if len(flagged) > 0 {
		var publishResult *PublishAnomalyAlertsResult
		err = workflow.ExecuteActivity(ctx, a.PublishAnomalyAlerts, PublishAnomalyAlertsInput{Reports: flagged}).Get(ctx, &publishResult)
		if err != nil {
			// Log error but don't fail the workflow - the findings are in the result either way
			logger.Error("failed to publish anomaly alerts", "error", err)
		} else {
			result.AlertsPublished = publishResult.Published
		}
	}

	// Step 5: Classify and record the audit outcome
	summaryInput := RecordAuditSummaryInput{
		StartedAt:       result.AuditTime,
		ChainValid:      result.ChainValid,
		BrokenLinks:     result.BrokenLinks,
		BatchesAudited:  result.BatchesAudited,
		BatchesFlagged:  result.BatchesFlagged,
		TotalAnomalies:  result.TotalAnomalies,
		HighRiskBatches: result.HighRiskBatches,
	}

	var summaryResult *RecordAuditSummaryResult
	err = workflow.ExecuteActivity(ctx, a.RecordAuditSummary, summaryInput).Get(ctx, &summaryResult)
	if err != nil {
		// Log error but don't fail the workflow - the summary is bookkeeping
		logger.Error("failed to record audit summary", "error", err)
	}

	logger.Info("AuditLedgerWorkflow completed",
		"chain_valid", result.ChainValid,
		"batches_audited", result.BatchesAudited,
		"batches_flagged", result.BatchesFlagged,
		"alerts_published", result.AlertsPublished,
	)

	return result, nil
}
