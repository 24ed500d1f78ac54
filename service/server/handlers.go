package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/Payal2904/drug-verification-system-sub000/service/ledger"
	"github.com/Payal2904/drug-verification-system-sub000/service/metrics"
	"github.com/Payal2904/drug-verification-system-sub000/service/nats"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a transaction with temperature logs
	maxIDLength        = 100     // batch and entity identifiers
)

var (
	// Valid batch/entity identifier characters: alphanumeric plus ._- separators
	validIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// handleCreateTransaction returns a handler that appends a transaction to
// the chain and announces it on NATS.
// POST /api/v1/transactions
func handleCreateTransaction(ldgr *ledger.Ledger, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			BatchID          string          `json:"batch_id"`
			FromEntityID     *string         `json:"from_entity_id"`
			ToEntityID       string          `json:"to_entity_id"`
			TransactionType  string          `json:"transaction_type"`
			Quantity         int64           `json:"quantity"`
			UnitPrice        int64           `json:"unit_price"`
			TransactionDate  string          `json:"transaction_date"`
			ShippingDetails  json.RawMessage `json:"shipping_details"`
			TemperatureLog   json.RawMessage `json:"temperature_log"`
			DigitalSignature *string         `json:"digital_signature"`
			Notes            *string         `json:"notes"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode transaction request", "error", err)
			// Check if error is due to body size limit
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		// Validate batch identifier
		if err := validateBatchID(req.BatchID); err != nil {
			logger.Debug("invalid batch id", "batch_id", req.BatchID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Validate entity identifiers (from_entity_id is optional for manufacture)
		if req.FromEntityID != nil && strings.TrimSpace(*req.FromEntityID) != "" {
			if err := validateEntityID(*req.FromEntityID, "from_entity_id"); err != nil {
				logger.Debug("invalid from entity", "from_entity_id", *req.FromEntityID, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if err := validateEntityID(req.ToEntityID, "to_entity_id"); err != nil {
			logger.Debug("invalid to entity", "to_entity_id", req.ToEntityID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Validate transaction type
		txType, err := ledger.ParseTransactionType(req.TransactionType)
		if err != nil {
			logger.Debug("invalid transaction type", "transaction_type", req.TransactionType, "error", err)
			writeError(w, "invalid transaction_type: must be one of manufacture, transfer, sale, return, recall", http.StatusBadRequest)
			return
		}

		// Parse and validate transaction date
		if req.TransactionDate == "" {
			writeError(w, "transaction_date is required", http.StatusBadRequest)
			return
		}
		txDate, err := time.Parse(time.RFC3339, req.TransactionDate)
		if err != nil {
			logger.Debug("invalid transaction date", "transaction_date", req.TransactionDate, "error", err)
			writeError(w, "invalid transaction_date: must be RFC 3339 (e.g. '2024-01-15T08:00:00Z')", http.StatusBadRequest)
			return
		}

		input := ledger.CreateTransactionInput{
			BatchID:          req.BatchID,
			FromEntityID:     req.FromEntityID,
			ToEntityID:       req.ToEntityID,
			Type:             txType,
			Quantity:         req.Quantity,
			UnitPrice:        req.UnitPrice,
			TransactionDate:  txDate,
			ShippingDetails:  req.ShippingDetails,
			TemperatureLog:   req.TemperatureLog,
			DigitalSignature: req.DigitalSignature,
			Notes:            req.Notes,
		}

		start := time.Now()
		result, err := ldgr.CreateTransaction(r.Context(), input)
		duration := time.Since(start).Seconds()

		if err != nil {
			if m != nil {
				m.RecordAppendDuration(req.TransactionType, "error", duration)
			}
			switch {
			case errors.Is(err, ledger.ErrInvalidInput):
				logger.Debug("transaction rejected", "batch_id", req.BatchID, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, ledger.ErrWriterStopped):
				logger.Error("ledger writer not running", "batch_id", req.BatchID)
				writeError(w, "ledger writer is not running", http.StatusServiceUnavailable)
			case errors.Is(err, ledger.ErrBlockNumberConflict):
				logger.Warn("write contention not resolved", "batch_id", req.BatchID, "error", err)
				writeError(w, "ledger write contention: please retry", http.StatusConflict)
			default:
				logger.Error("failed to create transaction", "batch_id", req.BatchID, "error", err)
				writeError(w, "failed to create transaction", http.StatusInternalServerError)
			}
			return
		}

		if m != nil {
			m.RecordAppendDuration(req.TransactionType, "success", duration)
		}

		// Announce the append on NATS. Publication is best effort: the record
		// is already committed, so a publish failure must not fail the request.
		if publisher != nil {
			event := nats.FromLedgerTransaction(result.Transaction, result.Mined)
			if err := publisher.PublishTransaction(r.Context(), event); err != nil {
				logger.Warn("failed to publish transaction event",
					"batch_id", result.Transaction.BatchID,
					"block_number", result.Transaction.BlockNumber,
					"error", err,
				)
			}
		}

		logger.Info("transaction created",
			"batch_id", result.Transaction.BatchID,
			"block_number", result.Transaction.BlockNumber,
			"transaction_type", result.Transaction.Type,
			"mined", result.Mined,
		)

		writeJSON(w, createTransactionResponse{
			Transaction: result.Transaction,
			Mined:       result.Mined,
			Iterations:  result.Iterations,
		}, http.StatusCreated)
	})
}

// handleVerifyChain returns a handler that verifies the full chain.
// GET /api/v1/chain/verify
func handleVerifyChain(ldgr *ledger.Ledger, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verification, err := ldgr.VerifyGlobalChain(r.Context())
		if err != nil {
			logger.Error("failed to verify chain", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if m != nil {
			m.RecordChainVerification("global", verification.IsValid, len(verification.BrokenLinks))
		}

		if !verification.IsValid {
			logger.Warn("chain verification found broken links",
				"total_blocks", verification.TotalBlocks,
				"broken_links", len(verification.BrokenLinks),
			)
		}

		writeJSON(w, verification, http.StatusOK)
	})
}

// handleListBatches returns a handler that lists all batch identifiers.
// GET /api/v1/batches
func handleListBatches(ldgr *ledger.Ledger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batches, err := ldgr.ListBatchIDs(r.Context())
		if err != nil {
			logger.Error("failed to list batches", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("batches listed", "count", len(batches))

		writeJSON(w, map[string]interface{}{
			"batches": batches,
			"count":   len(batches),
		}, http.StatusOK)
	})
}

// handleGetBatchHistory returns a handler that retrieves a batch's full
// supply chain history with its batch-level integrity check.
// GET /api/v1/batches/{batch_id}/history
func handleGetBatchHistory(ldgr *ledger.Ledger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batchID := r.PathValue("batch_id")

		if err := validateBatchID(batchID); err != nil {
			logger.Debug("invalid batch id", "batch_id", batchID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// An unknown batch is not an error: the response carries an empty
		// history with an invalid batch view.
		history, err := ldgr.GetSupplyChainHistory(r.Context(), batchID)
		if err != nil {
			logger.Error("failed to get batch history", "batch_id", batchID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("batch history retrieved",
			"batch_id", batchID,
			"count", history.TotalTransactions,
		)

		writeJSON(w, history, http.StatusOK)
	})
}

// handleGetBatchAnomalies returns a handler that sweeps a batch for
// anomalies and scores its risk.
// GET /api/v1/batches/{batch_id}/anomalies
func handleGetBatchAnomalies(ldgr *ledger.Ledger, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batchID := r.PathValue("batch_id")

		if err := validateBatchID(batchID); err != nil {
			logger.Debug("invalid batch id", "batch_id", batchID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := ldgr.DetectAnomalies(r.Context(), batchID)
		if err != nil {
			logger.Error("failed to detect anomalies", "batch_id", batchID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if m != nil {
			m.RecordAnomalySweep(string(report.RiskLevel))
			for _, a := range report.Anomalies {
				m.RecordAnomaly(batchID, string(a.Type), string(a.Severity))
			}
		}

		if report.AnomaliesDetected {
			logger.Warn("anomalies detected",
				"batch_id", batchID,
				"total", report.TotalAnomalies,
				"risk_level", report.RiskLevel,
			)
		}

		writeJSON(w, report, http.StatusOK)
	})
}

// handleGetStats returns a handler that reports ledger-wide statistics.
// GET /api/v1/stats
func handleGetStats(ldgr *ledger.Ledger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := ldgr.GetLedgerStats(r.Context())
		if err != nil {
			logger.Error("failed to get ledger stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("ledger stats retrieved", "total_blocks", stats.TotalBlocks)

		writeJSON(w, stats, http.StatusOK)
	})
}

// createTransactionResponse is the JSON response format for a new transaction.
type createTransactionResponse struct {
	Transaction *ledger.Transaction `json:"transaction"`
	// Mined is false when the nonce search exhausted its iteration cap;
	// the record is persisted either way but carries lower assurance.
	Mined      bool `json:"mined"`
	Iterations int  `json:"iterations"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateBatchID validates a batch identifier for security and format.
func validateBatchID(batchID string) error {
	return validateIdentifier(batchID, "batch_id")
}

// validateEntityID validates an entity identifier for security and format.
func validateEntityID(entityID, field string) error {
	return validateIdentifier(entityID, field)
}

// validateIdentifier validates a supply chain identifier.
func validateIdentifier(id, field string) error {
	if id == "" {
		return errorf("%s is required", field)
	}

	if len(id) > maxIDLength {
		return errorf("%s too long: maximum length is %d characters", field, maxIDLength)
	}

	// Check for null bytes and control characters
	for _, r := range id {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in %s: control characters not allowed", field)
		}
	}

	if !validIDRegex.MatchString(id) {
		return errorf("invalid %s format: must contain only alphanumeric characters, '.', '_', or '-'", field)
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
