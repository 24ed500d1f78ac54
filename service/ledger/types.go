package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GenesisHash is the previousHash value of the very first block in the chain.
var GenesisHash = strings.Repeat("0", 64)

// TransactionType classifies a supply-chain event.
type TransactionType string

const (
	TypeManufacture TransactionType = "manufacture"
	TypeTransfer    TransactionType = "transfer"
	TypeSale        TransactionType = "sale"
	TypeReturn      TransactionType = "return"
	TypeRecall      TransactionType = "recall"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeManufacture, TypeTransfer, TypeSale, TypeReturn, TypeRecall:
		return true
	}
	return false
}

// ParseTransactionType converts a wire string into a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// Transaction is one persisted block in the ledger. Records are immutable
// once appended; there is no update or delete path.
type Transaction struct {
	ID               int64           `json:"id"`
	Hash             string          `json:"hash"`
	PreviousHash     string          `json:"previous_hash"`
	BlockNumber      int64           `json:"block_number"`
	BatchID          string          `json:"batch_id"`
	FromEntityID     *string         `json:"from_entity_id,omitempty"`
	ToEntityID       string          `json:"to_entity_id"`
	Type             TransactionType `json:"transaction_type"`
	Quantity         int64           `json:"quantity"`
	UnitPrice        int64           `json:"unit_price"`
	TotalAmount      int64           `json:"total_amount"`
	TransactionDate  time.Time       `json:"transaction_date"`
	ShippingDetails  json.RawMessage `json:"shipping_details,omitempty"`
	TemperatureLog   json.RawMessage `json:"temperature_log,omitempty"`
	DigitalSignature *string         `json:"digital_signature,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TemperatureReading is one entry of a transaction's temperature log.
type TemperatureReading struct {
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// Cold-chain band for pharmaceutical shipments, inclusive.
const (
	ColdChainMinCelsius = 2.0
	ColdChainMaxCelsius = 8.0
)

// decodeTemperatureLog parses a raw temperature log. Malformed entries are
// skipped rather than failing the whole log; a log that is not a JSON array
// yields no readings.
func decodeTemperatureLog(raw json.RawMessage) []TemperatureReading {
	if len(raw) == 0 {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	readings := make([]TemperatureReading, 0, len(entries))
	for _, entry := range entries {
		var r struct {
			Temperature *float64  `json:"temperature"`
			Timestamp   time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal(entry, &r); err != nil || r.Temperature == nil {
			continue
		}
		readings = append(readings, TemperatureReading{Temperature: *r.Temperature, Timestamp: r.Timestamp})
	}
	return readings
}

// BrokenLink describes one record whose previousHash does not match the
// hash of its predecessor in block order.
type BrokenLink struct {
	BlockNumber          int64  `json:"block_number"`
	ExpectedPreviousHash string `json:"expected_previous_hash"`
	ActualPreviousHash   string `json:"actual_previous_hash"`
}

// GlobalVerification is the result of a full-chain integrity scan.
type GlobalVerification struct {
	IsValid     bool         `json:"is_valid"`
	TotalBlocks int64        `json:"total_blocks"`
	BrokenLinks []BrokenLink `json:"broken_links"`
}

// BatchVerification is the result of verifying a single batch's
// transaction subsequence.
type BatchVerification struct {
	IsValid          bool   `json:"is_valid"`
	Message          string `json:"message"`
	TransactionCount int    `json:"transaction_count"`
}

// BatchHistory is a batch's ordered transaction history plus the
// batch-level integrity check.
type BatchHistory struct {
	BatchID           string             `json:"batch_id"`
	TotalTransactions int                `json:"total_transactions"`
	Transactions      []*Transaction     `json:"transactions"`
	ChainIntegrity    *BatchVerification `json:"chain_integrity"`
}

// AnomalyType classifies a detected supply-chain irregularity.
type AnomalyType string

const (
	AnomalyQuantityOverflow     AnomalyType = "quantity_overflow"
	AnomalyTimeline             AnomalyType = "timeline_anomaly"
	AnomalyTemperatureViolation AnomalyType = "temperature_violation"
)

// Severity grades a single anomaly.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one detected irregularity in a batch's history.
type Anomaly struct {
	Type          AnomalyType `json:"type"`
	Severity      Severity    `json:"severity"`
	TransactionID int64       `json:"transaction_id"`
	BlockNumber   int64       `json:"block_number"`
	Message       string      `json:"message"`
}

// RiskLevel is the coarse classification derived from a batch's anomalies.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AnomalyReport is the result of an anomaly sweep over one batch.
type AnomalyReport struct {
	BatchID           string    `json:"batch_id"`
	AnomaliesDetected bool      `json:"anomalies_detected"`
	TotalAnomalies    int       `json:"total_anomalies"`
	Anomalies         []Anomaly `json:"anomalies"`
	RiskLevel         RiskLevel `json:"risk_level"`
}

// Stats summarizes the whole ledger for dashboards.
type Stats struct {
	TotalBlocks              int64                     `json:"total_blocks"`
	UniqueBatches            int64                     `json:"unique_batches"`
	ActiveEntities           int64                     `json:"active_entities"`
	TotalQuantityTransferred int64                     `json:"total_quantity_transferred"`
	TransactionTypeBreakdown map[TransactionType]int64 `json:"transaction_type_breakdown"`
	ChainIntegrity           *GlobalVerification       `json:"chain_integrity"`
}
