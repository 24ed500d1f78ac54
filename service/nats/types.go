package nats

import (
	"time"

	"github.com/Payal2904/drug-verification-system-sub000/service/ledger"
)

// TransactionEvent represents a ledger append published to NATS.
// This is published to the subject "ledger.tx.{batch_id}" in JetStream.
type TransactionEvent struct {
	// Chain position
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	BlockNumber  int64  `json:"block_number"`

	// Supply chain information
	BatchID      string  `json:"batch_id"`
	FromEntityID *string `json:"from_entity_id,omitempty"`
	ToEntityID   string  `json:"to_entity_id"`

	// Transaction details
	Type        string `json:"transaction_type"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	TotalAmount int64  `json:"total_amount"`

	// Assurance is "full" when the proof-of-work target was met,
	// "lower" when the nonce search exhausted its iteration cap.
	Assurance string `json:"assurance"`

	// Timing information
	TransactionDate time.Time `json:"transaction_date"`
	PublishedAt     time.Time `json:"published_at"`
}

// AnomalyAlert represents a detected supply-chain anomaly published to NATS.
// This is published to the subject "ledger.anomaly.{batch_id}" in JetStream.
type AnomalyAlert struct {
	BatchID       string    `json:"batch_id"`
	Type          string    `json:"type"`
	Severity      string    `json:"severity"`
	TransactionID int64     `json:"transaction_id"`
	BlockNumber   int64     `json:"block_number"`
	Message       string    `json:"message"`
	RiskLevel     string    `json:"risk_level"`
	DetectedAt    time.Time `json:"detected_at"`
}

// ChainAlert reports broken hash-chain links found by an audit.
// This is published to the subject "ledger.chain" in JetStream.
type ChainAlert struct {
	TotalBlocks int64        `json:"total_blocks"`
	BrokenLinks []BrokenLink `json:"broken_links"`
	DetectedAt  time.Time    `json:"detected_at"`
}

// BrokenLink is one point where a block's previous_hash does not match
// the hash of the block before it.
type BrokenLink struct {
	BlockNumber          int64  `json:"block_number"`
	ExpectedPreviousHash string `json:"expected_previous_hash"`
	ActualPreviousHash   string `json:"actual_previous_hash"`
}

// FromLedgerTransaction converts an appended transaction to a
// TransactionEvent for publishing.
func FromLedgerTransaction(txn *ledger.Transaction, mined bool) *TransactionEvent {
	assurance := "full"
	if !mined {
		assurance = "lower"
	}

	return &TransactionEvent{
		Hash:            txn.Hash,
		PreviousHash:    txn.PreviousHash,
		BlockNumber:     txn.BlockNumber,
		BatchID:         txn.BatchID,
		FromEntityID:    txn.FromEntityID,
		ToEntityID:      txn.ToEntityID,
		Type:            string(txn.Type),
		Quantity:        txn.Quantity,
		UnitPrice:       txn.UnitPrice,
		TotalAmount:     txn.TotalAmount,
		Assurance:       assurance,
		TransactionDate: txn.TransactionDate,
		PublishedAt:     time.Now().UTC(),
	}
}

// FromAnomaly converts a detected anomaly to an AnomalyAlert for publishing.
// The riskLevel is the overall risk of the batch sweep that found it.
func FromAnomaly(batchID string, a ledger.Anomaly, riskLevel ledger.RiskLevel) *AnomalyAlert {
	return &AnomalyAlert{
		BatchID:       batchID,
		Type:          string(a.Type),
		Severity:      string(a.Severity),
		TransactionID: a.TransactionID,
		BlockNumber:   a.BlockNumber,
		Message:       a.Message,
		RiskLevel:     string(riskLevel),
		DetectedAt:    time.Now().UTC(),
	}
}

// FromVerification converts a failed chain verification to a ChainAlert
// for publishing.
func FromVerification(v *ledger.GlobalVerification) *ChainAlert {
	links := make([]BrokenLink, 0, len(v.BrokenLinks))
	for _, link := range v.BrokenLinks {
		links = append(links, BrokenLink{
			BlockNumber:          link.BlockNumber,
			ExpectedPreviousHash: link.ExpectedPreviousHash,
			ActualPreviousHash:   link.ActualPreviousHash,
		})
	}

	return &ChainAlert{
		TotalBlocks: v.TotalBlocks,
		BrokenLinks: links,
		DetectedAt:  time.Now().UTC(),
	}
}
