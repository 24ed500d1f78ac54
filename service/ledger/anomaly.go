package ledger

import (
	"fmt"
	"time"
)

// detectAnomalies sweeps one batch's ordered history for quantity,
// timeline, and cold-chain violations. It never fails on well-formed
// records; malformed temperature entries are skipped by the decoder.
func detectAnomalies(batchID string, txs []*Transaction) *AnomalyReport {
	anomalies := []Anomaly{}

	// Quantity conservation. The first record, when it is a manufacture,
	// fixes the available quantity; transfers and sales draw it down. A
	// batch that never manufactured starts at zero.
	var available int64
	for i, tx := range txs {
		if i == 0 && tx.Type == TypeManufacture {
			available = tx.Quantity
			continue
		}
		if tx.Type != TypeTransfer && tx.Type != TypeSale {
			continue
		}
		if tx.Quantity > available {
			anomalies = append(anomalies, Anomaly{
				Type:          AnomalyQuantityOverflow,
				Severity:      SeverityHigh,
				TransactionID: tx.ID,
				BlockNumber:   tx.BlockNumber,
				Message:       fmt.Sprintf("quantity %d exceeds available quantity %d", tx.Quantity, available),
			})
			continue
		}
		available -= tx.Quantity
	}

	// Timeline inversions between adjacent records.
	for i := 1; i < len(txs); i++ {
		if txs[i].TransactionDate.Before(txs[i-1].TransactionDate) {
			anomalies = append(anomalies, Anomaly{
				Type:          AnomalyTimeline,
				Severity:      SeverityMedium,
				TransactionID: txs[i].ID,
				BlockNumber:   txs[i].BlockNumber,
				Message: fmt.Sprintf("transaction date %s precedes previous transaction date %s",
					txs[i].TransactionDate.UTC().Format(time.RFC3339),
					txs[i-1].TransactionDate.UTC().Format(time.RFC3339)),
			})
		}
	}

	// Cold-chain: any reading outside the inclusive [2, 8] °C band flags
	// the transaction once, with the violating-reading count.
	for _, tx := range txs {
		readings := decodeTemperatureLog(tx.TemperatureLog)
		violations := 0
		for _, r := range readings {
			if r.Temperature < ColdChainMinCelsius || r.Temperature > ColdChainMaxCelsius {
				violations++
			}
		}
		if violations > 0 {
			anomalies = append(anomalies, Anomaly{
				Type:          AnomalyTemperatureViolation,
				Severity:      SeverityHigh,
				TransactionID: tx.ID,
				BlockNumber:   tx.BlockNumber,
				Message:       fmt.Sprintf("%d of %d temperature readings outside the 2-8°C cold-chain range", violations, len(readings)),
			})
		}
	}

	return &AnomalyReport{
		BatchID:           batchID,
		AnomaliesDetected: len(anomalies) > 0,
		TotalAnomalies:    len(anomalies),
		Anomalies:         anomalies,
		RiskLevel:         ScoreRisk(anomalies),
	}
}

// ScoreRisk reduces an anomaly set to a single risk level: high if any
// high-severity anomaly exists, medium if more than two medium-severity
// anomalies accumulated, low otherwise (including the empty set).
func ScoreRisk(anomalies []Anomaly) RiskLevel {
	medium := 0
	for _, a := range anomalies {
		switch a.Severity {
		case SeverityHigh:
			return RiskHigh
		case SeverityMedium:
			medium++
		}
	}
	if medium > 2 {
		return RiskMedium
	}
	return RiskLow
}
