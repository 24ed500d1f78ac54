package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchTx(id int64, typ TransactionType, qty int64, date time.Time) *Transaction {
	return &Transaction{
		ID:              id,
		BlockNumber:     id,
		BatchID:         "BATCH-X",
		ToEntityID:      "ENT-1",
		Type:            typ,
		Quantity:        qty,
		TransactionDate: date,
	}
}

func tempLog(t *testing.T, temps ...float64) json.RawMessage {
	t.Helper()
	base := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	readings := make([]TemperatureReading, len(temps))
	for i, temp := range temps {
		readings[i] = TemperatureReading{Temperature: temp, Timestamp: base.Add(time.Duration(i) * time.Minute)}
	}
	raw, err := json.Marshal(readings)
	require.NoError(t, err)
	return raw
}

func TestDetectAnomaliesQuantity(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC) }

	t.Run("transfer exceeding manufactured quantity is flagged high", func(t *testing.T) {
		// Scenario: 1000 units manufactured, 1500 transferred out.
		txs := []*Transaction{
			batchTx(1, TypeManufacture, 1000, day(1)),
			batchTx(2, TypeTransfer, 1500, day(2)),
		}

		report := detectAnomalies("BATCH-X", txs)
		assert.True(t, report.AnomaliesDetected)
		require.Equal(t, 1, report.TotalAnomalies)
		a := report.Anomalies[0]
		assert.Equal(t, AnomalyQuantityOverflow, a.Type)
		assert.Equal(t, SeverityHigh, a.Severity)
		assert.Equal(t, int64(2), a.TransactionID)
		assert.Equal(t, RiskHigh, report.RiskLevel)
	})

	t.Run("transfers within the manufactured quantity never flag", func(t *testing.T) {
		txs := []*Transaction{
			batchTx(1, TypeManufacture, 500, day(1)),
			batchTx(2, TypeTransfer, 300, day(2)),
			batchTx(3, TypeSale, 200, day(3)),
		}

		report := detectAnomalies("BATCH-X", txs)
		assert.False(t, report.AnomaliesDetected)
		assert.Equal(t, RiskLow, report.RiskLevel)
	})

	t.Run("only the overflowing record is flagged", func(t *testing.T) {
		txs := []*Transaction{
			batchTx(1, TypeManufacture, 100, day(1)),
			batchTx(2, TypeTransfer, 60, day(2)),
			batchTx(3, TypeSale, 60, day(3)),
			batchTx(4, TypeSale, 40, day(4)),
		}

		report := detectAnomalies("BATCH-X", txs)
		require.Equal(t, 1, report.TotalAnomalies)
		assert.Equal(t, int64(3), report.Anomalies[0].TransactionID)
		assert.Equal(t, AnomalyQuantityOverflow, report.Anomalies[0].Type)

		// The overflowing record does not draw down stock, so the final
		// 40-unit sale still fits the remaining 40.
	})

	t.Run("batch without manufacture starts from zero stock", func(t *testing.T) {
		txs := []*Transaction{
			batchTx(1, TypeTransfer, 10, day(1)),
		}

		report := detectAnomalies("BATCH-X", txs)
		require.Equal(t, 1, report.TotalAnomalies)
		assert.Equal(t, AnomalyQuantityOverflow, report.Anomalies[0].Type)
	})

	t.Run("later manufacture records do not add stock", func(t *testing.T) {
		txs := []*Transaction{
			batchTx(1, TypeManufacture, 100, day(1)),
			batchTx(2, TypeTransfer, 80, day(2)),
			batchTx(3, TypeManufacture, 1000, day(3)),
			batchTx(4, TypeTransfer, 500, day(4)),
		}

		report := detectAnomalies("BATCH-X", txs)
		require.Equal(t, 1, report.TotalAnomalies)
		assert.Equal(t, int64(4), report.Anomalies[0].TransactionID)
	})

	t.Run("returns and recalls do not restock", func(t *testing.T) {
		txs := []*Transaction{
			batchTx(1, TypeManufacture, 100, day(1)),
			batchTx(2, TypeTransfer, 100, day(2)),
			batchTx(3, TypeReturn, 100, day(3)),
			batchTx(4, TypeTransfer, 50, day(4)),
		}

		report := detectAnomalies("BATCH-X", txs)
		require.Equal(t, 1, report.TotalAnomalies)
		assert.Equal(t, int64(4), report.Anomalies[0].TransactionID)
	})
}

func TestDetectAnomaliesTimeline(t *testing.T) {
	at := func(d, h int) time.Time { return time.Date(2026, 2, d, h, 0, 0, 0, time.UTC) }

	t.Run("backdated successor is flagged medium", func(t *testing.T) {
		// Scenario: the second record's date precedes the first's.
		txs := []*Transaction{
			batchTx(1, TypeManufacture, 100, at(10, 12)),
			batchTx(2, TypeTransfer, 10, at(9, 12)),
		}

		report := detectAnomalies("BATCH-X", txs)
		require.Equal(t, 1, report.TotalAnomalies)
		a := report.Anomalies[0]
		assert.Equal(t, AnomalyTimeline, a.Type)
		assert.Equal(t, SeverityMedium, a.Severity)
		assert.Equal(t, int64(2), a.TransactionID)
		assert.Equal(t, RiskLow, report.RiskLevel)
	})

	t.Run("equal dates are not an inversion", func(t *testing.T) {
		txs := []*Transaction{
			batchTx(1, TypeManufacture, 100, at(10, 12)),
			batchTx(2, TypeTransfer, 10, at(10, 12)),
		}

		report := detectAnomalies("BATCH-X", txs)
		assert.False(t, report.AnomaliesDetected)
	})

	t.Run("risk escalates past two medium anomalies", func(t *testing.T) {
		// Each successor is earlier than its predecessor: three inversions.
		txs := []*Transaction{
			batchTx(1, TypeManufacture, 100, at(10, 12)),
			batchTx(2, TypeTransfer, 10, at(9, 12)),
			batchTx(3, TypeTransfer, 10, at(8, 12)),
			batchTx(4, TypeTransfer, 10, at(7, 12)),
		}

		report := detectAnomalies("BATCH-X", txs)
		assert.Equal(t, 3, report.TotalAnomalies)
		assert.Equal(t, RiskMedium, report.RiskLevel)
	})
}

func TestDetectAnomaliesTemperature(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC) }

	t.Run("reading above the band is flagged high", func(t *testing.T) {
		tx := batchTx(1, TypeManufacture, 100, day(1))
		tx.TemperatureLog = tempLog(t, 4, 9, 5)

		report := detectAnomalies("BATCH-X", []*Transaction{tx})
		require.Equal(t, 1, report.TotalAnomalies)
		a := report.Anomalies[0]
		assert.Equal(t, AnomalyTemperatureViolation, a.Type)
		assert.Equal(t, SeverityHigh, a.Severity)
		assert.Contains(t, a.Message, "1 of 3")
		assert.Equal(t, RiskHigh, report.RiskLevel)
	})

	t.Run("reading below the band is flagged high", func(t *testing.T) {
		tx := batchTx(1, TypeManufacture, 100, day(1))
		tx.TemperatureLog = tempLog(t, -1)

		report := detectAnomalies("BATCH-X", []*Transaction{tx})
		require.Equal(t, 1, report.TotalAnomalies)
		assert.Equal(t, AnomalyTemperatureViolation, report.Anomalies[0].Type)
	})

	t.Run("band boundaries are inclusive", func(t *testing.T) {
		tx := batchTx(1, TypeManufacture, 100, day(1))
		tx.TemperatureLog = tempLog(t, 2, 8, 5.5)

		report := detectAnomalies("BATCH-X", []*Transaction{tx})
		assert.False(t, report.AnomaliesDetected)
	})

	t.Run("malformed log entries are skipped", func(t *testing.T) {
		tx := batchTx(1, TypeManufacture, 100, day(1))
		tx.TemperatureLog = json.RawMessage(`[{"temperature": 5}, "junk", {"timestamp": "2026-02-01T06:00:00Z"}]`)

		report := detectAnomalies("BATCH-X", []*Transaction{tx})
		assert.False(t, report.AnomaliesDetected)
	})

	t.Run("non-array log yields no readings", func(t *testing.T) {
		tx := batchTx(1, TypeManufacture, 100, day(1))
		tx.TemperatureLog = json.RawMessage(`{"sensor":"broken"}`)

		report := detectAnomalies("BATCH-X", []*Transaction{tx})
		assert.False(t, report.AnomaliesDetected)
	})
}

func TestDetectAnomaliesCleanHistory(t *testing.T) {
	// Scenario: manufacture then a transfer and a sale, dates in order,
	// all readings inside the cold-chain band.
	day := func(d int) time.Time { return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC) }

	m := batchTx(1, TypeManufacture, 500, day(1))
	tr := batchTx(2, TypeTransfer, 200, day(2))
	tr.TemperatureLog = tempLog(t, 4, 6)
	sale := batchTx(3, TypeSale, 200, day(3))
	sale.TemperatureLog = tempLog(t, 3, 7)

	report := detectAnomalies("BATCH-Y", []*Transaction{m, tr, sale})
	assert.Equal(t, "BATCH-Y", report.BatchID)
	assert.False(t, report.AnomaliesDetected)
	assert.Equal(t, 0, report.TotalAnomalies)
	assert.Empty(t, report.Anomalies)
	assert.Equal(t, RiskLow, report.RiskLevel)
}

func TestScoreRisk(t *testing.T) {
	med := Anomaly{Severity: SeverityMedium}
	high := Anomaly{Severity: SeverityHigh}

	tests := []struct {
		name      string
		anomalies []Anomaly
		want      RiskLevel
	}{
		{"empty set", nil, RiskLow},
		{"one medium", []Anomaly{med}, RiskLow},
		{"two medium", []Anomaly{med, med}, RiskLow},
		{"three medium", []Anomaly{med, med, med}, RiskMedium},
		{"single high", []Anomaly{high}, RiskHigh},
		{"high outranks mediums", []Anomaly{med, med, med, high}, RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreRisk(tt.anomalies))
		})
	}
}
