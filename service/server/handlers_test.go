package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/Payal2904/drug-verification-system-sub000/service/ledger"
	"github.com/Payal2904/drug-verification-system-sub000/service/metrics"
	"github.com/Payal2904/drug-verification-system-sub000/service/nats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupTestLedger returns a running ledger over an in-memory store. The
// writer goroutine stops when the test finishes.
func setupTestLedger(t *testing.T) (*ledger.Ledger, *ledger.MemStore) {
	t.Helper()

	store := ledger.NewMemStore()
	ldgr := ledger.New(store, ledger.Options{Difficulty: 0}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ldgr.Start(ctx)

	return ldgr, store
}

func postTransaction(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/v1/transactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestCreateTransaction_PathologicalInput(t *testing.T) {
	ldgr, _ := setupTestLedger(t)
	handler := handleCreateTransaction(ldgr, nats.NewMockPublisher(), nil, testLogger())

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		checkError     func(t *testing.T, body string)
	}{
		{
			name:           "extremely large request body",
			body:           `{"batch_id":"` + strings.Repeat("A", 10*1024*1024) + `"}`, // 10MB
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "request body too large")
			},
		},
		{
			name:           "malformed JSON",
			body:           `{"batch_id":"BATCH-001","quantity":`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid request body")
			},
		},
		{
			name:           "empty JSON object",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "batch_id is required")
			},
		},
		{
			name:           "batch id too long",
			body:           `{"batch_id":"` + strings.Repeat("A", 500) + `"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "batch_id too long")
			},
		},
		{
			name:           "batch id with null bytes",
			body:           `{"batch_id":"BATCH\u0000001"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "control characters not allowed")
			},
		},
		{
			name:           "batch id with SQL injection attempt",
			body:           `{"batch_id":"BATCH'; DROP TABLE ledger_transactions; --"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid batch_id format")
			},
		},
		{
			name:           "missing to_entity_id",
			body:           `{"batch_id":"BATCH-001","transaction_type":"manufacture","quantity":100,"unit_price":250,"transaction_date":"2024-01-15T08:00:00Z"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "to_entity_id is required")
			},
		},
		{
			name:           "unknown transaction type",
			body:           `{"batch_id":"BATCH-001","to_entity_id":"PHARMA-CO","transaction_type":"teleport","quantity":100,"unit_price":250,"transaction_date":"2024-01-15T08:00:00Z"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid transaction_type")
			},
		},
		{
			name:           "missing transaction date",
			body:           `{"batch_id":"BATCH-001","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":100,"unit_price":250}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "transaction_date is required")
			},
		},
		{
			name:           "invalid transaction date format",
			body:           `{"batch_id":"BATCH-001","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":100,"unit_price":250,"transaction_date":"January 15, 2024"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid transaction_date")
			},
		},
		{
			name:           "zero quantity",
			body:           `{"batch_id":"BATCH-001","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":0,"unit_price":250,"transaction_date":"2024-01-15T08:00:00Z"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "quantity must be positive")
			},
		},
		{
			name:           "negative unit price",
			body:           `{"batch_id":"BATCH-001","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":100,"unit_price":-5,"transaction_date":"2024-01-15T08:00:00Z"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "unit_price must not be negative")
			},
		},
		{
			name:           "extra unexpected fields should be ignored",
			body:           `{"batch_id":"BATCH-EXTRA","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":100,"unit_price":250,"transaction_date":"2024-01-15T08:00:00Z","malicious":"data","admin":true}`,
			expectedStatus: http.StatusCreated,
			checkError:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postTransaction(t, handler, tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.checkError != nil {
				var errResp map[string]string
				err := json.NewDecoder(w.Body).Decode(&errResp)
				require.NoError(t, err)
				tt.checkError(t, errResp["error"])
			}
		})
	}
}

func TestCreateTransaction_Success(t *testing.T) {
	ldgr, _ := setupTestLedger(t)
	publisher := nats.NewMockPublisher()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	handler := handleCreateTransaction(ldgr, publisher, m, testLogger())

	body := `{
		"batch_id": "BATCH-2024-001",
		"to_entity_id": "PHARMA-CO",
		"transaction_type": "manufacture",
		"quantity": 1000,
		"unit_price": 250,
		"transaction_date": "2024-01-15T08:00:00Z",
		"temperature_log": [{"temperature": 5.0, "timestamp": "2024-01-15T08:00:00Z"}],
		"notes": "initial production run"
	}`
	w := postTransaction(t, handler, body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp createTransactionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Transaction)

	assert.Equal(t, int64(1), resp.Transaction.BlockNumber)
	assert.Equal(t, ledger.GenesisHash, resp.Transaction.PreviousHash)
	assert.Len(t, resp.Transaction.Hash, 64)
	assert.Equal(t, int64(250000), resp.Transaction.TotalAmount)
	assert.Nil(t, resp.Transaction.FromEntityID)
	assert.True(t, resp.Mined)

	// The append is announced on NATS
	events := publisher.GetPublishedEventsForBatch("BATCH-2024-001")
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].BlockNumber)
	assert.Equal(t, "full", events[0].Assurance)

	// A second append links to the first
	body2 := `{
		"batch_id": "BATCH-2024-001",
		"from_entity_id": "PHARMA-CO",
		"to_entity_id": "DIST-WEST",
		"transaction_type": "transfer",
		"quantity": 400,
		"unit_price": 250,
		"transaction_date": "2024-01-16T08:00:00Z"
	}`
	w2 := postTransaction(t, handler, body2)
	require.Equal(t, http.StatusCreated, w2.Code)

	var resp2 createTransactionResponse
	require.NoError(t, json.NewDecoder(w2.Body).Decode(&resp2))
	assert.Equal(t, int64(2), resp2.Transaction.BlockNumber)
	assert.Equal(t, resp.Transaction.Hash, resp2.Transaction.PreviousHash)
	require.NotNil(t, resp2.Transaction.FromEntityID)
	assert.Equal(t, "PHARMA-CO", *resp2.Transaction.FromEntityID)
}

func TestCreateTransaction_PublishFailureDoesNotFailRequest(t *testing.T) {
	ldgr, _ := setupTestLedger(t)
	publisher := nats.NewMockPublisher()
	publisher.SetPublishError(errors.New("nats unavailable"))
	handler := handleCreateTransaction(ldgr, publisher, nil, testLogger())

	body := `{"batch_id":"BATCH-001","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":100,"unit_price":250,"transaction_date":"2024-01-15T08:00:00Z"}`
	w := postTransaction(t, handler, body)

	// The record is committed before publication, so the request succeeds
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, publisher.GetPublishedEventCount())
}

func TestCreateTransaction_WriterNotRunning(t *testing.T) {
	store := ledger.NewMemStore()
	ldgr := ledger.New(store, ledger.Options{Difficulty: 0}, testLogger())
	handler := handleCreateTransaction(ldgr, nil, nil, testLogger())

	body := `{"batch_id":"BATCH-001","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":100,"unit_price":250,"transaction_date":"2024-01-15T08:00:00Z"}`
	w := postTransaction(t, handler, body)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "ledger writer is not running")
}

func TestVerifyChain(t *testing.T) {
	ldgr, _ := setupTestLedger(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	verifyHandler := handleVerifyChain(ldgr, m, testLogger())

	t.Run("empty chain is valid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/chain/verify", nil)
		w := httptest.NewRecorder()
		verifyHandler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp ledger.GlobalVerification
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.IsValid)
		assert.Equal(t, int64(0), resp.TotalBlocks)
		assert.Empty(t, resp.BrokenLinks)
	})

	t.Run("chain stays valid after appends", func(t *testing.T) {
		createHandler := handleCreateTransaction(ldgr, nil, nil, testLogger())
		for _, body := range []string{
			`{"batch_id":"BATCH-001","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":500,"unit_price":100,"transaction_date":"2024-01-15T08:00:00Z"}`,
			`{"batch_id":"BATCH-001","from_entity_id":"PHARMA-CO","to_entity_id":"DIST-WEST","transaction_type":"transfer","quantity":200,"unit_price":100,"transaction_date":"2024-01-16T08:00:00Z"}`,
		} {
			w := postTransaction(t, createHandler, body)
			require.Equal(t, http.StatusCreated, w.Code)
		}

		req := httptest.NewRequest("GET", "/api/v1/chain/verify", nil)
		w := httptest.NewRecorder()
		verifyHandler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp ledger.GlobalVerification
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.IsValid)
		assert.Equal(t, int64(2), resp.TotalBlocks)
	})
}

func TestGetBatchHistory(t *testing.T) {
	ldgr, _ := setupTestLedger(t)
	createHandler := handleCreateTransaction(ldgr, nil, nil, testLogger())
	historyHandler := handleGetBatchHistory(ldgr, testLogger())

	for _, body := range []string{
		`{"batch_id":"BATCH-A","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":500,"unit_price":100,"transaction_date":"2024-01-15T08:00:00Z"}`,
		`{"batch_id":"BATCH-A","from_entity_id":"PHARMA-CO","to_entity_id":"DIST-WEST","transaction_type":"transfer","quantity":200,"unit_price":100,"transaction_date":"2024-01-16T08:00:00Z"}`,
	} {
		w := postTransaction(t, createHandler, body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	getHistory := func(batchID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/batches/"+batchID+"/history", nil)
		req.SetPathValue("batch_id", batchID)
		w := httptest.NewRecorder()
		historyHandler.ServeHTTP(w, req)
		return w
	}

	t.Run("returns ordered batch history", func(t *testing.T) {
		w := getHistory("BATCH-A")
		require.Equal(t, http.StatusOK, w.Code)

		var resp ledger.BatchHistory
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "BATCH-A", resp.BatchID)
		require.Equal(t, 2, resp.TotalTransactions)
		assert.Equal(t, ledger.TypeManufacture, resp.Transactions[0].Type)
		assert.Equal(t, ledger.TypeTransfer, resp.Transactions[1].Type)
		require.NotNil(t, resp.ChainIntegrity)
		assert.True(t, resp.ChainIntegrity.IsValid)
	})

	t.Run("unknown batch returns empty history", func(t *testing.T) {
		w := getHistory("BATCH-UNKNOWN")
		require.Equal(t, http.StatusOK, w.Code)

		var resp ledger.BatchHistory
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 0, resp.TotalTransactions)
		require.NotNil(t, resp.ChainIntegrity)
		assert.False(t, resp.ChainIntegrity.IsValid)
	})

	t.Run("invalid batch id is rejected", func(t *testing.T) {
		w := getHistory(strings.Repeat("A", 500))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetBatchAnomalies(t *testing.T) {
	ldgr, _ := setupTestLedger(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	createHandler := handleCreateTransaction(ldgr, nil, nil, testLogger())
	anomaliesHandler := handleGetBatchAnomalies(ldgr, m, testLogger())

	// BATCH-OVERFLOW transfers more than was manufactured
	for _, body := range []string{
		`{"batch_id":"BATCH-OVERFLOW","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":1000,"unit_price":100,"transaction_date":"2024-01-15T08:00:00Z"}`,
		`{"batch_id":"BATCH-OVERFLOW","from_entity_id":"PHARMA-CO","to_entity_id":"DIST-WEST","transaction_type":"transfer","quantity":1500,"unit_price":100,"transaction_date":"2024-01-16T08:00:00Z"}`,
		`{"batch_id":"BATCH-CLEAN","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":1000,"unit_price":100,"transaction_date":"2024-01-15T08:00:00Z"}`,
		`{"batch_id":"BATCH-CLEAN","from_entity_id":"PHARMA-CO","to_entity_id":"DIST-WEST","transaction_type":"transfer","quantity":400,"unit_price":100,"transaction_date":"2024-01-16T08:00:00Z"}`,
	} {
		w := postTransaction(t, createHandler, body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	getAnomalies := func(batchID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/batches/"+batchID+"/anomalies", nil)
		req.SetPathValue("batch_id", batchID)
		w := httptest.NewRecorder()
		anomaliesHandler.ServeHTTP(w, req)
		return w
	}

	t.Run("flags quantity overflow", func(t *testing.T) {
		w := getAnomalies("BATCH-OVERFLOW")
		require.Equal(t, http.StatusOK, w.Code)

		var resp ledger.AnomalyReport
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.AnomaliesDetected)
		require.Equal(t, 1, resp.TotalAnomalies)
		assert.Equal(t, ledger.AnomalyQuantityOverflow, resp.Anomalies[0].Type)
		assert.Equal(t, ledger.RiskHigh, resp.RiskLevel)
	})

	t.Run("clean batch reports low risk", func(t *testing.T) {
		w := getAnomalies("BATCH-CLEAN")
		require.Equal(t, http.StatusOK, w.Code)

		var resp ledger.AnomalyReport
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.False(t, resp.AnomaliesDetected)
		assert.Equal(t, 0, resp.TotalAnomalies)
		assert.Equal(t, ledger.RiskLow, resp.RiskLevel)
	})
}

func TestListBatchesAndStats(t *testing.T) {
	ldgr, _ := setupTestLedger(t)
	createHandler := handleCreateTransaction(ldgr, nil, nil, testLogger())

	for _, body := range []string{
		`{"batch_id":"BATCH-B","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":500,"unit_price":100,"transaction_date":"2024-01-15T08:00:00Z"}`,
		`{"batch_id":"BATCH-A","to_entity_id":"PHARMA-CO","transaction_type":"manufacture","quantity":300,"unit_price":100,"transaction_date":"2024-01-15T09:00:00Z"}`,
		`{"batch_id":"BATCH-A","from_entity_id":"PHARMA-CO","to_entity_id":"DIST-WEST","transaction_type":"transfer","quantity":100,"unit_price":100,"transaction_date":"2024-01-16T08:00:00Z"}`,
	} {
		w := postTransaction(t, createHandler, body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("list batches", func(t *testing.T) {
		handler := handleListBatches(ldgr, testLogger())
		req := httptest.NewRequest("GET", "/api/v1/batches", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Batches []string `json:"batches"`
			Count   int      `json:"count"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, []string{"BATCH-A", "BATCH-B"}, resp.Batches)
	})

	t.Run("stats aggregate the ledger", func(t *testing.T) {
		handler := handleGetStats(ldgr, testLogger())
		req := httptest.NewRequest("GET", "/api/v1/stats", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp ledger.Stats
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, int64(3), resp.TotalBlocks)
		assert.Equal(t, int64(2), resp.UniqueBatches)
		assert.Equal(t, int64(100), resp.TotalQuantityTransferred)
		assert.Equal(t, int64(2), resp.TransactionTypeBreakdown[ledger.TypeManufacture])
		require.NotNil(t, resp.ChainIntegrity)
		assert.True(t, resp.ChainIntegrity.IsValid)
	})
}
