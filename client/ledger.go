package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Transaction is one persisted block in the supply chain ledger as
// reported by the server.
type Transaction struct {
	ID               int64           `json:"id"`
	Hash             string          `json:"hash"`
	PreviousHash     string          `json:"previous_hash"`
	BlockNumber      int64           `json:"block_number"`
	BatchID          string          `json:"batch_id"`
	FromEntityID     *string         `json:"from_entity_id,omitempty"`
	ToEntityID       string          `json:"to_entity_id"`
	TransactionType  string          `json:"transaction_type"`
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

// CreateTransactionRequest carries the fields of a new supply chain event.
// Hash, previous hash, and block number are assigned by the server.
type CreateTransactionRequest struct {
	BatchID          string          `json:"batch_id"`
	FromEntityID     *string         `json:"from_entity_id,omitempty"`
	ToEntityID       string          `json:"to_entity_id"`
	TransactionType  string          `json:"transaction_type"`
	Quantity         int64           `json:"quantity"`
	UnitPrice        int64           `json:"unit_price"`
	TransactionDate  time.Time       `json:"transaction_date"`
	ShippingDetails  json.RawMessage `json:"shipping_details,omitempty"`
	TemperatureLog   json.RawMessage `json:"temperature_log,omitempty"`
	DigitalSignature *string         `json:"digital_signature,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
}

// CreateTransactionResult is the server's response to a successful append.
type CreateTransactionResult struct {
	Transaction *Transaction `json:"transaction"`
	// Mined is false when the record was written with a lower-assurance
	// hash because the nonce search exhausted its iteration cap.
	Mined      bool `json:"mined"`
	Iterations int  `json:"iterations"`
}

// BrokenLink describes one record whose previous_hash does not match its
// predecessor.
type BrokenLink struct {
	BlockNumber          int64  `json:"block_number"`
	ExpectedPreviousHash string `json:"expected_previous_hash"`
	ActualPreviousHash   string `json:"actual_previous_hash"`
}

// ChainVerification is the result of a full-chain integrity scan.
type ChainVerification struct {
	IsValid     bool         `json:"is_valid"`
	TotalBlocks int64        `json:"total_blocks"`
	BrokenLinks []BrokenLink `json:"broken_links"`
}

// BatchVerification is the integrity result for a single batch's records.
type BatchVerification struct {
	IsValid          bool   `json:"is_valid"`
	Message          string `json:"message"`
	TransactionCount int    `json:"transaction_count"`
}

// BatchHistory is a batch's ordered transactions plus its integrity check.
type BatchHistory struct {
	BatchID           string             `json:"batch_id"`
	TotalTransactions int                `json:"total_transactions"`
	Transactions      []*Transaction     `json:"transactions"`
	ChainIntegrity    *BatchVerification `json:"chain_integrity"`
}

// Anomaly is one detected irregularity in a batch's history.
type Anomaly struct {
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	TransactionID int64  `json:"transaction_id"`
	BlockNumber   int64  `json:"block_number"`
	Message       string `json:"message"`
}

// AnomalyReport is the result of an anomaly sweep over one batch.
type AnomalyReport struct {
	BatchID           string    `json:"batch_id"`
	AnomaliesDetected bool      `json:"anomalies_detected"`
	TotalAnomalies    int       `json:"total_anomalies"`
	Anomalies         []Anomaly `json:"anomalies"`
	RiskLevel         string    `json:"risk_level"`
}

// Stats summarizes the whole ledger.
type Stats struct {
	TotalBlocks              int64              `json:"total_blocks"`
	UniqueBatches            int64              `json:"unique_batches"`
	ActiveEntities           int64              `json:"active_entities"`
	TotalQuantityTransferred int64              `json:"total_quantity_transferred"`
	TransactionTypeBreakdown map[string]int64   `json:"transaction_type_breakdown"`
	ChainIntegrity           *ChainVerification `json:"chain_integrity"`
}

// Client is the HTTP client for the drug ledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new ledger service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateTransaction submits a new supply chain event to the ledger.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var result CreateTransactionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("transaction created",
		"batch_id", req.BatchID,
		"block_number", result.Transaction.BlockNumber,
		"mined", result.Mined,
	)
	return &result, nil
}

// VerifyChain asks the server to verify the full chain.
func (c *Client) VerifyChain(ctx context.Context) (*ChainVerification, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/chain/verify", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var verification ChainVerification
	if err := json.NewDecoder(resp.Body).Decode(&verification); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &verification, nil
}

// GetSupplyChainHistory retrieves a batch's ordered transaction history.
func (c *Client) GetSupplyChainHistory(ctx context.Context, batchID string) (*BatchHistory, error) {
	u := fmt.Sprintf("%s/api/v1/batches/%s/history", c.baseURL, url.PathEscape(batchID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var history BatchHistory
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &history, nil
}

// DetectAnomalies asks the server to sweep a batch for anomalies.
func (c *Client) DetectAnomalies(ctx context.Context, batchID string) (*AnomalyReport, error) {
	u := fmt.Sprintf("%s/api/v1/batches/%s/anomalies", c.baseURL, url.PathEscape(batchID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var report AnomalyReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &report, nil
}

// ListBatches retrieves all batch identifiers known to the ledger.
func (c *Client) ListBatches(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/batches", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Batches []string `json:"batches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Batches, nil
}

// GetStats retrieves ledger-wide statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &stats, nil
}

// Health checks whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
