package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and local development. It
// enforces the same block-number uniqueness the database schema does.
type MemStore struct {
	mu     sync.RWMutex
	txs    []*Transaction
	blocks map[int64]struct{}
	nextID int64
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blocks: make(map[int64]struct{})}
}

// AppendTransaction persists the record in memory. It returns
// ErrBlockNumberConflict when the block number is already taken.
func (m *MemStore) AppendTransaction(ctx context.Context, params AppendTransactionParams) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.blocks[params.BlockNumber]; taken {
		return nil, ErrBlockNumberConflict
	}
	m.nextID++
	tx := &Transaction{
		ID:               m.nextID,
		Hash:             params.Hash,
		PreviousHash:     params.PreviousHash,
		BlockNumber:      params.BlockNumber,
		BatchID:          params.BatchID,
		FromEntityID:     params.FromEntityID,
		ToEntityID:       params.ToEntityID,
		Type:             params.Type,
		Quantity:         params.Quantity,
		UnitPrice:        params.UnitPrice,
		TotalAmount:      params.TotalAmount,
		TransactionDate:  params.TransactionDate,
		ShippingDetails:  params.ShippingDetails,
		TemperatureLog:   params.TemperatureLog,
		DigitalSignature: params.DigitalSignature,
		Notes:            params.Notes,
		CreatedAt:        time.Now().UTC(),
	}
	m.blocks[params.BlockNumber] = struct{}{}
	m.txs = append(m.txs, tx)
	return copyTransaction(tx), nil
}

// GetChainTail returns the newest block, or nil for an empty chain.
func (m *MemStore) GetChainTail(ctx context.Context) (*ChainTail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tail *Transaction
	for _, tx := range m.txs {
		if tail == nil || tx.BlockNumber > tail.BlockNumber {
			tail = tx
		}
	}
	if tail == nil {
		return nil, nil
	}
	return &ChainTail{Hash: tail.Hash, BlockNumber: tail.BlockNumber}, nil
}

// ListTransactions returns all records ordered by block number.
func (m *MemStore) ListTransactions(ctx context.Context) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(*Transaction) bool { return true }), nil
}

// ListBatchTransactions returns one batch's records ordered by block number.
func (m *MemStore) ListBatchTransactions(ctx context.Context, batchID string) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(tx *Transaction) bool { return tx.BatchID == batchID }), nil
}

// ListBatchIDs returns the distinct batch identifiers, sorted.
func (m *MemStore) ListBatchIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, tx := range m.txs {
		if _, ok := seen[tx.BatchID]; ok {
			continue
		}
		seen[tx.BatchID] = struct{}{}
		ids = append(ids, tx.BatchID)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetTransactionStats computes the ledger-wide aggregates.
func (m *MemStore) GetTransactionStats(ctx context.Context) (*StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &StoreStats{
		TransactionTypeBreakdown: make(map[TransactionType]int64),
	}
	batches := make(map[string]struct{})
	entities := make(map[string]struct{})
	for _, tx := range m.txs {
		stats.TotalBlocks++
		batches[tx.BatchID] = struct{}{}
		entities[tx.ToEntityID] = struct{}{}
		if tx.FromEntityID != nil {
			entities[*tx.FromEntityID] = struct{}{}
		}
		stats.TransactionTypeBreakdown[tx.Type]++
		if tx.Type == TypeTransfer {
			stats.TotalQuantityTransferred += tx.Quantity
		}
	}
	stats.UniqueBatches = int64(len(batches))
	stats.ActiveEntities = int64(len(entities))
	return stats, nil
}

func (m *MemStore) sorted(keep func(*Transaction) bool) []*Transaction {
	var out []*Transaction
	for _, tx := range m.txs {
		if keep(tx) {
			out = append(out, copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out
}

func copyTransaction(tx *Transaction) *Transaction {
	c := *tx
	return &c
}
