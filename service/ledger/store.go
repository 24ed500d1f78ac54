package ledger

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the append-only persistence boundary for ledger records. The
// concrete implementation lives in service/db; tests use MemStore. Scans
// must return records ordered by block number ascending and must read a
// consistent snapshot (no gaps or reordering visible mid-scan).
type Store interface {
	// AppendTransaction persists one fully-formed record. It returns
	// ErrBlockNumberConflict when another writer already claimed the same
	// block number.
	AppendTransaction(ctx context.Context, params AppendTransactionParams) (*Transaction, error)

	// GetChainTail returns the hash and block number of the newest record,
	// or nil when the chain is empty.
	GetChainTail(ctx context.Context) (*ChainTail, error)

	// ListTransactions returns the whole chain ordered by block number.
	ListTransactions(ctx context.Context) ([]*Transaction, error)

	// ListBatchTransactions returns one batch's records ordered by block
	// number.
	ListBatchTransactions(ctx context.Context, batchID string) ([]*Transaction, error)

	// ListBatchIDs returns the distinct batch identifiers present in the
	// ledger.
	ListBatchIDs(ctx context.Context) ([]string, error)

	// GetTransactionStats returns ledger-wide aggregates read from a
	// single consistent snapshot.
	GetTransactionStats(ctx context.Context) (*StoreStats, error)
}

// ChainTail identifies the newest block in the chain.
type ChainTail struct {
	Hash        string
	BlockNumber int64
}

// AppendTransactionParams contains the full column set for one new record.
// Hash, PreviousHash, and BlockNumber are assigned by the chain builder;
// the store persists them verbatim.
type AppendTransactionParams struct {
	Hash             string
	PreviousHash     string
	BlockNumber      int64
	BatchID          string
	FromEntityID     *string
	ToEntityID       string
	Type             TransactionType
	Quantity         int64
	UnitPrice        int64
	TotalAmount      int64
	TransactionDate  time.Time
	ShippingDetails  json.RawMessage
	TemperatureLog   json.RawMessage
	DigitalSignature *string
	Notes            *string
}

// StoreStats holds the aggregate counters backing Stats, without the chain
// integrity result (the ledger layer adds that).
type StoreStats struct {
	TotalBlocks              int64
	UniqueBatches            int64
	ActiveEntities           int64
	TotalQuantityTransferred int64
	TransactionTypeBreakdown map[TransactionType]int64
}
