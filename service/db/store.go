package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Payal2904/drug-verification-system-sub000/service/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides Postgres-backed persistence for the ledger. It implements
// ledger.Store; the chain semantics (tail serialization, mining, retries)
// live in the ledger package, this layer only persists and scans.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ ledger.Store = (*Store)(nil)

// uniqueViolation is the Postgres error code raised when an insert loses a
// race on the block_number unique constraint.
const uniqueViolation = "23505"

const transactionColumns = `id, hash, previous_hash, block_number, batch_id, from_entity_id,
	to_entity_id, transaction_type, quantity, unit_price, total_amount, transaction_date,
	shipping_details, temperature_log, digital_signature, notes, created_at`

// AppendTransaction inserts one fully-formed ledger record. The unique
// constraint on block_number converts cross-process append races into
// ledger.ErrBlockNumberConflict.
func (s *Store) AppendTransaction(ctx context.Context, params ledger.AppendTransactionParams) (*ledger.Transaction, error) {
	query := `
		INSERT INTO ledger_transactions (
			hash, previous_hash, block_number, batch_id, from_entity_id,
			to_entity_id, transaction_type, quantity, unit_price, total_amount,
			transaction_date, shipping_details, temperature_log, digital_signature, notes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING ` + transactionColumns

	row := s.pool.QueryRow(ctx, query,
		params.Hash,
		params.PreviousHash,
		params.BlockNumber,
		params.BatchID,
		pgtextFromStringPtr(params.FromEntityID),
		params.ToEntityID,
		string(params.Type),
		params.Quantity,
		params.UnitPrice,
		params.TotalAmount,
		pgtype.Timestamptz{Time: params.TransactionDate, Valid: true},
		jsonbOrNil(params.ShippingDetails),
		jsonbOrNil(params.TemperatureLog),
		pgtextFromStringPtr(params.DigitalSignature),
		pgtextFromStringPtr(params.Notes),
	)

	tx, err := scanTransaction(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ledger.ErrBlockNumberConflict
		}
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return tx, nil
}

// GetChainTail returns the hash and block number of the newest record, or
// nil when the chain is empty.
func (s *Store) GetChainTail(ctx context.Context) (*ledger.ChainTail, error) {
	query := `SELECT hash, block_number FROM ledger_transactions ORDER BY block_number DESC LIMIT 1`

	var tail ledger.ChainTail
	err := s.pool.QueryRow(ctx, query).Scan(&tail.Hash, &tail.BlockNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chain tail: %w", err)
	}
	return &tail, nil
}

// ListTransactions returns the whole chain ordered by block number.
func (s *Store) ListTransactions(ctx context.Context) ([]*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions ORDER BY block_number ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListBatchTransactions returns one batch's records ordered by block number.
func (s *Store) ListBatchTransactions(ctx context.Context, batchID string) ([]*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE batch_id = $1 ORDER BY block_number ASC`

	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListBatchIDs returns the distinct batch identifiers present in the ledger.
func (s *Store) ListBatchIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT batch_id FROM ledger_transactions ORDER BY batch_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list batch ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan batch id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batch ids: %w", err)
	}
	return ids, nil
}

// GetTransactionStats computes the ledger-wide aggregates inside one
// repeatable-read read-only transaction so all counters describe the same
// snapshot of the chain.
func (s *Store) GetTransactionStats(ctx context.Context) (*ledger.StoreStats, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin stats transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stats := &ledger.StoreStats{
		TransactionTypeBreakdown: make(map[ledger.TransactionType]int64),
	}

	err = tx.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT batch_id),
		       COALESCE(SUM(quantity) FILTER (WHERE transaction_type = 'transfer'), 0)
		FROM ledger_transactions`).
		Scan(&stats.TotalBlocks, &stats.UniqueBatches, &stats.TotalQuantityTransferred)
	if err != nil {
		return nil, fmt.Errorf("aggregate totals: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT to_entity_id AS entity_id FROM ledger_transactions
			UNION
			SELECT from_entity_id FROM ledger_transactions WHERE from_entity_id IS NOT NULL
		) entities`).
		Scan(&stats.ActiveEntities)
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT transaction_type, COUNT(*)
		FROM ledger_transactions
		GROUP BY transaction_type`)
	if err != nil {
		return nil, fmt.Errorf("type breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			txType string
			count  int64
		)
		if err := rows.Scan(&txType, &count); err != nil {
			return nil, fmt.Errorf("scan type breakdown: %w", err)
		}
		stats.TransactionTypeBreakdown[ledger.TransactionType(txType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("type breakdown: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit stats transaction: %w", err)
	}
	return stats, nil
}

// Helper functions to convert between Postgres rows and domain types

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var (
		tx              ledger.Transaction
		fromEntity      pgtype.Text
		txType          string
		transactionDate pgtype.Timestamptz
		shipping        []byte
		temperature     []byte
		signature       pgtype.Text
		notes           pgtype.Text
		createdAt       pgtype.Timestamptz
	)
	err := row.Scan(
		&tx.ID,
		&tx.Hash,
		&tx.PreviousHash,
		&tx.BlockNumber,
		&tx.BatchID,
		&fromEntity,
		&tx.ToEntityID,
		&txType,
		&tx.Quantity,
		&tx.UnitPrice,
		&tx.TotalAmount,
		&transactionDate,
		&shipping,
		&temperature,
		&signature,
		&notes,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	tx.FromEntityID = stringPtrFromPgtext(fromEntity)
	tx.Type = ledger.TransactionType(txType)
	tx.TransactionDate = transactionDate.Time
	tx.ShippingDetails = json.RawMessage(shipping)
	tx.TemperatureLog = json.RawMessage(temperature)
	tx.DigitalSignature = stringPtrFromPgtext(signature)
	tx.Notes = stringPtrFromPgtext(notes)
	tx.CreatedAt = createdAt.Time
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]*ledger.Transaction, error) {
	var txs []*ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

// jsonbOrNil maps an empty raw payload to SQL NULL instead of the JSON
// null literal.
func jsonbOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
