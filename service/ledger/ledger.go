package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// maxAppendAttempts bounds retries when an append loses a block-number
// race to another writer process.
const maxAppendAttempts = 3

// MetricsRecorder receives write-path measurements. It is satisfied by
// the service metrics collector; a nil recorder disables recording.
type MetricsRecorder interface {
	RecordMining(exhausted bool, iterations int, duration float64)
	RecordTransactionAppended(transactionType string, mined bool)
	RecordAppendRetry(reason string)
}

// Ledger is the chain-extending write authority plus the read-only query
// surface. All writes funnel through a single writer goroutine so that no
// two submissions observe the same chain tail; reads go straight to the
// store and never wait on the writer.
type Ledger struct {
	store   Store
	miner   *Miner
	logger  *slog.Logger
	metrics MetricsRecorder

	submitCh chan *appendRequest
	done     chan struct{}
	running  atomic.Bool

	// Writer-goroutine state. The cached tail saves a store round-trip per
	// append; the database's unique block_number constraint still guards
	// against other writer processes.
	tail       *ChainTail
	tailLoaded bool
}

// Options tunes the mining step.
type Options struct {
	// Difficulty is the required number of leading hex zeros.
	Difficulty int
	// MaxIterations caps the nonce search per transaction.
	MaxIterations int
	// Metrics, when set, receives write-path measurements.
	Metrics MetricsRecorder
}

// New creates a Ledger over the given store. Call Start before submitting
// transactions; reads work without it.
func New(store Store, opts Options, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ledger{
		store:    store,
		miner:    NewMiner(opts.Difficulty, opts.MaxIterations),
		logger:   logger,
		metrics:  opts.Metrics,
		submitCh: make(chan *appendRequest),
		done:     make(chan struct{}),
	}
}

// CreateTransactionInput carries the caller-supplied fields of a new
// record. Hash, previous hash, and block number are assigned by the chain.
type CreateTransactionInput struct {
	BatchID          string
	FromEntityID     *string
	ToEntityID       string
	Type             TransactionType
	Quantity         int64
	UnitPrice        int64
	TransactionDate  time.Time
	ShippingDetails  json.RawMessage
	TemperatureLog   json.RawMessage
	DigitalSignature *string
	Notes            *string
}

// CreateTransactionResult is the outcome of a successful append.
type CreateTransactionResult struct {
	Transaction *Transaction
	// Mined is false when the nonce search hit its iteration cap and the
	// record was written with the last computed hash. Such records carry
	// lower assurance for audit purposes.
	Mined bool
	// Iterations is the number of hash attempts the miner made.
	Iterations int
}

type appendRequest struct {
	input CreateTransactionInput
	reply chan appendReply
}

type appendReply struct {
	result *CreateTransactionResult
	err    error
}

// Start launches the writer goroutine. It returns immediately; the writer
// runs until ctx is canceled. Starting twice is a no-op.
func (l *Ledger) Start(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	go l.run(ctx)
}

func (l *Ledger) run(ctx context.Context) {
	defer close(l.done)
	l.logger.Info("ledger writer started",
		"difficulty", l.miner.difficulty,
		"max_iterations", l.miner.maxIterations)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("ledger writer stopped")
			return
		case req := <-l.submitCh:
			result, err := l.append(ctx, req.input)
			req.reply <- appendReply{result: result, err: err}
		}
	}
}

// CreateTransaction validates the input, hands it to the writer goroutine,
// and waits for the mined, persisted record. Validation failures are
// reported before any hashing or mining occurs. If ctx is canceled after
// the submission reached the writer, the append may still complete.
func (l *Ledger) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*CreateTransactionResult, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}
	if !l.running.Load() {
		return nil, ErrWriterStopped
	}

	req := &appendRequest{input: input, reply: make(chan appendReply, 1)}
	select {
	case l.submitCh <- req:
	case <-l.done:
		return nil, ErrWriterStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.result, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func validateInput(input *CreateTransactionInput) error {
	if strings.TrimSpace(input.BatchID) == "" {
		return fmt.Errorf("%w: batch_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.ToEntityID) == "" {
		return fmt.Errorf("%w: to_entity_id is required", ErrInvalidInput)
	}
	if !input.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, input.Type)
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if input.UnitPrice < 0 {
		return fmt.Errorf("%w: unit_price must not be negative", ErrInvalidInput)
	}
	if input.TransactionDate.IsZero() {
		return fmt.Errorf("%w: transaction_date is required", ErrInvalidInput)
	}
	if input.FromEntityID != nil && strings.TrimSpace(*input.FromEntityID) == "" {
		input.FromEntityID = nil
	}
	return nil
}

// append runs on the writer goroutine: read the tail, assign the next
// block number, mine, persist. On a block-number conflict (another writer
// process won the race) it refreshes the tail and retries the whole
// sequence.
func (l *Ledger) append(ctx context.Context, input CreateTransactionInput) (*CreateTransactionResult, error) {
	if !l.tailLoaded {
		tail, err := l.store.GetChainTail(ctx)
		if err != nil {
			return nil, &ChainWriteError{Err: fmt.Errorf("read chain tail: %w", err)}
		}
		l.tail, l.tailLoaded = tail, true
	}

	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		previousHash, blockNumber := GenesisHash, int64(1)
		if l.tail != nil {
			previousHash, blockNumber = l.tail.Hash, l.tail.BlockNumber+1
		}

		fromEntity := ""
		if input.FromEntityID != nil {
			fromEntity = *input.FromEntityID
		}
		base := candidate{
			batchID:      input.BatchID,
			fromEntityID: fromEntity,
			toEntityID:   input.ToEntityID,
			txType:       input.Type,
			quantity:     input.Quantity,
			unitPrice:    input.UnitPrice,
			date:         input.TransactionDate,
			blockNumber:  blockNumber,
			previousHash: previousHash,
		}.hash()

		mineStart := time.Now()
		mined := l.miner.Mine(base, previousHash, mineStart.UTC())
		if l.metrics != nil {
			l.metrics.RecordMining(mined.Exhausted, mined.Iterations, time.Since(mineStart).Seconds())
		}
		if mined.Exhausted {
			l.logger.Warn("mining iteration cap exhausted, writing lower-assurance hash",
				"block_number", blockNumber,
				"batch_id", input.BatchID,
				"iterations", mined.Iterations)
		}

		tx, err := l.store.AppendTransaction(ctx, AppendTransactionParams{
			Hash:             mined.Hash,
			PreviousHash:     previousHash,
			BlockNumber:      blockNumber,
			BatchID:          input.BatchID,
			FromEntityID:     input.FromEntityID,
			ToEntityID:       input.ToEntityID,
			Type:             input.Type,
			Quantity:         input.Quantity,
			UnitPrice:        input.UnitPrice,
			TotalAmount:      input.Quantity * input.UnitPrice,
			TransactionDate:  input.TransactionDate,
			ShippingDetails:  input.ShippingDetails,
			TemperatureLog:   input.TemperatureLog,
			DigitalSignature: input.DigitalSignature,
			Notes:            input.Notes,
		})
		if errors.Is(err, ErrBlockNumberConflict) {
			lastErr = err
			if l.metrics != nil {
				l.metrics.RecordAppendRetry("block_number_conflict")
			}
			l.logger.Warn("block number conflict, refreshing chain tail",
				"block_number", blockNumber,
				"attempt", attempt+1)
			tail, terr := l.store.GetChainTail(ctx)
			if terr != nil {
				return nil, &ChainWriteError{BlockNumber: blockNumber, Err: fmt.Errorf("refresh chain tail: %w", terr)}
			}
			l.tail = tail
			continue
		}
		if err != nil {
			return nil, &ChainWriteError{BlockNumber: blockNumber, Err: err}
		}

		l.tail = &ChainTail{Hash: tx.Hash, BlockNumber: tx.BlockNumber}
		if l.metrics != nil {
			l.metrics.RecordTransactionAppended(string(tx.Type), !mined.Exhausted)
		}
		l.logger.Debug("transaction appended",
			"block_number", tx.BlockNumber,
			"batch_id", tx.BatchID,
			"transaction_type", tx.Type,
			"mined", !mined.Exhausted)
		return &CreateTransactionResult{
			Transaction: tx,
			Mined:       !mined.Exhausted,
			Iterations:  mined.Iterations,
		}, nil
	}
	return nil, &ChainWriteError{Err: fmt.Errorf("write contention not resolved after %d attempts: %w", maxAppendAttempts, lastErr)}
}

// VerifyGlobalChain replays the full chain and checks every link.
func (l *Ledger) VerifyGlobalChain(ctx context.Context) (*GlobalVerification, error) {
	txs, err := l.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return verifyGlobal(txs), nil
}

// VerifyBatchChain checks continuity within one batch's filtered view.
func (l *Ledger) VerifyBatchChain(ctx context.Context, batchID string) (*BatchVerification, error) {
	txs, err := l.store.ListBatchTransactions(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch transactions: %w", err)
	}
	return verifyBatch(txs), nil
}

// GetSupplyChainHistory returns a batch's ordered transactions plus the
// batch-level integrity result.
func (l *Ledger) GetSupplyChainHistory(ctx context.Context, batchID string) (*BatchHistory, error) {
	txs, err := l.store.ListBatchTransactions(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch transactions: %w", err)
	}
	return &BatchHistory{
		BatchID:           batchID,
		TotalTransactions: len(txs),
		Transactions:      txs,
		ChainIntegrity:    verifyBatch(txs),
	}, nil
}

// DetectAnomalies sweeps one batch for quantity, timeline, and cold-chain
// violations and scores the batch's risk.
func (l *Ledger) DetectAnomalies(ctx context.Context, batchID string) (*AnomalyReport, error) {
	txs, err := l.store.ListBatchTransactions(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch transactions: %w", err)
	}
	return detectAnomalies(batchID, txs), nil
}

// GetLedgerStats returns ledger-wide aggregates plus the global chain
// integrity result.
func (l *Ledger) GetLedgerStats(ctx context.Context) (*Stats, error) {
	storeStats, err := l.store.GetTransactionStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("transaction stats: %w", err)
	}
	integrity, err := l.VerifyGlobalChain(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalBlocks:              storeStats.TotalBlocks,
		UniqueBatches:            storeStats.UniqueBatches,
		ActiveEntities:           storeStats.ActiveEntities,
		TotalQuantityTransferred: storeStats.TotalQuantityTransferred,
		TransactionTypeBreakdown: storeStats.TransactionTypeBreakdown,
		ChainIntegrity:           integrity,
	}, nil
}

// ListBatchIDs returns the distinct batch identifiers in the ledger.
func (l *Ledger) ListBatchIDs(ctx context.Context) ([]string, error) {
	ids, err := l.store.ListBatchIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batch ids: %w", err)
	}
	return ids, nil
}
