package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a submission rejected before any hashing or
	// mining occurred. Wrapped errors carry the specific field complaint.
	ErrInvalidInput = errors.New("invalid input")

	// ErrWriterStopped is returned when a transaction is submitted while
	// the ledger's writer goroutine is not running.
	ErrWriterStopped = errors.New("ledger writer is not running")

	// ErrBlockNumberConflict is returned by stores when an append lost a
	// race on block_number to another writer. The ledger retries the whole
	// read-tail/mine/append sequence on it.
	ErrBlockNumberConflict = errors.New("block number already exists")
)

// ChainWriteError reports that the serialized read-tail/append step failed
// and the transaction was not recorded. The submission may be retried as a
// whole.
type ChainWriteError struct {
	BlockNumber int64
	Err         error
}

func (e *ChainWriteError) Error() string {
	return fmt.Sprintf("chain write failed at block %d: %v", e.BlockNumber, e.Err)
}

func (e *ChainWriteError) Unwrap() error { return e.Err }
