package ledger

import "fmt"

// verifyGlobal walks the full chain in block order and checks every
// previousHash link. The verifier is a detection tool, not a write-time
// guard: broken links are reported, never raised.
func verifyGlobal(txs []*Transaction) *GlobalVerification {
	result := &GlobalVerification{
		TotalBlocks: int64(len(txs)),
		BrokenLinks: []BrokenLink{},
	}
	for i, tx := range txs {
		expected := GenesisHash
		if i > 0 {
			expected = txs[i-1].Hash
		}
		if tx.PreviousHash != expected {
			result.BrokenLinks = append(result.BrokenLinks, BrokenLink{
				BlockNumber:          tx.BlockNumber,
				ExpectedPreviousHash: expected,
				ActualPreviousHash:   tx.PreviousHash,
			})
		}
	}
	result.IsValid = len(result.BrokenLinks) == 0
	return result
}

// verifyBatch checks one batch's transaction subsequence: it must begin
// with a manufacture record, and each record's previousHash must match the
// hash of its predecessor within the batch-filtered view. Other batches'
// blocks interleave between a batch's own blocks in the global chain, so
// this is a batch-local continuity check, not a proof against the global
// chain; verifyGlobal covers that.
func verifyBatch(txs []*Transaction) *BatchVerification {
	if len(txs) == 0 {
		return &BatchVerification{
			IsValid: false,
			Message: "no transactions found for batch",
		}
	}
	if txs[0].Type != TypeManufacture {
		return &BatchVerification{
			IsValid:          false,
			Message:          "batch chain does not start with manufacture",
			TransactionCount: len(txs),
		}
	}
	for i := 1; i < len(txs); i++ {
		if txs[i].PreviousHash != txs[i-1].Hash {
			return &BatchVerification{
				IsValid:          false,
				Message:          fmt.Sprintf("batch chain link broken at block %d", txs[i].BlockNumber),
				TransactionCount: len(txs),
			}
		}
	}
	return &BatchVerification{
		IsValid:          true,
		Message:          "batch chain intact",
		TransactionCount: len(txs),
	}
}
