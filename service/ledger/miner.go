package ledger

import (
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDifficulty is the number of leading hex zeros a mined hash
	// must carry.
	DefaultDifficulty = 3

	// DefaultMaxIterations bounds the nonce search. The miner is a tunable
	// work knob, not a security mechanism, so the cap is deliberately low.
	DefaultMaxIterations = 100000
)

// Miner searches the nonce space for a hash satisfying the difficulty
// target. The search is CPU-bound and synchronous; callers dispatch it off
// the read-serving path (the ledger writer goroutine does this).
type Miner struct {
	difficulty    int
	maxIterations int
}

// NewMiner returns a miner with the given difficulty (leading hex zeros)
// and iteration cap. Out-of-range values fall back to the defaults.
func NewMiner(difficulty, maxIterations int) *Miner {
	if difficulty < 0 {
		difficulty = DefaultDifficulty
	}
	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}
	return &Miner{difficulty: difficulty, maxIterations: maxIterations}
}

// MineResult is the outcome of one nonce search.
type MineResult struct {
	// Hash is the winning hash, or the last computed hash when the
	// iteration cap was reached.
	Hash string
	// Nonce is the search value that produced Hash.
	Nonce int64
	// Iterations is the number of hash attempts made.
	Iterations int
	// Exhausted is true when the cap was hit before satisfying the
	// difficulty. The result is still usable but carries lower assurance.
	Exhausted bool
}

// Mine hashes {baseHash, previousHash, nonce, attemptedAt} over increasing
// nonce values until the digest has the required leading-zero prefix or the
// iteration cap is hit. attemptedAt is part of the hashed material, so
// resubmitting the same logical transaction yields a different final hash;
// given identical inputs the search is fully deterministic.
func (m *Miner) Mine(baseHash, previousHash string, attemptedAt time.Time) MineResult {
	target := strings.Repeat("0", m.difficulty)
	attemptMillis := strconv.FormatInt(attemptedAt.UTC().UnixMilli(), 10)

	var (
		h     string
		nonce int64
	)
	for i := 0; i < m.maxIterations; i++ {
		nonce = int64(i)
		h = hashHex(baseHash + "|" + previousHash + "|" + strconv.FormatInt(nonce, 10) + "|" + attemptMillis)
		if strings.HasPrefix(h, target) {
			return MineResult{Hash: h, Nonce: nonce, Iterations: i + 1}
		}
	}
	return MineResult{Hash: h, Nonce: nonce, Iterations: m.maxIterations, Exhausted: true}
}
