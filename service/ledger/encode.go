package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// candidate holds the logical fields of a block before mining. Its encoding
// is the hash input, so the field set and order here are part of the chain
// format and must not change.
type candidate struct {
	batchID      string
	fromEntityID string // empty when the sender is absent
	toEntityID   string
	txType       TransactionType
	quantity     int64
	unitPrice    int64
	date         time.Time
	blockNumber  int64
	previousHash string
	nonce        int64
}

// encode produces the canonical string representation of the candidate:
// fixed field order, "|"-separated, integers in decimal, timestamps as UTC
// Unix milliseconds. Two candidates with identical field values always
// encode identically, independent of platform or locale. Wall-clock capture
// time is deliberately excluded; date is the caller-supplied logical date.
func (c candidate) encode() string {
	return strings.Join([]string{
		c.batchID,
		c.fromEntityID,
		c.toEntityID,
		string(c.txType),
		strconv.FormatInt(c.quantity, 10),
		strconv.FormatInt(c.unitPrice, 10),
		strconv.FormatInt(c.date.UTC().UnixMilli(), 10),
		strconv.FormatInt(c.blockNumber, 10),
		c.previousHash,
		strconv.FormatInt(c.nonce, 10),
	}, "|")
}

// hash returns the hex SHA-256 digest of the canonical encoding.
func (c candidate) hash() string {
	return hashHex(c.encode())
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
