package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinerMine(t *testing.T) {
	attemptedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	base := hashHex("base")
	prev := hashHex("prev")

	t.Run("satisfies difficulty target", func(t *testing.T) {
		m := NewMiner(2, 100000)
		res := m.Mine(base, prev, attemptedAt)
		require.False(t, res.Exhausted)
		assert.True(t, strings.HasPrefix(res.Hash, "00"))
		assert.Greater(t, res.Iterations, 0)
	})

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		m := NewMiner(2, 100000)
		a := m.Mine(base, prev, attemptedAt)
		b := m.Mine(base, prev, attemptedAt)
		assert.Equal(t, a, b)
	})

	t.Run("attempt timestamp is part of the hashed material", func(t *testing.T) {
		m := NewMiner(1, 100000)
		a := m.Mine(base, prev, attemptedAt)
		b := m.Mine(base, prev, attemptedAt.Add(time.Millisecond))
		assert.NotEqual(t, a.Hash, b.Hash)
	})

	t.Run("difficulty zero accepts the first attempt", func(t *testing.T) {
		m := NewMiner(0, 100000)
		res := m.Mine(base, prev, attemptedAt)
		assert.False(t, res.Exhausted)
		assert.Equal(t, 1, res.Iterations)
		assert.Equal(t, int64(0), res.Nonce)
	})

	t.Run("iteration cap returns last hash as exhausted", func(t *testing.T) {
		// 64 leading zeros cannot occur; the cap must trip.
		m := NewMiner(64, 50)
		res := m.Mine(base, prev, attemptedAt)
		assert.True(t, res.Exhausted)
		assert.Equal(t, 50, res.Iterations)
		assert.Equal(t, int64(49), res.Nonce)
		assert.Len(t, res.Hash, 64)
	})

	t.Run("out of range settings fall back to defaults", func(t *testing.T) {
		m := NewMiner(-1, 0)
		assert.Equal(t, DefaultDifficulty, m.difficulty)
		assert.Equal(t, DefaultMaxIterations, m.maxIterations)
	})
}
