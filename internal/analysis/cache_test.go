package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvedder/gambit/internal/models"
	"github.com/rvedder/gambit/internal/uci"
)

func TestCacheUpsertKeepsDeeper(t *testing.T) {
	cache := NewCache()

	cache.Upsert(models.Evaluation{FEN: uci.StartPos, Depth: 12, ScoreCP: 30})
	cache.Upsert(models.Evaluation{FEN: uci.StartPos, Depth: 8, ScoreCP: 99})

	found, ok := cache.Lookup(uci.StartPos)
	require.True(t, ok)
	assert.Equal(t, 12, found.Depth)
	assert.Equal(t, 30, found.ScoreCP)

	cache.Upsert(models.Evaluation{FEN: uci.StartPos, Depth: 20, ScoreCP: 25})

	found, ok = cache.Lookup(uci.StartPos)
	require.True(t, ok)
	assert.Equal(t, 20, found.Depth)
}

func TestCacheBulkUpsert(t *testing.T) {
	cache := NewCache()

	cache.BulkUpsert([]models.Evaluation{
		{FEN: "fen-a", Depth: 10},
		{FEN: "fen-b", Depth: 15},
	})

	_, ok := cache.Lookup("fen-a")
	assert.True(t, ok)
	_, ok = cache.Lookup("fen-b")
	assert.True(t, ok)
	_, ok = cache.Lookup("fen-c")
	assert.False(t, ok)
}

func TestCacheGetMissing(t *testing.T) {
	cache := NewCache()
	cache.Upsert(models.Evaluation{FEN: "fen-a", Depth: 10})

	missing := cache.GetMissing([]string{"fen-a", "fen-b", "fen-c"})
	assert.Equal(t, []string{"fen-b", "fen-c"}, missing)
}
