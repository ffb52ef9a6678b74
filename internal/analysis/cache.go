package analysis

import (
	"sync"

	"github.com/rvedder/gambit/internal/models"
)

// Cache keeps the best known evaluation per position, so positions are not
// recomputed and book lookups are not repeated.
type Cache struct {
	mu   sync.Mutex
	data map[string]models.Evaluation
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]models.Evaluation),
	}
}

// Upsert adds or updates an entry if it carries more reliable information.
func (c *Cache) Upsert(evaluation models.Evaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.upsertIfDeeper(evaluation)
}

// BulkUpsert works like Upsert, but for multiple evaluations.
func (c *Cache) BulkUpsert(evaluations []models.Evaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, evaluation := range evaluations {
		c.upsertIfDeeper(evaluation)
	}
}

// upsertIfDeeper does an actual upsert. It assumes mu is locked.
func (c *Cache) upsertIfDeeper(evaluation models.Evaluation) {
	found, ok := c.data[evaluation.FEN]

	if !ok || evaluation.Depth > found.Depth {
		c.data[evaluation.FEN] = evaluation
	}
}

// Lookup returns the stored evaluation for a position, if any.
func (c *Cache) Lookup(fen string) (models.Evaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evaluation, ok := c.data[fen]
	return evaluation, ok
}

// GetMissing returns the positions that are not in the cache.
func (c *Cache) GetMissing(fens []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	missing := make([]string, 0, len(fens))
	for _, fen := range fens {
		if _, ok := c.data[fen]; !ok {
			missing = append(missing, fen)
		}
	}

	return missing
}
