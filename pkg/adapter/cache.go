package adapter

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/interfaces"
)

// CachedEmbedder memoizes embeddings by exact input text. Cached vectors are
// shared between callers and must not be modified.
type CachedEmbedder struct {
	embedder interfaces.Embedder
	cache    *ristretto.Cache[string, []float32]
}

// NewCachedEmbedder wraps embedder with a cache bounded to maxBytes of vectors
func NewCachedEmbedder(embedder interfaces.Embedder, maxBytes int64) (*CachedEmbedder, error) {
	if maxBytes <= 0 {
		return nil, goerr.New("cache size must be positive", goerr.V("max_bytes", maxBytes))
	}

	// Roughly 10x the expected number of entries for 768 dim vectors
	counters := maxBytes / (768 * 4) * 10
	if counters < 1000 {
		counters = 1000
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
	}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// Wait blocks until pending cache writes are applied
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
