package dynamics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/custodia-labs/d365-mcp/internal/core/ports/driven"
)

// Ensure MetadataCache implements the interface.
var _ driven.MetadataSource = (*MetadataCache)(nil)

// DefaultMetadataTTL is how long a fetched $metadata document is reused.
const DefaultMetadataTTL = time.Hour

// metadataFetcher is the subset of ODataReader the cache needs.
type metadataFetcher interface {
	FetchMetadata(ctx context.Context) (string, error)
}

// MetadataCache keeps the $metadata document in memory. $metadata runs to tens
// of megabytes on Finance & Operations, so every schema lookup reuses it until
// the TTL lapses or Invalidate is called. A TTL of zero or less never expires.
type MetadataCache struct {
	fetcher metadataFetcher
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	// mu is held across the fetch so concurrent misses share one request.
	mu        sync.Mutex
	document  string
	fetchedAt time.Time
	cached    bool
}

// NewMetadataCache creates a cache in front of fetcher.
func NewMetadataCache(fetcher metadataFetcher, ttl time.Duration, logger zerolog.Logger) *MetadataCache {
	return &MetadataCache{
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Metadata returns the cached document, fetching it when missing or stale.
func (c *MetadataCache) Metadata(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached && (c.ttl <= 0 || c.now().Sub(c.fetchedAt) < c.ttl) {
		c.logger.Debug().Msg("using cached metadata")
		return c.document, nil
	}

	document, err := c.fetcher.FetchMetadata(ctx)
	if err != nil {
		return "", err
	}

	c.document = document
	c.fetchedAt = c.now()
	c.cached = true

	c.logger.Info().Int("size_kb", len(document)/1024).Msg("metadata cached")
	return document, nil
}

// Invalidate drops the cached document.
func (c *MetadataCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.document = ""
	c.cached = false
	c.logger.Info().Msg("metadata cache invalidated")
}
