package microsoft

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

// TokenCache holds at most one bearer token per resource.
//
// Reads share a lock. Refreshes take the exclusive lock and re-check the cache
// before exchanging, so callers that queued behind an in-flight exchange reuse
// its token instead of issuing their own.
type TokenCache struct {
	mu     sync.RWMutex
	tokens map[string]domain.CachedToken
	now    func() time.Time
}

// NewTokenCache creates an empty cache using the wall clock.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens: make(map[string]domain.CachedToken),
		now:    time.Now,
	}
}

// Get returns the cached token for resource if it is still valid.
func (c *TokenCache) Get(resource string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.tokens[resource]
	if !ok || !cached.ValidAt(c.now()) {
		return "", false
	}
	return cached.AccessToken, true
}

// GetOrRefresh returns a valid cached token or calls exchange to obtain one.
// exchange runs while the exclusive lock is held; at most one exchange per cache
// is in flight at any time.
func (c *TokenCache) GetOrRefresh(
	ctx context.Context,
	resource string,
	exchange func(ctx context.Context) (domain.CachedToken, error),
) (string, error) {
	if token, ok := c.Get(resource); ok {
		return token, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if cached, ok := c.tokens[resource]; ok && cached.ValidAt(c.now()) {
		return cached.AccessToken, nil
	}

	fresh, err := exchange(ctx)
	if err != nil {
		return "", err
	}

	c.tokens[resource] = fresh
	return fresh.AccessToken, nil
}

// Clear evicts every cached token.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = make(map[string]domain.CachedToken)
}
