// Package driven defines the ports the core uses to reach external systems.
package driven

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

// TokenProvider supplies bearer tokens for a resource.
// Implementations cache tokens and refresh them transparently.
type TokenProvider interface {
	// GetToken returns a valid access token for resource.
	GetToken(ctx context.Context, resource string) (string, error)

	// ClearCache evicts every cached token, forcing the next call to exchange again.
	ClearCache()
}

// ODataReader reads entities and schema from a Dynamics 365 OData service.
type ODataReader interface {
	// Endpoint returns the normalised service root URL (always ends with "/").
	Endpoint() string

	// Product returns the Dynamics product the endpoint belongs to.
	Product() domain.Product

	// FetchMetadata returns the raw $metadata document.
	FetchMetadata(ctx context.Context) (string, error)

	// FetchEntityPage fetches one page. A non-empty nextLink is requested verbatim
	// and opts is ignored.
	FetchEntityPage(ctx context.Context, entity, nextLink string, opts domain.QueryOptions) (*domain.PageResult, error)

	// FetchAllPages follows continuation links until exhausted and returns every record.
	FetchAllPages(ctx context.Context, entity string, opts domain.QueryOptions) ([]json.RawMessage, error)

	// GetEntity fetches one record by its already-formatted key.
	GetEntity(ctx context.Context, entity, key string) (json.RawMessage, error)
}

// MetadataSource returns a possibly cached $metadata document.
type MetadataSource interface {
	// Metadata returns the document, fetching it when the cache is empty or stale.
	Metadata(ctx context.Context) (string, error)

	// Invalidate drops the cached document.
	Invalidate()
}
