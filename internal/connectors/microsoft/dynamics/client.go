// Package dynamics provides a read-only client for the Dynamics 365 OData
// service: Dataverse Web API and Finance & Operations data entities.
package dynamics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/custodia-labs/d365-mcp/internal/connectors/microsoft"
	"github.com/custodia-labs/d365-mcp/internal/core/domain"
	"github.com/custodia-labs/d365-mcp/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.ODataReader = (*Client)(nil)

// Client reads entity sets, single records and $metadata from one environment.
// A token is requested before every HTTP call so refreshes mid-session are transparent.
type Client struct {
	endpoint  string
	resource  string
	product   domain.Product
	tokens    driven.TokenProvider
	transport *microsoft.RetryingTransport
	logger    zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithResource overrides the token resource derived from the endpoint.
func WithResource(resource string) ClientOption {
	return func(c *Client) {
		c.resource = resource
	}
}

// NewClient creates a client for the service root endpoint,
// e.g. "https://org.crm.dynamics.com/api/data/v9.2/".
func NewClient(
	endpoint string,
	product domain.Product,
	tokens driven.TokenProvider,
	transport *microsoft.RetryingTransport,
	opts ...ClientOption,
) *Client {
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	c := &Client{
		endpoint:  endpoint,
		resource:  microsoft.ResourceFromEndpoint(endpoint),
		product:   product,
		tokens:    tokens,
		transport: transport,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the service root, always ending with "/".
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Product returns the Dynamics product of the endpoint.
func (c *Client) Product() domain.Product {
	return c.product
}

// Resource returns the token resource used for this endpoint.
func (c *Client) Resource() string {
	return c.resource
}

// FetchMetadata returns the raw $metadata document. Invalid UTF-8 is replaced, never fatal.
func (c *Client) FetchMetadata(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, c.endpoint+"$metadata", microsoft.AcceptXML)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &microsoft.ODataError{Kind: microsoft.ODataParse, Detail: "read metadata", Err: err}
	}

	c.logger.Debug().Int("bytes", len(body)).Msg("fetched metadata")
	return strings.ToValidUTF8(string(body), "\uFFFD"), nil
}

// collectionResponse is the JSON envelope of an entity set response.
type collectionResponse struct {
	Context   string            `json:"@odata.context"`
	NextLink  string            `json:"@odata.nextLink"`
	Count     *int64            `json:"@odata.count"`
	DeltaLink string            `json:"@odata.deltaLink"`
	Value     []json.RawMessage `json:"value"`
}

// FetchEntityPage fetches one page of entity. A non-empty nextLink is requested
// verbatim since the server already encoded the query in it.
func (c *Client) FetchEntityPage(
	ctx context.Context,
	entity, nextLink string,
	opts domain.QueryOptions,
) (*domain.PageResult, error) {
	url := nextLink
	if url == "" {
		url = c.endpoint + entity + BuildQueryString(opts, c.product)
	}

	c.logger.Debug().Str("url", url).Msg("fetching page")

	resp, err := c.get(ctx, url, microsoft.AcceptJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page collectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &microsoft.ODataError{Kind: microsoft.ODataParse, Detail: "decode OData response", Err: err}
	}

	records := page.Value
	if records == nil {
		records = []json.RawMessage{}
	}

	c.logger.Debug().
		Int("records", len(records)).
		Bool("has_next", page.NextLink != "").
		Msg("fetched page")

	return &domain.PageResult{
		Records:    records,
		NextLink:   page.NextLink,
		TotalCount: page.Count,
		DeltaLink:  page.DeltaLink,
		Context:    page.Context,
	}, nil
}

// FetchAllPages follows nextLink until the last page and returns every record
// in order. There is no page or size cap; use it only on bounded sets.
func (c *Client) FetchAllPages(ctx context.Context, entity string, opts domain.QueryOptions) ([]json.RawMessage, error) {
	var (
		all      []json.RawMessage
		nextLink string
	)

	for page := 1; ; page++ {
		result, err := c.FetchEntityPage(ctx, entity, nextLink, opts)
		if err != nil {
			return nil, err
		}

		c.logger.Info().
			Str("entity", entity).
			Int("page", page).
			Int("records", len(result.Records)).
			Msg("fetched page")

		all = append(all, result.Records...)

		if !result.HasMore() {
			break
		}
		nextLink = result.NextLink
	}

	c.logger.Info().Str("entity", entity).Int("total", len(all)).Msg("fetched all pages")

	if all == nil {
		all = []json.RawMessage{}
	}
	return all, nil
}

// GetEntity fetches {endpoint}{entity}({key}). key must already be formatted,
// e.g. single-quoted when it is a GUID.
func (c *Client) GetEntity(ctx context.Context, entity, key string) (json.RawMessage, error) {
	resp, err := c.get(ctx, c.endpoint+entity+"("+key+")", microsoft.AcceptJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var record json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, &microsoft.ODataError{Kind: microsoft.ODataParse, Detail: "decode entity", Err: err}
	}
	return record, nil
}

// get acquires a token and runs the request through the retrying transport.
// A 401 from the service evicts cached tokens so the next call exchanges again.
func (c *Client) get(ctx context.Context, url string, accept microsoft.Accept) (*http.Response, error) {
	token, err := c.tokens.GetToken(ctx, c.resource)
	if err != nil {
		return nil, microsoft.WrapAuthError(err)
	}

	resp, err := c.transport.Execute(ctx, url, token, accept)
	if err != nil {
		if errors.Is(err, microsoft.ErrUnauthorised) {
			c.logger.Warn().Str("resource", c.resource).Msg("token rejected, clearing cache")
			c.tokens.ClearCache()
		}
		return nil, err
	}
	return resp, nil
}
