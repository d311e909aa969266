// Package connectors assembles the OData access stack for a configured environment.
package connectors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/custodia-labs/d365-mcp/internal/config"
	"github.com/custodia-labs/d365-mcp/internal/connectors/microsoft"
	"github.com/custodia-labs/d365-mcp/internal/connectors/microsoft/dynamics"
	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

// Environment is one fully wired Dynamics 365 environment.
type Environment struct {
	Product   domain.Product
	Auth      *microsoft.Authenticator
	Limiter   *microsoft.RateLimiter
	Transport *microsoft.RetryingTransport
	Client    *dynamics.Client
	Metadata  *dynamics.MetadataCache
}

// EnvironmentBuilder builds an Environment for a validated configuration.
type EnvironmentBuilder func(cfg *config.Config, logger zerolog.Logger) (*Environment, error)

// Factory creates environments based on the configured product.
type Factory struct {
	mu       sync.RWMutex
	builders map[domain.Product]EnvironmentBuilder
}

// NewFactory creates a new factory with the built-in products registered.
func NewFactory() *Factory {
	f := &Factory{
		builders: make(map[domain.Product]EnvironmentBuilder),
	}
	f.registerDefaultBuilders()
	return f
}

func (f *Factory) registerDefaultBuilders() {
	f.Register(domain.ProductDataverse, buildEnvironment)
	f.Register(domain.ProductFinOps, buildEnvironment)
}

// Create validates cfg and builds the environment for its product.
func (f *Factory) Create(cfg *config.Config, logger zerolog.Logger) (*Environment, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration", domain.ErrNotConfigured)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	product := cfg.ProductType()
	f.mu.RLock()
	builder, ok := f.builders[product]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported product %s", domain.ErrInvalidInput, product)
	}

	return builder(cfg, logger)
}

// Register adds an environment builder for the given product.
func (f *Factory) Register(product domain.Product, builder EnvironmentBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[product] = builder
}

// SupportedProducts returns all registered products, sorted.
func (f *Factory) SupportedProducts() []domain.Product {
	f.mu.RLock()
	defer f.mu.RUnlock()
	products := make([]domain.Product, 0, len(f.builders))
	for p := range f.builders {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i] < products[j] })
	return products
}

func buildEnvironment(cfg *config.Config, logger zerolog.Logger) (*Environment, error) {
	product := cfg.ProductType()
	httpClient := microsoft.NewHTTPClient(cfg.InsecureSSL)
	if cfg.InsecureSSL {
		logger.Warn().Msg("TLS certificate verification is disabled")
	}

	authOpts := []microsoft.AuthOption{
		microsoft.WithAuthHTTPClient(httpClient),
		microsoft.WithAuthLogger(logger.With().Str("component", "auth").Logger()),
	}
	if cfg.TokenURL != "" {
		authOpts = append(authOpts, microsoft.WithTokenURL(cfg.TokenURL))
	}
	auth := microsoft.NewAuthenticator(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, authOpts...)

	limiter := microsoft.NewRateLimiter(product)
	transport := microsoft.NewRetryingTransport(
		cfg.MaxRetries,
		cfg.RetryDelayMs,
		microsoft.WithHTTPClient(httpClient),
		microsoft.WithRateLimiter(limiter),
		microsoft.WithLogger(logger.With().Str("component", "transport").Logger()),
	)

	client := dynamics.NewClient(
		cfg.Endpoint,
		product,
		auth,
		transport,
		dynamics.WithLogger(logger.With().Str("component", "odata").Logger()),
	)
	metadata := dynamics.NewMetadataCache(client, cfg.GetMetadataTTL(), logger.With().Str("component", "metadata").Logger())

	logger.Info().
		Str("product", string(product)).
		Str("endpoint", client.Endpoint()).
		Str("resource", client.Resource()).
		Msg("environment configured")

	return &Environment{
		Product:   product,
		Auth:      auth,
		Limiter:   limiter,
		Transport: transport,
		Client:    client,
		Metadata:  metadata,
	}, nil
}
