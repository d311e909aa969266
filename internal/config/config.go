// Package config loads d365-mcp settings from a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
)

// ConfigPathEnv names the environment variable that points at the config file.
const ConfigPathEnv = "D365_MCP_CONFIG"

// Defaults.
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	DefaultPageSize     = 50
	DefaultMetadataTTL  = "1h"
	DefaultLogLevel     = "info"

	maxPageSize = 1000
)

// Config holds all configuration for d365-mcp.
type Config struct {
	// Endpoint is the OData service root, e.g. https://org.crm.dynamics.com/api/data/v9.2/
	Endpoint string `toml:"endpoint" env:"D365_ENDPOINT"`
	// Product is "dataverse" or "finops".
	Product string `toml:"product" env:"D365_PRODUCT"`

	TenantID     string `toml:"tenant_id" env:"AZURE_TENANT_ID"`
	ClientID     string `toml:"client_id" env:"AZURE_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"AZURE_CLIENT_SECRET"`
	// TokenURL overrides the Entra ID token endpoint, e.g. for sovereign clouds.
	TokenURL string `toml:"token_url" env:"D365_TOKEN_URL"`

	// MaxRetries is the total number of attempts per request.
	MaxRetries   int   `toml:"max_retries" env:"D365_MAX_RETRIES"`
	RetryDelayMs int64 `toml:"retry_delay_ms" env:"D365_RETRY_DELAY_MS"`
	// PageSize is the default $top for queries.
	PageSize    int    `toml:"page_size" env:"D365_PAGE_SIZE"`
	InsecureSSL bool   `toml:"insecure_ssl" env:"D365_INSECURE_SSL"`
	MetadataTTL string `toml:"metadata_ttl" env:"D365_METADATA_TTL"` // duration string, default "1h"

	// Entities are the entity sets this environment is expected to serve.
	Entities []string `toml:"entities" env:"D365_ENTITIES" envSeparator:","`

	Logging LoggingConfig `toml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level" env:"D365_LOG_LEVEL"`
}

// NewDefaultConfig returns a Config with defaults applied.
func NewDefaultConfig() *Config {
	return &Config{
		Product:      string(domain.ProductDataverse),
		MaxRetries:   DefaultMaxRetries,
		RetryDelayMs: DefaultRetryDelayMs,
		PageSize:     DefaultPageSize,
		MetadataTTL:  DefaultMetadataTTL,
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// DefaultPath returns ~/.d365-mcp/config.toml, or "" if the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".d365-mcp", "config.toml")
}

// ResolvePath picks the config file: the explicit path, then $D365_MCP_CONFIG,
// then the default location. explicit reports whether the file must exist.
func ResolvePath(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, true
	}
	return DefaultPath(), false
}

// Load reads defaults, then the TOML file, then environment overrides.
// A missing file is only an error when its path was given explicitly.
func Load(flagPath string) (*Config, error) {
	cfg := NewDefaultConfig()

	path, explicit := ResolvePath(flagPath)
	if path != "" {
		if err := cfg.loadFile(path, explicit); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, fmt.Errorf("%w: endpoint is required (D365_ENDPOINT)", domain.ErrNotConfigured))
	}
	if c.TenantID == "" && c.TokenURL == "" {
		errs = append(errs, fmt.Errorf("%w: tenant_id is required (AZURE_TENANT_ID)", domain.ErrNotConfigured))
	}
	if c.ClientID == "" {
		errs = append(errs, fmt.Errorf("%w: client_id is required (AZURE_CLIENT_ID)", domain.ErrNotConfigured))
	}
	if c.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("%w: client_secret is required (AZURE_CLIENT_SECRET)", domain.ErrNotConfigured))
	}
	if _, err := domain.ParseProduct(c.Product); err != nil {
		errs = append(errs, err)
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("%w: max_retries must be at least 1", domain.ErrInvalidInput))
	}
	if c.RetryDelayMs < 0 {
		errs = append(errs, fmt.Errorf("%w: retry_delay_ms must not be negative", domain.ErrInvalidInput))
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("%w: page_size must be between 1 and %d", domain.ErrInvalidInput, maxPageSize))
	}
	if c.MetadataTTL != "" {
		if _, err := time.ParseDuration(c.MetadataTTL); err != nil {
			errs = append(errs, fmt.Errorf("%w: metadata_ttl: %v", domain.ErrInvalidInput, err))
		}
	}

	return errors.Join(errs...)
}

// ProductType returns the parsed product, defaulting to Dataverse.
func (c *Config) ProductType() domain.Product {
	p, err := domain.ParseProduct(c.Product)
	if err != nil {
		return domain.ProductDataverse
	}
	return p
}

// GetMetadataTTL parses MetadataTTL, falling back to one hour.
func (c *Config) GetMetadataTTL() time.Duration {
	d, err := time.ParseDuration(c.MetadataTTL)
	if err != nil {
		return time.Hour
	}
	return d
}
