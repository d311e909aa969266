package microsoft

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/custodia-labs/d365-mcp/internal/core/domain"
	"github.com/custodia-labs/d365-mcp/internal/core/ports/driven"
)

// Ensure Authenticator implements the interface.
var _ driven.TokenProvider = (*Authenticator)(nil)

// Microsoft identity platform constants.
const (
	defaultAuthority = "https://login.microsoftonline.com"
	tokenPath        = "/oauth2/v2.0/token" //nolint:gosec // G101: Not credentials, OAuth endpoint path
)

// Authenticator acquires app-only tokens with the OAuth2 client-credentials grant.
type Authenticator struct {
	tenantID     string
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	cache        *TokenCache
	logger       zerolog.Logger
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithTokenURL overrides the token endpoint, e.g. for sovereign clouds or tests.
func WithTokenURL(tokenURL string) AuthOption {
	return func(a *Authenticator) {
		a.tokenURL = tokenURL
	}
}

// WithAuthHTTPClient sets the HTTP client used for token requests.
func WithAuthHTTPClient(client *http.Client) AuthOption {
	return func(a *Authenticator) {
		a.httpClient = client
	}
}

// WithTokenCache shares an existing cache.
func WithTokenCache(cache *TokenCache) AuthOption {
	return func(a *Authenticator) {
		a.cache = cache
	}
}

// WithAuthLogger sets the logger.
func WithAuthLogger(logger zerolog.Logger) AuthOption {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// NewAuthenticator creates an authenticator for an Azure AD app registration.
func NewAuthenticator(tenantID, clientID, clientSecret string, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		cache:        NewTokenCache(),
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TokenEndpoint returns the token URL for this tenant.
func (a *Authenticator) TokenEndpoint() string {
	if a.tokenURL != "" {
		return a.tokenURL
	}
	return defaultAuthority + "/" + a.tenantID + tokenPath
}

// GetToken returns a cached token for resource, exchanging credentials when the
// cache is empty or the token is about to expire.
func (a *Authenticator) GetToken(ctx context.Context, resource string) (string, error) {
	if token, ok := a.cache.Get(resource); ok {
		a.logger.Debug().Str("resource", resource).Msg("using cached token")
		return token, nil
	}

	return a.cache.GetOrRefresh(ctx, resource, func(ctx context.Context) (domain.CachedToken, error) {
		return a.exchange(ctx, resource)
	})
}

// ClearCache evicts the cached token so the next call exchanges again.
func (a *Authenticator) ClearCache() {
	a.cache.Clear()
}

// exchange performs the client-credentials token request.
func (a *Authenticator) exchange(ctx context.Context, resource string) (domain.CachedToken, error) {
	if err := a.checkCredentials(); err != nil {
		return domain.CachedToken{}, err
	}

	a.logger.Info().Str("resource", resource).Msg("acquiring new access token")

	cfg := clientcredentials.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		TokenURL:     a.TokenEndpoint(),
		Scopes:       []string{ScopeForResource(resource)},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, a.httpClient))
	if err != nil {
		authErr := classifyTokenError(err)
		a.logger.Error().Err(authErr).Str("resource", resource).Msg("token request failed")
		return domain.CachedToken{}, authErr
	}

	expiresAt := tok.Expiry
	if tok.ExpiresIn > 0 {
		expiresAt = a.cache.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	a.logger.Info().
		Str("resource", resource).
		Time("expires_at", expiresAt).
		Msg("token acquired")

	return domain.CachedToken{
		AccessToken: tok.AccessToken,
		ExpiresAt:   expiresAt,
	}, nil
}

// checkCredentials fails before any network call when the app registration is incomplete.
func (a *Authenticator) checkCredentials() error {
	var missing []string
	if a.tenantID == "" && a.tokenURL == "" {
		missing = append(missing, "tenant_id")
	}
	if a.clientID == "" {
		missing = append(missing, "client_id")
	}
	if a.clientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) == 0 {
		return nil
	}
	return &AuthError{Kind: AuthMissingCredentials, Detail: strings.Join(missing, ", ")}
}

// classifyTokenError maps oauth2 failures onto AuthError kinds.
func classifyTokenError(err error) *AuthError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &AuthError{
			Kind:   AuthTokenRequestFailed,
			Status: status,
			Body:   string(retrieveErr.Body),
			Err:    err,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{Kind: AuthTokenRequestFailed, Err: err}
	}

	return &AuthError{Kind: AuthParseError, Err: err}
}

// ScopeForResource returns the ".default" scope for a resource without doubling the slash.
func ScopeForResource(resource string) string {
	if strings.HasSuffix(resource, "/") {
		return resource + ".default"
	}
	return resource + "/.default"
}

// ResourceFromEndpoint derives the token resource from a service root URL.
// "https://org.crm.dynamics.com/api/data/v9.2/" becomes "https://org.crm.dynamics.com".
func ResourceFromEndpoint(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Hostname()
	}

	parts := strings.Split(endpoint, "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "/")
}
