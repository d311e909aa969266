package microsoft

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for Microsoft identity and Dynamics 365 responses.
var (
	// ErrUnauthorised indicates the access token is invalid or expired.
	ErrUnauthorised = errors.New("microsoft: unauthorised")

	// ErrForbidden indicates the app registration lacks permission for the resource.
	ErrForbidden = errors.New("microsoft: forbidden")

	// ErrNotFound indicates the requested entity set or record does not exist.
	ErrNotFound = errors.New("microsoft: not found")

	// ErrRateLimited indicates the request was throttled and the retry budget ran out.
	ErrRateLimited = errors.New("microsoft: rate limited")

	// ErrBadRequest indicates the request was malformed, usually an invalid query option.
	ErrBadRequest = errors.New("microsoft: bad request")

	// ErrServerError indicates a server-side error from Dynamics 365.
	ErrServerError = errors.New("microsoft: server error")

	// ErrTokenRequestFailed indicates the identity platform rejected the token request.
	ErrTokenRequestFailed = errors.New("microsoft: token request failed")

	// ErrMissingCredentials indicates tenant, client id or client secret is not set.
	ErrMissingCredentials = errors.New("microsoft: missing credentials")

	// ErrParse indicates a response body could not be decoded.
	ErrParse = errors.New("microsoft: unparseable response")
)

// WrapError converts an HTTP status code to an appropriate error.
func WrapError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorised
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		if statusCode >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// IsSuccess checks if the status code is one the transport returns to the caller.
func IsSuccess(statusCode int) bool {
	return statusCode == http.StatusOK ||
		statusCode == http.StatusCreated ||
		statusCode == http.StatusNoContent
}

// IsUnauthorised checks if the status code indicates an authentication failure.
func IsUnauthorised(statusCode int) bool {
	return statusCode == http.StatusUnauthorized
}

// IsRateLimited checks if the status code indicates rate limiting.
func IsRateLimited(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests
}

// IsNotFound checks if the status code indicates a missing resource.
func IsNotFound(statusCode int) bool {
	return statusCode == http.StatusNotFound
}

// IsRetryable checks if the status code is transient and can be retried.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// AuthErrorKind classifies an AuthError.
type AuthErrorKind int

const (
	// AuthTokenRequestFailed means the token endpoint answered with a failure status
	// or could not be reached.
	AuthTokenRequestFailed AuthErrorKind = iota + 1
	// AuthParseError means the token response could not be decoded.
	AuthParseError
	// AuthMissingCredentials means the authenticator was not configured.
	AuthMissingCredentials
)

// AuthError is returned by the Authenticator.
type AuthError struct {
	Kind AuthErrorKind
	// Status is the token endpoint's HTTP status, zero if no response was received.
	Status int
	// Body is the token endpoint's response body, possibly truncated.
	Body string
	// Detail names what is missing for AuthMissingCredentials.
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case AuthTokenRequestFailed:
		if e.Status > 0 {
			return fmt.Sprintf("token request failed: status %d: %s", e.Status, e.Body)
		}
		return fmt.Sprintf("token request failed: %v", e.Err)
	case AuthParseError:
		return fmt.Sprintf("token parse error: %v", e.Err)
	case AuthMissingCredentials:
		return "missing credentials: " + e.Detail
	default:
		return fmt.Sprintf("authentication error: %v", e.Err)
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels so callers can use errors.Is.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrTokenRequestFailed:
		return e.Kind == AuthTokenRequestFailed
	case ErrMissingCredentials:
		return e.Kind == AuthMissingCredentials
	case ErrParse:
		return e.Kind == AuthParseError
	case ErrUnauthorised:
		return e.Status == http.StatusUnauthorized
	default:
		return false
	}
}

// ODataErrorKind classifies an ODataError.
type ODataErrorKind int

const (
	// ODataAuth wraps an AuthError raised while acquiring a token.
	ODataAuth ODataErrorKind = iota + 1
	// ODataRateLimited means 429 responses exhausted the retry budget.
	ODataRateLimited
	// ODataServerError covers 5xx after retries and every non-retried failure status.
	ODataServerError
	// ODataNotFound means a 404 response or an entity missing from $metadata.
	ODataNotFound
	// ODataParse means a JSON or XML body could not be decoded.
	ODataParse
	// ODataTransport means the request never produced a response.
	ODataTransport
)

// ODataError is returned by the transport and the OData client.
type ODataError struct {
	Kind ODataErrorKind
	// Status is the HTTP status for ODataServerError.
	Status int
	// RetryAfter is the server-requested wait, in seconds, for ODataRateLimited.
	RetryAfter uint64
	// Detail is the response body or a diagnostic message.
	Detail string
	Err    error
}

func (e *ODataError) Error() string {
	switch e.Kind {
	case ODataAuth:
		return fmt.Sprintf("authentication error: %v", e.Err)
	case ODataRateLimited:
		return fmt.Sprintf("rate limited (429): retry after %d seconds", e.RetryAfter)
	case ODataServerError:
		return fmt.Sprintf("server error (%d): %s", e.Status, e.Detail)
	case ODataNotFound:
		return "not found: " + e.Detail
	case ODataParse:
		if e.Err != nil {
			return fmt.Sprintf("parse error: %s: %v", e.Detail, e.Err)
		}
		return "parse error: " + e.Detail
	case ODataTransport:
		return fmt.Sprintf("http error: %v", e.Err)
	default:
		return "odata error: " + e.Detail
	}
}

func (e *ODataError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels so callers can use errors.Is.
// Server errors match the sentinel for their specific status as well.
func (e *ODataError) Is(target error) bool {
	switch e.Kind {
	case ODataRateLimited:
		return target == ErrRateLimited
	case ODataNotFound:
		return target == ErrNotFound
	case ODataParse:
		return target == ErrParse
	case ODataServerError:
		if target == ErrServerError {
			return e.Status >= 500
		}
		wrapped := WrapError(e.Status)
		return wrapped != nil && target == wrapped
	default:
		return false
	}
}

// WrapAuthError reports a token acquisition failure as an ODataError.
func WrapAuthError(err error) *ODataError {
	return &ODataError{Kind: ODataAuth, Err: err}
}
