package microsoft

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   error
	}{
		{
			name:       "unauthorised",
			statusCode: http.StatusUnauthorized,
			expected:   ErrUnauthorised,
		},
		{
			name:       "forbidden",
			statusCode: http.StatusForbidden,
			expected:   ErrForbidden,
		},
		{
			name:       "not found",
			statusCode: http.StatusNotFound,
			expected:   ErrNotFound,
		},
		{
			name:       "rate limited",
			statusCode: http.StatusTooManyRequests,
			expected:   ErrRateLimited,
		},
		{
			name:       "bad request",
			statusCode: http.StatusBadRequest,
			expected:   ErrBadRequest,
		},
		{
			name:       "internal server error",
			statusCode: http.StatusInternalServerError,
			expected:   ErrServerError,
		},
		{
			name:       "service unavailable",
			statusCode: http.StatusServiceUnavailable,
			expected:   ErrServerError,
		},
		{
			name:       "success returns nil",
			statusCode: http.StatusOK,
			expected:   nil,
		},
		{
			name:       "no content returns nil",
			statusCode: http.StatusNoContent,
			expected:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapError(tt.statusCode)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsSuccess(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent} {
		assert.True(t, IsSuccess(status), "status %d", status)
	}
	for _, status := range []int{http.StatusAccepted, http.StatusMovedPermanently, http.StatusBadRequest} {
		assert.False(t, IsSuccess(status), "status %d", status)
	}
}

func TestIsUnauthorised(t *testing.T) {
	assert.True(t, IsUnauthorised(http.StatusUnauthorized))
	assert.False(t, IsUnauthorised(http.StatusOK))
	assert.False(t, IsUnauthorised(http.StatusForbidden))
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(http.StatusTooManyRequests))
	assert.False(t, IsRateLimited(http.StatusOK))
	assert.False(t, IsRateLimited(http.StatusUnauthorized))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(http.StatusNotFound))
	assert.False(t, IsNotFound(http.StatusOK))
	assert.False(t, IsNotFound(http.StatusUnauthorized))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   bool
	}{
		{name: "rate limited is retryable", statusCode: http.StatusTooManyRequests, expected: true},
		{name: "internal server error is retryable", statusCode: http.StatusInternalServerError, expected: true},
		{name: "service unavailable is retryable", statusCode: http.StatusServiceUnavailable, expected: true},
		{name: "unauthorised is not retryable", statusCode: http.StatusUnauthorized, expected: false},
		{name: "not found is not retryable", statusCode: http.StatusNotFound, expected: false},
		{name: "bad request is not retryable", statusCode: http.StatusBadRequest, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.statusCode))
		})
	}
}

func TestAuthError(t *testing.T) {
	tests := []struct {
		name    string
		err     *AuthError
		message string
		is      []error
		isNot   []error
	}{
		{
			name:    "token request rejected",
			err:     &AuthError{Kind: AuthTokenRequestFailed, Status: 401, Body: `{"error":"invalid_client"}`},
			message: `token request failed: status 401: {"error":"invalid_client"}`,
			is:      []error{ErrTokenRequestFailed, ErrUnauthorised},
			isNot:   []error{ErrParse, ErrMissingCredentials},
		},
		{
			name:    "token endpoint unreachable",
			err:     &AuthError{Kind: AuthTokenRequestFailed, Err: errors.New("dial tcp: refused")},
			message: "token request failed: dial tcp: refused",
			is:      []error{ErrTokenRequestFailed},
			isNot:   []error{ErrUnauthorised},
		},
		{
			name:    "parse error",
			err:     &AuthError{Kind: AuthParseError, Err: errors.New("unexpected EOF")},
			message: "token parse error: unexpected EOF",
			is:      []error{ErrParse},
			isNot:   []error{ErrTokenRequestFailed},
		},
		{
			name:    "missing credentials",
			err:     &AuthError{Kind: AuthMissingCredentials, Detail: "client_secret"},
			message: "missing credentials: client_secret",
			is:      []error{ErrMissingCredentials},
			isNot:   []error{ErrTokenRequestFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())

			wrapped := fmt.Errorf("get token: %w", tt.err)
			for _, target := range tt.is {
				assert.ErrorIs(t, wrapped, target)
			}
			for _, target := range tt.isNot {
				assert.NotErrorIs(t, wrapped, target)
			}
		})
	}
}

func TestODataError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ODataError
		message string
		is      []error
		isNot   []error
	}{
		{
			name:    "rate limited",
			err:     &ODataError{Kind: ODataRateLimited, Status: 429, RetryAfter: 5},
			message: "rate limited (429): retry after 5 seconds",
			is:      []error{ErrRateLimited},
			isNot:   []error{ErrServerError},
		},
		{
			name:    "server error",
			err:     &ODataError{Kind: ODataServerError, Status: 503, Detail: "unavailable"},
			message: "server error (503): unavailable",
			is:      []error{ErrServerError},
			isNot:   []error{ErrNotFound},
		},
		{
			name:    "unretried client error matches its status sentinel",
			err:     &ODataError{Kind: ODataServerError, Status: 400, Detail: "bad $filter"},
			message: "server error (400): bad $filter",
			is:      []error{ErrBadRequest},
			isNot:   []error{ErrServerError},
		},
		{
			name:    "unauthorised response",
			err:     &ODataError{Kind: ODataServerError, Status: 401},
			message: "server error (401): ",
			is:      []error{ErrUnauthorised},
		},
		{
			name:    "not found",
			err:     &ODataError{Kind: ODataNotFound, Detail: "Entity 'widget' not found in metadata"},
			message: "not found: Entity 'widget' not found in metadata",
			is:      []error{ErrNotFound},
		},
		{
			name:    "parse error",
			err:     &ODataError{Kind: ODataParse, Detail: "decode page", Err: errors.New("invalid character")},
			message: "parse error: decode page: invalid character",
			is:      []error{ErrParse},
		},
		{
			name:    "wrapped auth error",
			err:     WrapAuthError(&AuthError{Kind: AuthMissingCredentials, Detail: "client_id"}),
			message: "authentication error: missing credentials: client_id",
			is:      []error{ErrMissingCredentials},
			isNot:   []error{ErrNotFound},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
			for _, target := range tt.is {
				assert.ErrorIs(t, tt.err, target)
			}
			for _, target := range tt.isNot {
				assert.NotErrorIs(t, tt.err, target)
			}
		})
	}
}

func TestWrapAuthError_As(t *testing.T) {
	authErr := &AuthError{Kind: AuthTokenRequestFailed, Status: 400, Body: "bad"}
	err := fmt.Errorf("fetch: %w", WrapAuthError(authErr))

	var target *AuthError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, 400, target.Status)

	var odataErr *ODataError
	assert.True(t, errors.As(err, &odataErr))
	assert.Equal(t, ODataAuth, odataErr.Kind)
}
