package microsoft

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a single HTTP call. $metadata documents run to tens of megabytes.
	DefaultTimeout = 120 * time.Second

	// maxErrorBody caps how much of a failed response is kept for diagnostics.
	maxErrorBody = 64 << 10
)

// Accept selects the response representation requested from the service.
type Accept int

const (
	// AcceptJSON requests an OData JSON payload with annotations.
	AcceptJSON Accept = iota
	// AcceptXML requests a CSDL document; used for $metadata.
	AcceptXML
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// attemptState is a state of the retry state machine.
type attemptState int

const (
	stateAttempting attemptState = iota
	stateSuccess
	stateRetryScheduled
	stateFailed
)

func (s attemptState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateSuccess:
		return "success"
	case stateRetryScheduled:
		return "retry_scheduled"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// decision is the outcome of classifying one response.
type decision struct {
	state attemptState
	// wait is how long to sleep before the next attempt.
	wait time.Duration
	// nextDelayMs is the backoff delay carried into the next attempt.
	nextDelayMs int64
	err         *ODataError
}

// classify maps a response to the next state. Attempts are numbered from 1;
// the budget is exhausted once attempt reaches maxRetries.
func classify(status int, header http.Header, body []byte, attempt, maxRetries int, delayMs int64) decision {
	exhausted := attempt >= maxRetries

	switch {
	case IsSuccess(status):
		return decision{state: stateSuccess, nextDelayMs: delayMs}

	case IsRateLimited(status):
		retryAfter := parseRetryAfter(header, delayMs)
		if exhausted {
			return decision{
				state: stateFailed,
				err:   &ODataError{Kind: ODataRateLimited, Status: status, RetryAfter: retryAfter},
			}
		}
		return decision{
			state:       stateRetryScheduled,
			wait:        time.Duration(retryAfter) * time.Second,
			nextDelayMs: delayMs * 2,
		}

	case IsNotFound(status):
		return decision{
			state: stateFailed,
			err:   &ODataError{Kind: ODataNotFound, Status: status, Detail: string(body)},
		}

	case IsRetryable(status):
		if exhausted {
			return decision{
				state: stateFailed,
				err:   &ODataError{Kind: ODataServerError, Status: status, Detail: string(body)},
			}
		}
		return decision{
			state:       stateRetryScheduled,
			wait:        time.Duration(delayMs) * time.Millisecond,
			nextDelayMs: delayMs * 2,
		}

	default:
		return decision{
			state: stateFailed,
			err:   &ODataError{Kind: ODataServerError, Status: status, Detail: string(body)},
		}
	}
}

// parseRetryAfter reads Retry-After in seconds, falling back to the current delay.
func parseRetryAfter(header http.Header, delayMs int64) uint64 {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseUint(v, 10, 64); err == nil {
			return secs
		}
	}
	if delayMs <= 0 {
		return 0
	}
	return uint64(delayMs / 1000)
}

// RetryingTransport executes GET requests against Dynamics 365, absorbing
// throttling and transient server errors up to a fixed retry budget.
type RetryingTransport struct {
	httpClient   *http.Client
	maxRetries   int
	retryDelayMs int64
	limiter      *RateLimiter
	sleep        Sleeper
	logger       zerolog.Logger
}

// TransportOption configures a RetryingTransport.
type TransportOption func(*RetryingTransport)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *RetryingTransport) {
		t.httpClient = client
	}
}

// WithRateLimiter paces requests through limiter.
func WithRateLimiter(limiter *RateLimiter) TransportOption {
	return func(t *RetryingTransport) {
		t.limiter = limiter
	}
}

// WithSleeper replaces the backoff sleep, mainly for tests.
func WithSleeper(sleep Sleeper) TransportOption {
	return func(t *RetryingTransport) {
		t.sleep = sleep
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) TransportOption {
	return func(t *RetryingTransport) {
		t.logger = logger
	}
}

// NewRetryingTransport creates a transport. maxRetries is the total number of
// attempts per request and is raised to 1 if lower.
func NewRetryingTransport(maxRetries int, retryDelayMs int64, opts ...TransportOption) *RetryingTransport {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if retryDelayMs < 0 {
		retryDelayMs = 0
	}

	t := &RetryingTransport{
		httpClient:   NewHTTPClient(false),
		maxRetries:   maxRetries,
		retryDelayMs: retryDelayMs,
		sleep:        sleepContext,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Execute performs a GET with bearer token. On success the caller owns the
// response body. Failures are always *ODataError.
func (t *RetryingTransport) Execute(ctx context.Context, url, token string, accept Accept) (*http.Response, error) {
	delayMs := t.retryDelayMs

	for attempt := 1; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, &ODataError{Kind: ODataTransport, Err: err}
			}
		}

		resp, err := t.do(ctx, url, token, accept)
		if err != nil {
			return nil, &ODataError{Kind: ODataTransport, Err: err}
		}

		if IsSuccess(resp.StatusCode) {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()

		d := classify(resp.StatusCode, resp.Header, body, attempt, t.maxRetries, delayMs)
		switch d.state {
		case stateFailed:
			if d.err.Kind == ODataRateLimited && t.limiter != nil {
				t.limiter.RecordRateLimitError(d.err.RetryAfter)
			}
			t.logger.Error().
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Str("url", url).
				Msg("request failed")
			return nil, d.err

		case stateRetryScheduled:
			t.logger.Warn().
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Int("max_retries", t.maxRetries).
				Dur("wait", d.wait).
				Msg("retrying request")
			if err := t.sleep(ctx, d.wait); err != nil {
				return nil, &ODataError{Kind: ODataTransport, Err: err}
			}
			delayMs = d.nextDelayMs

		default:
			return nil, &ODataError{Kind: ODataTransport, Detail: "unexpected state " + d.state.String()}
		}
	}
}

func (t *RetryingTransport) do(ctx context.Context, url, token string, accept Accept) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = escapeQuery(req.URL.RawQuery)

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("client-request-id", uuid.NewString())

	switch accept {
	case AcceptXML:
		req.Header.Set("Accept", "application/xml")
	default:
		req.Header.Set("Accept", "application/json")
		req.Header.Set("OData-MaxVersion", "4.0")
		req.Header.Set("OData-Version", "4.0")
		req.Header.Set("Prefer", "odata.include-annotations=*")
	}

	return t.httpClient.Do(req)
}

// NewHTTPClient returns a client with the long per-call timeout OData needs.
// insecureSSL disables certificate verification for on-premises test environments.
func NewHTTPClient(insecureSSL bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // G402: opt-in via D365_INSECURE_SSL
	}
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: transport,
	}
}

// escapeQuery percent-encodes the bytes that cannot appear in a request line.
// Filter expressions are built unencoded, so "name eq 'x'" arrives here with spaces.
// Existing escapes and OData punctuation are left alone.
func escapeQuery(raw string) string {
	const (
		hex              = "0123456789ABCDEF"
		unsafeQueryBytes = "\"<>`{}|\\^"
	)

	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c <= ' ' || c >= 0x7f || strings.IndexByte(unsafeQueryBytes, c) >= 0:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
