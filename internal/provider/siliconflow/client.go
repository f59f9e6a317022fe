// Package siliconflow provides the resilient chat-completion client for the
// SiliconFlow (OpenAI-compatible) API. Every call runs a bounded attempt loop
// that classifies failures into retryable and terminal kinds and waits a
// linearly growing backoff between attempts.
package siliconflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidbz/promptfmt/internal/domain"
	"github.com/davidbz/promptfmt/internal/observability"
)

const (
	providerName = "siliconflow"

	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "https://api.siliconflow.cn/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "Qwen/QwQ-32B"

	defaultTimeout     = 90 * time.Second
	defaultMaxAttempts = 3

	// Backoff units, multiplied by the attempt number.
	timeoutBackoffUnit = 2000 * time.Millisecond
	retryBackoffUnit   = 1000 * time.Millisecond

	maxResponseBytes = 8 << 20
	redactedSecret   = "[REDACTED]"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client executes chat-completion requests with bounded retries.
type Client struct {
	apiKey      string
	baseURL     string
	endpoint    string
	model       string
	timeout     time.Duration
	maxAttempts int
	httpClient  *http.Client
	sleep       SleepFunc
	logger      *zap.Logger
}

// Compile-time check that Client satisfies the Provider interface.
var _ domain.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A client without a
// timeout gets the configured per-attempt timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient creates a new SiliconFlow client.
func NewClient(config Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, errors.New("SiliconFlow API key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https and host is required", baseURL)
	}

	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = DefaultModel
	}

	timeout := defaultTimeout
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}

	maxAttempts := defaultMaxAttempts
	if config.MaxAttempts > 0 {
		maxAttempts = config.MaxAttempts
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		endpoint:    baseURL + "/chat/completions",
		model:       model,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		httpClient:  &http.Client{Timeout: timeout},
		sleep:       sleepContext,
		logger:      logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Timeout == 0 {
		withTimeout := *c.httpClient
		withTimeout.Timeout = timeout
		c.httpClient = &withTimeout
	}

	return c, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return providerName
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// MaxAttempts returns the attempt budget per call.
func (c *Client) MaxAttempts() int {
	return c.maxAttempts
}

// Timeout returns the per-attempt transport timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Complete sends req, retrying transient failures. Failures are returned as
// *domain.CompletionError.
func (c *Client) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.CompletionError{
			Kind:    domain.KindConfiguration,
			Message: err.Error(),
			Err:     err,
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &domain.CompletionError{
			Kind:    domain.KindConfiguration,
			Message: "failed to marshal request",
			Err:     err,
		}
	}

	logger := observability.Contextual(ctx, c.logger).With(observability.String("provider", providerName))
	if observability.GetModel(ctx) == "" {
		logger = logger.With(observability.String("model", req.Model))
	}

	for attempt := 1; ; attempt++ {
		v := c.attempt(ctx, body, attempt)

		switch v.state {
		case stateSuccess:
			logger.Debug("completion call succeeded",
				observability.Int("attempt", attempt),
				observability.Int("total_tokens", v.resp.Usage.TotalTokens))
			return v.resp, nil

		case stateRetry:
			logger.Warn("completion attempt failed, retrying",
				observability.Int("attempt", attempt),
				observability.Int("max_attempts", c.maxAttempts),
				observability.Duration("backoff", v.delay),
				observability.String("error_kind", string(v.err.Kind)),
				observability.Error(v.err))

			if sleepErr := c.sleep(ctx, v.delay); sleepErr != nil {
				return nil, &domain.CompletionError{
					Kind:     domain.KindCanceled,
					Attempts: attempt,
					Message:  "canceled during backoff",
					Err:      sleepErr,
				}
			}

		default:
			logger.Error("completion call failed",
				observability.Int("attempt", attempt),
				observability.String("error_kind", string(v.err.Kind)),
				observability.Int("status", v.err.StatusCode),
				observability.Error(v.err))
			return nil, v.err
		}
	}
}

// attempt performs one HTTP exchange and returns the verdict for it.
func (c *Client) attempt(ctx context.Context, body []byte, n int) verdict {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return c.terminal(domain.KindConfiguration, err, n)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.classifyTransport(ctx, err, n)
	}
	defer httpResp.Body.Close()

	payload, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))

	switch {
	case httpResp.StatusCode >= http.StatusInternalServerError:
		return c.retryable(domain.KindServer, httpResp.StatusCode,
			providerMessage(payload, httpResp.StatusCode), nil, n)
	case httpResp.StatusCode >= http.StatusBadRequest:
		return verdict{state: stateTerminal, err: &domain.CompletionError{
			Kind:       domain.KindClient,
			StatusCode: httpResp.StatusCode,
			Attempts:   n,
			Message:    c.scrub(providerMessage(payload, httpResp.StatusCode)),
		}}
	case readErr != nil:
		return c.classifyTransport(ctx, readErr, n)
	}

	var resp domain.CompletionResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return verdict{state: stateTerminal, err: &domain.CompletionError{
			Kind:     domain.KindInvalidResponse,
			Attempts: n,
			Message:  "failed to decode response body",
			Err:      err,
		}}
	}

	if len(resp.Choices) == 0 {
		invalid := domain.NewInvalidResponseError("response contains no choices")
		invalid.Attempts = n
		return verdict{state: stateTerminal, err: invalid}
	}

	return verdict{state: stateSuccess, resp: &resp}
}

// classifyTransport handles failures where no HTTP status is available.
func (c *Client) classifyTransport(ctx context.Context, err error, n int) verdict {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return verdict{state: stateTerminal, err: &domain.CompletionError{
			Kind:     domain.KindCanceled,
			Attempts: n,
			Message:  ctxErr.Error(),
			Err:      ctxErr,
		}}
	}

	if isTimeout(err) {
		return c.retryable(domain.KindTimeout, 0, err.Error(), err, n)
	}

	return c.retryable(domain.KindNetwork, 0, err.Error(), err, n)
}

// retryable schedules another attempt, or turns into a terminal error of the
// same kind once the budget is spent.
func (c *Client) retryable(kind domain.ErrorKind, status int, message string, cause error, n int) verdict {
	failure := &domain.CompletionError{
		Kind:       kind,
		StatusCode: status,
		Attempts:   n,
		Message:    c.scrub(message),
		Err:        cause,
	}

	if n >= c.maxAttempts {
		return verdict{state: stateTerminal, err: failure}
	}

	return verdict{state: stateRetry, err: failure, delay: backoff(kind, n)}
}

func (c *Client) terminal(kind domain.ErrorKind, cause error, n int) verdict {
	return verdict{state: stateTerminal, err: &domain.CompletionError{
		Kind:     kind,
		Attempts: n,
		Message:  c.scrub(cause.Error()),
		Err:      cause,
	}}
}

// scrub removes the credential from text that may reach logs or callers.
func (c *Client) scrub(text string) string {
	if c.apiKey == "" {
		return text
	}
	return strings.ReplaceAll(text, c.apiKey, redactedSecret)
}

// backoff returns the wait before attempt n+1.
func backoff(kind domain.ErrorKind, n int) time.Duration {
	if kind == domain.KindTimeout {
		return timeoutBackoffUnit * time.Duration(n)
	}
	return retryBackoffUnit * time.Duration(n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
