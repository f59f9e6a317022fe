package siliconflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidbz/promptfmt/internal/domain"
	"github.com/davidbz/promptfmt/internal/observability"
	"github.com/davidbz/promptfmt/internal/provider/siliconflow"
)

const testAPIKey = "sk-test-secret-key"

// roundTripFunc stubs the HTTP transport.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// timeoutError mimics a transport-level timeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// scriptedTransport replays one step per attempt and counts calls.
type scriptedTransport struct {
	mu    sync.Mutex
	calls int
	steps []func(*http.Request) (*http.Response, error)
}

func (s *scriptedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.mu.Unlock()

	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	return s.steps[idx](r)
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// sleepRecorder captures backoff delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func jsonResponse(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	}
}

func failWith(err error) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return nil, err
	}
}

func completionBody(content string) string {
	body, _ := json.Marshal(domain.CompletionResponse{
		ID:      "chatcmpl-1",
		Object:  "chat.completion",
		Created: 1700000000,
		Model:   siliconflow.DefaultModel,
		Choices: []domain.Choice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
		Usage: domain.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
	})
	return string(body)
}

func newStubClient(
	t *testing.T,
	transport http.RoundTripper,
	sleeper *sleepRecorder,
	logger *zap.Logger,
) *siliconflow.Client {
	t.Helper()

	client, err := siliconflow.NewClient(
		siliconflow.Config{APIKey: testAPIKey, BaseURL: "https://api.example.test/v1"},
		logger,
		siliconflow.WithHTTPClient(&http.Client{Transport: transport}),
		siliconflow.WithSleep(sleeper.Sleep),
	)
	require.NoError(t, err)
	return client
}

func helloRequest() *domain.CompletionRequest {
	return &domain.CompletionRequest{
		Model:    siliconflow.DefaultModel,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	}
}

func TestNewClient(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		client, err := siliconflow.NewClient(siliconflow.Config{APIKey: testAPIKey}, nil)

		require.NoError(t, err)
		require.Equal(t, "siliconflow", client.Name())
		require.Equal(t, "https://api.siliconflow.cn/v1", client.BaseURL())
		require.Equal(t, "Qwen/QwQ-32B", client.Model())
		require.Equal(t, 3, client.MaxAttempts())
		require.Equal(t, 90*time.Second, client.Timeout())
	})

	t.Run("should honour overrides", func(t *testing.T) {
		client, err := siliconflow.NewClient(siliconflow.Config{
			APIKey:      testAPIKey,
			BaseURL:     "https://proxy.example.test/v1/",
			Model:       "deepseek-ai/DeepSeek-V3",
			Timeout:     30,
			MaxAttempts: 5,
		}, zap.NewNop())

		require.NoError(t, err)
		require.Equal(t, "https://proxy.example.test/v1", client.BaseURL())
		require.Equal(t, "deepseek-ai/DeepSeek-V3", client.Model())
		require.Equal(t, 5, client.MaxAttempts())
		require.Equal(t, 30*time.Second, client.Timeout())
	})

	t.Run("should require an API key", func(t *testing.T) {
		client, err := siliconflow.NewClient(siliconflow.Config{APIKey: "  "}, nil)

		require.Error(t, err)
		require.Nil(t, client)
		require.Contains(t, err.Error(), "API key is required")
	})

	t.Run("should reject a base URL without scheme", func(t *testing.T) {
		client, err := siliconflow.NewClient(siliconflow.Config{APIKey: testAPIKey, BaseURL: "api.siliconflow.cn/v1"}, nil)

		require.Error(t, err)
		require.Nil(t, client)
		require.Contains(t, err.Error(), "invalid base URL")
	})
}

func TestComplete_WireContract(t *testing.T) {
	var (
		gotPath   string
		gotMethod string
		gotHeader http.Header
		gotBody   map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("  formatted text \n"))
	}))
	defer srv.Close()

	client, err := siliconflow.NewClient(siliconflow.Config{APIKey: testAPIKey, BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &domain.CompletionRequest{
		Model: client.Model(),
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "be terse"},
			{Role: domain.RoleUser, Content: "hi"},
		},
		Temperature: domain.Float(0.3),
		MaxTokens:   4000,
	})

	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.Equal(t, "  formatted text \n", resp.Choices[0].Message.Content)
	require.Equal(t, 12, resp.Usage.TotalTokens)

	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/v1/chat/completions", gotPath)
	require.Equal(t, "Bearer "+testAPIKey, gotHeader.Get("Authorization"))
	require.Equal(t, "application/json", gotHeader.Get("Content-Type"))

	require.Equal(t, "Qwen/QwQ-32B", gotBody["model"])
	require.InDelta(t, 0.3, gotBody["temperature"], 0.0001)
	require.InDelta(t, 4000, gotBody["max_tokens"], 0.0001)
	require.NotContains(t, gotBody, "stream")

	messages, ok := gotBody["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	require.Equal(t, "user", messages[1].(map[string]interface{})["role"])
}

func TestComplete_Retries(t *testing.T) {
	t.Run("should recover after two timeouts", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			failWith(timeoutError{}),
			failWith(timeoutError{}),
			jsonResponse(http.StatusOK, completionBody("third time lucky")),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		resp, err := client.Complete(context.Background(), helloRequest())

		require.NoError(t, err)
		require.Equal(t, "third time lucky", resp.Choices[0].Message.Content)
		require.Equal(t, 3, transport.Calls())
		require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())
	})

	t.Run("should fail with server error after exhausting attempts on 503", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusServiceUnavailable, `{"error":{"message":"model overloaded"}}`),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		resp, err := client.Complete(context.Background(), helloRequest())

		require.Nil(t, resp)
		require.ErrorIs(t, err, domain.ErrServerError)
		require.Contains(t, err.Error(), "503")
		require.Contains(t, err.Error(), "model overloaded")
		require.Equal(t, 3, transport.Calls())
		require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, sleeper.Delays())

		var ce *domain.CompletionError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, http.StatusServiceUnavailable, ce.StatusCode)
		require.Equal(t, 3, ce.Attempts)
	})

	t.Run("should fall back to status text when 5xx body has no message", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusBadGateway, `<html>bad gateway</html>`),
		}}
		client := newStubClient(t, transport, &sleepRecorder{}, nil)

		_, err := client.Complete(context.Background(), helloRequest())

		require.ErrorIs(t, err, domain.ErrServerError)
		require.Contains(t, err.Error(), "502 - Bad Gateway")
	})

	t.Run("should fail with timeout after exhausting attempts", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			failWith(timeoutError{}),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		_, err := client.Complete(context.Background(), helloRequest())

		require.ErrorIs(t, err, domain.ErrTimeout)
		require.Equal(t, 3, transport.Calls())
		require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())
	})

	t.Run("should treat a timeout message as a timeout", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			failWith(errors.New("proxy: upstream timeout")),
			jsonResponse(http.StatusOK, completionBody("ok")),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		_, err := client.Complete(context.Background(), helloRequest())

		require.NoError(t, err)
		require.Equal(t, []time.Duration{2 * time.Second}, sleeper.Delays())
	})

	t.Run("should fail with network error when no response arrives", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			failWith(errors.New("connection refused")),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		_, err := client.Complete(context.Background(), helloRequest())

		require.ErrorIs(t, err, domain.ErrNetworkError)
		require.Contains(t, err.Error(), "connection refused")
		require.Equal(t, 3, transport.Calls())
		require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, sleeper.Delays())
	})

	t.Run("should scale each delay by its own failure kind", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusInternalServerError, `{}`),
			failWith(timeoutError{}),
			jsonResponse(http.StatusOK, completionBody("ok")),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		_, err := client.Complete(context.Background(), helloRequest())

		require.NoError(t, err)
		require.Equal(t, []time.Duration{1 * time.Second, 4 * time.Second}, sleeper.Delays())
	})

	t.Run("should respect a custom attempt budget", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusServiceUnavailable, `{}`),
		}}
		sleeper := &sleepRecorder{}
		client, err := siliconflow.NewClient(
			siliconflow.Config{APIKey: testAPIKey, MaxAttempts: 1},
			nil,
			siliconflow.WithHTTPClient(&http.Client{Transport: transport}),
			siliconflow.WithSleep(sleeper.Sleep),
		)
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), helloRequest())

		require.ErrorIs(t, err, domain.ErrServerError)
		require.Equal(t, 1, transport.Calls())
		require.Empty(t, sleeper.Delays())
	})
}

func TestComplete_TerminalFailures(t *testing.T) {
	t.Run("should not retry a 4xx response", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusUnauthorized, `{"error":{"message":"Invalid token"}}`),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		_, err := client.Complete(context.Background(), helloRequest())

		require.ErrorIs(t, err, domain.ErrClientError)
		require.Contains(t, err.Error(), "401")
		require.Contains(t, err.Error(), "Invalid token")
		require.Equal(t, 1, transport.Calls())
		require.Empty(t, sleeper.Delays())
	})

	t.Run("should read the flat SiliconFlow error shape", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusTooManyRequests, `{"code":50603,"message":"rate limited","data":null}`),
		}}
		client := newStubClient(t, transport, &sleepRecorder{}, nil)

		_, err := client.Complete(context.Background(), helloRequest())

		require.ErrorIs(t, err, domain.ErrClientError)
		require.Contains(t, err.Error(), "429 - rate limited")
		require.Equal(t, 1, transport.Calls())
	})

	t.Run("should not retry an empty choice list", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusOK, `{"id":"x","choices":[]}`),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		resp, err := client.Complete(context.Background(), helloRequest())

		require.Nil(t, resp)
		require.ErrorIs(t, err, domain.ErrInvalidResponseShape)
		require.Equal(t, 1, transport.Calls())
		require.Empty(t, sleeper.Delays())
	})

	t.Run("should not retry an undecodable body", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusOK, `not json`),
		}}
		client := newStubClient(t, transport, &sleepRecorder{}, nil)

		_, err := client.Complete(context.Background(), helloRequest())

		require.ErrorIs(t, err, domain.ErrInvalidResponseShape)
		require.Equal(t, 1, transport.Calls())
	})

	t.Run("should reject a request without a user message before sending", func(t *testing.T) {
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusOK, completionBody("unused")),
		}}
		client := newStubClient(t, transport, &sleepRecorder{}, nil)

		_, err := client.Complete(context.Background(), &domain.CompletionRequest{
			Model:    client.Model(),
			Messages: []domain.Message{{Role: domain.RoleSystem, Content: "only system"}},
		})

		require.ErrorIs(t, err, domain.ErrConfiguration)
		require.Equal(t, 0, transport.Calls())
	})

	t.Run("should reject a nil request", func(t *testing.T) {
		client := newStubClient(t, &scriptedTransport{}, &sleepRecorder{}, nil)

		_, err := client.Complete(context.Background(), nil)

		require.ErrorIs(t, err, domain.ErrConfiguration)
		require.Contains(t, err.Error(), "request cannot be nil")
	})
}

func TestComplete_Cancellation(t *testing.T) {
	t.Run("should abort the backoff sleep when the context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			func(r *http.Request) (*http.Response, error) {
				cancel()
				return jsonResponse(http.StatusServiceUnavailable, `{}`)(r)
			},
		}}
		client, err := siliconflow.NewClient(
			siliconflow.Config{APIKey: testAPIKey},
			nil,
			siliconflow.WithHTTPClient(&http.Client{Transport: transport}),
		)
		require.NoError(t, err)

		started := time.Now()
		_, err = client.Complete(ctx, helloRequest())

		require.ErrorIs(t, err, domain.ErrCanceled)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, transport.Calls())
		require.Less(t, time.Since(started), time.Second)
	})

	t.Run("should not retry when the context is already done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			failWith(context.Canceled),
		}}
		sleeper := &sleepRecorder{}
		client := newStubClient(t, transport, sleeper, nil)

		_, err := client.Complete(ctx, helloRequest())

		require.ErrorIs(t, err, domain.ErrCanceled)
		require.Empty(t, sleeper.Delays())
	})
}

func TestComplete_TransportTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	client, err := siliconflow.NewClient(
		siliconflow.Config{APIKey: testAPIKey, BaseURL: srv.URL, MaxAttempts: 2},
		nil,
		siliconflow.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
		siliconflow.WithSleep(sleeper.Sleep),
	)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), helloRequest())

	require.ErrorIs(t, err, domain.ErrTimeout)
	require.Equal(t, []time.Duration{2 * time.Second}, sleeper.Delays())
}

func TestComplete_NeverLeaksCredential(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
		jsonResponse(http.StatusInternalServerError, `{"error":{"message":"bad key `+testAPIKey+`"}}`),
	}}
	client := newStubClient(t, transport, &sleepRecorder{}, zap.New(core))

	_, err := client.Complete(context.Background(), helloRequest())

	require.ErrorIs(t, err, domain.ErrServerError)
	require.NotContains(t, err.Error(), testAPIKey)
	require.Contains(t, err.Error(), "[REDACTED]")

	for _, entry := range logs.All() {
		require.NotContains(t, entry.Message, testAPIKey)
		for key, value := range entry.ContextMap() {
			require.NotContains(t, key, testAPIKey)
			if s, ok := value.(string); ok {
				require.NotContains(t, s, testAPIKey)
			}
		}
	}
}

func TestComplete_LogsRetryEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
		failWith(timeoutError{}),
		jsonResponse(http.StatusBadGateway, `{}`),
		jsonResponse(http.StatusOK, completionBody("done")),
	}}
	client := newStubClient(t, transport, &sleepRecorder{}, zap.New(core))

	_, err := client.Complete(context.Background(), helloRequest())
	require.NoError(t, err)

	retries := logs.FilterMessage("completion attempt failed, retrying").All()
	require.Len(t, retries, 2)

	require.Equal(t, int64(1), retries[0].ContextMap()["attempt"])
	require.Equal(t, "timeout", retries[0].ContextMap()["error_kind"])
	require.Equal(t, 2*time.Second, retries[0].ContextMap()["backoff"])

	require.Equal(t, int64(2), retries[1].ContextMap()["attempt"])
	require.Equal(t, "server_error", retries[1].ContextMap()["error_kind"])
	require.Equal(t, 2*time.Second, retries[1].ContextMap()["backoff"])

	require.Equal(t, 1, logs.FilterMessage("completion call succeeded").Len())
}

func TestComplete_LogsModelOnce(t *testing.T) {
	countModelFields := func(entry observer.LoggedEntry) int {
		n := 0
		for _, field := range entry.Context {
			if field.Key == "model" {
				n++
			}
		}
		return n
	}

	t.Run("should not repeat a model carried by the context", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusOK, completionBody("done")),
		}}
		client := newStubClient(t, transport, &sleepRecorder{}, zap.New(core))

		ctx := observability.WithModel(context.Background(), siliconflow.DefaultModel)
		_, err := client.Complete(ctx, helloRequest())
		require.NoError(t, err)

		entries := logs.FilterMessage("completion call succeeded").All()
		require.Len(t, entries, 1)
		require.Equal(t, 1, countModelFields(entries[0]))
		require.Equal(t, siliconflow.DefaultModel, entries[0].ContextMap()["model"])
	})

	t.Run("should add the request model when the context has none", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		transport := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			jsonResponse(http.StatusOK, completionBody("done")),
		}}
		client := newStubClient(t, transport, &sleepRecorder{}, zap.New(core))

		_, err := client.Complete(context.Background(), helloRequest())
		require.NoError(t, err)

		entries := logs.FilterMessage("completion call succeeded").All()
		require.Len(t, entries, 1)
		require.Equal(t, 1, countModelFields(entries[0]))
	})
}
