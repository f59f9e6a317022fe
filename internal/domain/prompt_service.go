package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidbz/promptfmt/internal/observability"
)

// ErrCacheMiss indicates no cached entry was found.
var ErrCacheMiss = errors.New("cache miss")

const (
	transformTemperature = 0.3
	formatMaxTokens      = 4000
	optimizeMaxTokens    = 4000
	analyzeMaxTokens     = 2000
	probeMaxTokens       = 10
	probeMessage         = "Hello"
	defaultCacheTTL      = time.Hour
)

// PromptService turns prompt transformation intents into completion calls.
type PromptService struct {
	provider Provider
	cache    ResultCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// ServiceOption configures a PromptService.
type ServiceOption func(*PromptService)

// WithResultCache enables caching of transformed text. A nil cache disables it.
func WithResultCache(cache ResultCache, ttl time.Duration) ServiceOption {
	return func(s *PromptService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// NewPromptService creates a new prompt service (DI constructor).
func NewPromptService(provider Provider, logger *zap.Logger, opts ...ServiceOption) (*PromptService, error) {
	if provider == nil {
		return nil, errors.New("provider cannot be nil")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	s := &PromptService{
		provider: provider,
		cacheTTL: defaultCacheTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// FormatPrompt restructures content according to style.
func (s *PromptService) FormatPrompt(ctx context.Context, content string, style FormatStyle) (string, error) {
	instruction, ok := FormatInstruction(style)
	if !ok {
		return "", &CompletionError{
			Kind:    KindConfiguration,
			Message: "unsupported format style " + string(style),
		}
	}

	return s.transform(ctx, "format", &CompletionRequest{
		Model: s.provider.Model(),
		Messages: []Message{
			{Role: RoleSystem, Content: instruction},
			{Role: RoleUser, Content: content},
		},
		Temperature: Float(transformTemperature),
		MaxTokens:   formatMaxTokens,
	})
}

// OptimizePrompt rewrites content into a clearer prompt.
func (s *PromptService) OptimizePrompt(ctx context.Context, content string) (string, error) {
	return s.transform(ctx, "optimize", &CompletionRequest{
		Model: s.provider.Model(),
		Messages: []Message{
			{Role: RoleUser, Content: optimizeInstruction(content)},
		},
		Temperature: Float(transformTemperature),
		MaxTokens:   optimizeMaxTokens,
	})
}

// AnalyzePrompt returns a critique of content.
func (s *PromptService) AnalyzePrompt(ctx context.Context, content string) (string, error) {
	return s.transform(ctx, "analyze", &CompletionRequest{
		Model: s.provider.Model(),
		Messages: []Message{
			{Role: RoleUser, Content: analyzeInstruction(content)},
		},
		Temperature: Float(transformTemperature),
		MaxTokens:   analyzeMaxTokens,
	})
}

// CheckConnection probes the endpoint. Every failure maps to false.
func (s *PromptService) CheckConnection(ctx context.Context) bool {
	return s.CheckConnectionDetail(ctx) == nil
}

// CheckConnectionDetail probes the endpoint and returns the failure, if any.
func (s *PromptService) CheckConnectionDetail(ctx context.Context) error {
	logger := observability.Contextual(ctx, s.logger)

	resp, err := s.provider.Complete(ctx, &CompletionRequest{
		Model: s.provider.Model(),
		Messages: []Message{
			{Role: RoleUser, Content: probeMessage},
		},
		MaxTokens: probeMaxTokens,
	})
	if err == nil {
		_, err = resp.FirstContent()
	}

	if err != nil {
		logger.Warn("connection check failed",
			observability.String("provider", s.provider.Name()),
			observability.String("error_kind", string(KindOf(err))),
			observability.Error(err))
		return err
	}

	logger.Debug("connection check succeeded", observability.String("provider", s.provider.Name()))
	return nil
}

// Close releases the result cache when it holds resources.
func (s *PromptService) Close() error {
	closer, ok := s.cache.(io.Closer)
	if !ok {
		return nil
	}
	return closer.Close()
}

func (s *PromptService) transform(ctx context.Context, operation string, req *CompletionRequest) (string, error) {
	ctx = observability.WithModel(ctx, req.Model)
	logger := observability.Contextual(ctx, s.logger).With(
		observability.String("operation", operation),
	)

	key := ""
	if s.cache != nil {
		key = fingerprint(operation, req)
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil && cached != "":
			logger.Info("cache HIT - returning cached result")
			return cached, nil
		case err != nil && !errors.Is(err, ErrCacheMiss):
			logger.Warn("cache get failed, continuing without cache", observability.Error(err))
		}
	}

	started := time.Now()
	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		logger.Error("completion failed",
			observability.String("error_kind", string(KindOf(err))),
			observability.Error(err))
		return "", err
	}

	content, err := resp.FirstContent()
	if err != nil {
		return "", err
	}

	result := strings.TrimSpace(content)
	if result == "" {
		return "", NewInvalidResponseError("first choice has empty content")
	}

	logger.Info("completion succeeded",
		observability.Int("prompt_tokens", resp.Usage.PromptTokens),
		observability.Int("completion_tokens", resp.Usage.CompletionTokens),
		observability.Duration("elapsed", time.Since(started)))

	if s.cache != nil {
		if setErr := s.cache.Set(ctx, key, result, s.cacheTTL); setErr != nil {
			logger.Warn("failed to store in cache", observability.Error(setErr))
		}
	}

	return result, nil
}

// fingerprint derives a stable cache key from the request payload.
func fingerprint(operation string, req *CompletionRequest) string {
	payload, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(operation+"\x00"), payload...))
	return operation + ":" + hex.EncodeToString(sum[:])
}
