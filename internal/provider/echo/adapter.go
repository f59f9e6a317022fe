// Package echo provides an offline provider that echoes back the user message.
// It implements the domain.Provider interface without making external API calls,
// giving deterministic responses for local development and tests.
package echo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/promptfmt/internal/domain"
	"github.com/davidbz/promptfmt/internal/observability"
)

const (
	providerName = "echo"

	// DefaultModel is the only model the echo provider answers for.
	DefaultModel = "echo4"
)

// Provider implements the domain.Provider interface for offline use.
type Provider struct {
	name  string
	model string
}

// Compile-time check that Provider satisfies the Provider interface.
var _ domain.Provider = (*Provider)(nil)

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{
		name:  providerName,
		model: DefaultModel,
	}
}

// Complete validates the request and returns the last user message as the
// single choice.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.CompletionError{Kind: domain.KindConfiguration, Message: err.Error(), Err: err}
	}

	if req.Model != p.model {
		return nil, &domain.CompletionError{
			Kind:    domain.KindConfiguration,
			Message: fmt.Sprintf("model %s is not supported by echo provider", req.Model),
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &domain.CompletionError{Kind: domain.KindCanceled, Message: err.Error(), Err: err}
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	echoContent := lastUserMessage(req.Messages)

	// Count tokens (simple word-based counting)
	promptTokens := 0
	for _, msg := range req.Messages {
		promptTokens += countTokens(msg.Content)
	}
	completionTokens := countTokens(echoContent)
	finishReason := "stop"
	if req.MaxTokens > 0 && completionTokens > req.MaxTokens {
		echoContent = strings.Join(strings.Fields(echoContent)[:req.MaxTokens], " ")
		completionTokens = req.MaxTokens
		finishReason = "length"
	}

	logger.Debug("echo completed",
		observability.Int("prompt_tokens", promptTokens),
		observability.Int("completion_tokens", completionTokens),
	)

	return &domain.CompletionResponse{
		ID:      fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []domain.Choice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Content: echoContent},
			FinishReason: finishReason,
		}},
		Usage: domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Model returns the model identifier.
func (p *Provider) Model() string {
	return p.model
}

// lastUserMessage returns the content of the final user message.
func lastUserMessage(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
