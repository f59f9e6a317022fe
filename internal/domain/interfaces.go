package domain

import (
	"context"
	"time"
)

// Provider executes chat-completion requests against a backend.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	// Implementations own retry and failure classification.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Model returns the model identifier used for outgoing requests.
	Model() string
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// List returns all available providers.
	List(ctx context.Context) ([]string, error)
}

// ResultCache stores transformed prompt text keyed by request fingerprint.
type ResultCache interface {
	// Get returns the cached text, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores text under key for ttl.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}
