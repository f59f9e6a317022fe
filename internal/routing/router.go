package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/davidbz/promptfmt/internal/domain"
)

// SimpleRouter picks the completion provider by configured name.
type SimpleRouter struct {
	registry domain.ProviderRegistry
}

// NewRouter creates a new router.
func NewRouter(registry domain.ProviderRegistry) *SimpleRouter {
	return &SimpleRouter{
		registry: registry,
	}
}

// Route returns the registered provider called name.
func (r *SimpleRouter) Route(ctx context.Context, name string) (domain.Provider, error) {
	if name == "" {
		return nil, errors.New("provider name is required")
	}

	providerNames, err := r.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	if len(providerNames) == 0 {
		return nil, errors.New("no providers available")
	}

	for _, candidate := range providerNames {
		if candidate != name {
			continue
		}

		provider, getErr := r.registry.Get(ctx, candidate)
		if getErr != nil {
			return nil, fmt.Errorf("failed to get provider %s: %w", candidate, getErr)
		}
		return provider, nil
	}

	return nil, fmt.Errorf("provider %s is not registered (available: %s)",
		name, strings.Join(providerNames, ", "))
}
