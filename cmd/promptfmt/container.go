package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/promptfmt/internal/cache/redis"
	"github.com/davidbz/promptfmt/internal/config"
	"github.com/davidbz/promptfmt/internal/domain"
	httpapi "github.com/davidbz/promptfmt/internal/http"
	"github.com/davidbz/promptfmt/internal/http/middleware"
	"github.com/davidbz/promptfmt/internal/mcpserver"
	"github.com/davidbz/promptfmt/internal/observability"
	"github.com/davidbz/promptfmt/internal/provider/echo"
	"github.com/davidbz/promptfmt/internal/provider/registry"
	"github.com/davidbz/promptfmt/internal/provider/siliconflow"
	"github.com/davidbz/promptfmt/internal/routing"
)

// ErrAPIKeyRequired is returned when the siliconflow provider is selected
// without a credential.
var ErrAPIKeyRequired = errors.New("SILICONFLOW_API_KEY environment variable is required")

const cachePingTimeout = 2 * time.Second

func buildContainer() (*dig.Container, error) {
	container := dig.New()

	constructors := []struct {
		name string
		fn   any
	}{
		// Configuration
		{"config", config.Load},
		{"config dependencies", config.ParseDependenciesConfig},

		// Observability
		{"logger", observability.InitLogger},

		// Providers
		{"provider registry", newProviderRegistry},
		{"provider", selectProvider},

		// Domain Services
		{"prompt service", newPromptService},

		// MCP
		{"MCP server", func(service *domain.PromptService, logger *zap.Logger) *mcp.Server {
			return mcpserver.New(Version, service, logger.Named("mcp"))
		}},

		// HTTP Layer
		{"middleware", middleware.BuildMiddlewareChain},
		{"MCP HTTP handler", func(server *mcp.Server) http.Handler {
			return mcpserver.NewHTTPHandler(server)
		}},
		{"HTTP handler", func(service *domain.PromptService, provider domain.Provider) *httpapi.Handler {
			return httpapi.NewHandler(service, provider.Name())
		}},
		{"HTTP server", httpapi.NewServer},
	}

	for _, c := range constructors {
		if err := container.Provide(c.fn); err != nil {
			return nil, fmt.Errorf("failed to provide %s: %w", c.name, err)
		}
	}

	return container, nil
}

// newProviderRegistry registers every provider that can be built from the
// configuration. SiliconFlow is skipped when no API key is set.
func newProviderRegistry(cfg *siliconflow.Config, logger *zap.Logger) (domain.ProviderRegistry, error) {
	ctx := context.Background()
	reg := registry.NewRegistry()

	if err := reg.Register(ctx, echo.NewProvider()); err != nil {
		return nil, fmt.Errorf("failed to register echo provider: %w", err)
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Debug("siliconflow provider not configured")
		return reg, nil
	}

	client, err := siliconflow.NewClient(*cfg, logger.Named("siliconflow"))
	if err != nil {
		return nil, fmt.Errorf("failed to create SiliconFlow client: %w", err)
	}
	if err := reg.Register(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to register SiliconFlow provider: %w", err)
	}

	logger.Info("siliconflow provider configured",
		observability.String("base_url", client.BaseURL()),
		observability.String("model", client.Model()),
		observability.Duration("timeout", client.Timeout()),
		observability.Int("max_attempts", client.MaxAttempts()))

	return reg, nil
}

// selectProvider resolves COMPLETION_PROVIDER against the registry.
func selectProvider(reg domain.ProviderRegistry, sel *config.ProviderConfig) (domain.Provider, error) {
	provider, err := routing.NewRouter(reg).Route(context.Background(), sel.Name)
	if err != nil {
		if sel.Name == config.ProviderSiliconFlow {
			return nil, ErrAPIKeyRequired
		}
		return nil, err
	}
	return provider, nil
}

func newPromptService(
	provider domain.Provider,
	cacheCfg *redis.Config,
	logger *zap.Logger,
) (*domain.PromptService, error) {
	var opts []domain.ServiceOption

	if cacheCfg.Enabled {
		cache, err := redis.NewResultCache(redis.NewClient(cacheCfg), cacheCfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cachePingTimeout)
		defer cancel()
		if pingErr := cache.Ping(ctx); pingErr != nil {
			logger.Warn("result cache unreachable, requests will bypass it until it recovers",
				observability.String("addr", cacheCfg.Addr),
				observability.Error(pingErr))
		}

		opts = append(opts, domain.WithResultCache(cache, cacheCfg.TTLDuration()))
	}

	return domain.NewPromptService(provider, logger.Named("service"), opts...)
}
