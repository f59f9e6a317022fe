package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/promptfmt/internal/cache/redis"
	"github.com/davidbz/promptfmt/internal/observability"
	"github.com/davidbz/promptfmt/internal/provider/siliconflow"
)

// Provider names accepted by COMPLETION_PROVIDER.
const (
	ProviderSiliconFlow = "siliconflow"
	ProviderEcho        = "echo"
)

// Config represents the server configuration.
type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Provider   ProviderConfig
	Completion siliconflow.Config
	Cache      redis.Config
	Log        observability.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"120"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,Mcp-Session-Id,Mcp-Protocol-Version"`
	ExposedHeaders   []string `env:"CORS_EXPOSED_HEADERS"   envSeparator:"," envDefault:"Mcp-Session-Id,X-Trace-Id,X-Request-Id"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// ProviderConfig selects the completion backend.
type ProviderConfig struct {
	Name string `env:"COMPLETION_PROVIDER" envDefault:"siliconflow"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	Server     *ServerConfig
	CORS       *CORSConfig
	Provider   *ProviderConfig
	Completion *siliconflow.Config
	Cache      *redis.Config
	Log        *observability.Config
}

// Load loads environment files and parses configuration.
func Load() (*Config, error) {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	switch cfg.Provider.Name {
	case ProviderSiliconFlow, ProviderEcho:
	default:
		return nil, fmt.Errorf("unknown COMPLETION_PROVIDER %q (supported: %s, %s)",
			cfg.Provider.Name, ProviderSiliconFlow, ProviderEcho)
	}

	return &cfg, nil
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Out:        dig.Out{},
		Server:     &cfg.Server,
		CORS:       &cfg.CORS,
		Provider:   &cfg.Provider,
		Completion: &cfg.Completion,
		Cache:      &cfg.Cache,
		Log:        &cfg.Log,
	}
}
