// Package config holds the runtime configuration for mcpdocs.
// Values come from CLI flags with environment variable fallbacks;
// a .env file in the working directory is loaded first if present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"mcpdocs/internal/docerr"
)

const (
	// DefaultDocsBaseURL is the documentation host the crawler targets.
	DefaultDocsBaseURL = "https://docs.rs"

	// DefaultAdminMaxPages bounds a crawl triggered by an admin tool call.
	DefaultAdminMaxPages = 10000

	// DefaultBulkMaxPages bounds a crawl during bulk/startup population.
	DefaultBulkMaxPages = 50

	// DefaultInitTimeout is how long a new MCP connection may take to
	// complete initialization before it is dropped.
	DefaultInitTimeout = 30 * time.Second
)

// Config is the fully resolved service configuration.
type Config struct {
	DatabaseURL string

	Host       string
	Port       int
	HealthPort int

	// PackageNames are the packages named on the command line for
	// startup auto-population. All selects every enabled config instead.
	PackageNames []string
	All          bool

	EmbeddingProvider string
	EmbeddingModel    string
	OpenAIAPIKey      string
	OpenAIAPIBase     string
	VoyageAPIKey      string

	DocsBaseURL   string
	AdminMaxPages int
	BulkMaxPages  int
	InitTimeout   time.Duration

	Verbose bool
}

// Load builds a Config from the environment. Flag values already parsed by
// the CLI layer are applied on top by the caller; Load only resolves env
// and defaults.
func Load() (*Config, error) {
	// Best effort; absence of a .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       os.Getenv("MCPDOCS_DATABASE_URL"),
		Host:              envOr("HOST", "0.0.0.0"),
		Port:              3000,
		HealthPort:        8080,
		EmbeddingProvider: envOr("EMBEDDING_PROVIDER", "openai"),
		EmbeddingModel:    os.Getenv("EMBEDDING_MODEL"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIAPIBase:     os.Getenv("OPENAI_API_BASE"),
		VoyageAPIKey:      os.Getenv("VOYAGE_API_KEY"),
		DocsBaseURL:       envOr("DOCS_BASE_URL", DefaultDocsBaseURL),
		AdminMaxPages:     DefaultAdminMaxPages,
		BulkMaxPages:      DefaultBulkMaxPages,
		InitTimeout:       DefaultInitTimeout,
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, docerr.Wrap(docerr.KindConfig, err, "invalid PORT %q", v)
		}
		cfg.Port = p
	}

	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultModelFor(cfg.EmbeddingProvider)
	}

	return cfg, nil
}

// Validate checks that required settings for serving are present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return docerr.New(docerr.KindConfig, "MCPDOCS_DATABASE_URL is not set")
	}
	switch c.EmbeddingProvider {
	case "openai", "voyage":
	default:
		return docerr.New(docerr.KindConfig, "unknown embedding provider %q", c.EmbeddingProvider)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return docerr.New(docerr.KindConfig, "invalid port %d", c.Port)
	}
	return nil
}

func defaultModelFor(provider string) string {
	if provider == "voyage" {
		return "voyage-3.5"
	}
	return "text-embedding-3-large"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
