package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"MCPDOCS_DATABASE_URL", "HOST", "PORT", "EMBEDDING_PROVIDER",
		"EMBEDDING_MODEL", "DOCS_BASE_URL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 3000 || cfg.HealthPort != 8080 {
		t.Errorf("network defaults = %s:%d health:%d", cfg.Host, cfg.Port, cfg.HealthPort)
	}
	if cfg.EmbeddingProvider != "openai" {
		t.Errorf("provider default = %q", cfg.EmbeddingProvider)
	}
	if cfg.EmbeddingModel != "text-embedding-3-large" {
		t.Errorf("model default = %q", cfg.EmbeddingModel)
	}
	if cfg.AdminMaxPages != 10000 || cfg.BulkMaxPages != 50 {
		t.Errorf("page budgets = %d/%d", cfg.AdminMaxPages, cfg.BulkMaxPages)
	}
	if cfg.InitTimeout != 30*time.Second {
		t.Errorf("init timeout = %v", cfg.InitTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("EMBEDDING_PROVIDER", "voyage")
	t.Setenv("EMBEDDING_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9999 || cfg.Host != "127.0.0.1" {
		t.Errorf("network = %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.EmbeddingProvider != "voyage" {
		t.Errorf("provider = %q", cfg.EmbeddingProvider)
	}
	if cfg.EmbeddingModel != "voyage-3.5" {
		t.Errorf("voyage model default = %q", cfg.EmbeddingModel)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL:       "postgres://localhost/docs",
			EmbeddingProvider: "openai",
			Port:              3000,
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	c := base()
	c.DatabaseURL = ""
	if err := c.Validate(); err == nil {
		t.Error("missing database URL accepted")
	}

	c = base()
	c.EmbeddingProvider = "mystery"
	if err := c.Validate(); err == nil {
		t.Error("unknown provider accepted")
	}

	c = base()
	c.Port = -1
	if err := c.Validate(); err == nil {
		t.Error("invalid port accepted")
	}
}
