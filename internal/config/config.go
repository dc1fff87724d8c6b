// Package config provides configuration loading for patentd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for patentd.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Corpus     CorpusConfig     `koanf:"corpus"`
	Search     SearchConfig     `koanf:"search"`
	Cache      CacheConfig      `koanf:"cache"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// RequestTimeout is the per-request deadline covering embedding and search.
	RequestTimeout Duration `koanf:"request_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	// BaseURL is the TEI-compatible embedding endpoint.
	BaseURL string `koanf:"base_url"`
	// Model is the embedding model name, recorded in metrics and logs.
	Model string `koanf:"model"`
	// Dimension is the vector size the model produces. Persisted indexes
	// whose header disagrees with it fail to load for that tenant.
	Dimension int `koanf:"dimension"`
}

// CorpusConfig declares the persisted tenant indexes to serve.
type CorpusConfig struct {
	// Dir is the directory holding one index file per tenant.
	Dir string `koanf:"dir"`
	// Tenants lists the tenant ids to load at startup.
	Tenants []string `koanf:"tenants"`
}

// SearchConfig tunes the filter-aware over-fetch in the retrieval engine.
type SearchConfig struct {
	// OversampleFactor multiplies k for the initial candidate window.
	OversampleFactor int `koanf:"oversample_factor"`
	// MinOversample is the floor for the initial candidate window.
	MinOversample int `koanf:"min_oversample"`
}

// CacheConfig holds caching configuration.
type CacheConfig struct {
	// SourceTTL bounds how long a tenant's source listing is reused
	// before being rebuilt from the index.
	SourceTTL Duration `koanf:"source_ttl"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = Duration(30 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "jhgan/ko-sroberta-multitask"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 768
	}

	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = "./indexes"
	}

	if cfg.Search.OversampleFactor == 0 {
		cfg.Search.OversampleFactor = 4
	}
	if cfg.Search.MinOversample == 0 {
		cfg.Search.MinOversample = 32
	}

	if cfg.Cache.SourceTTL == 0 {
		cfg.Cache.SourceTTL = Duration(time.Hour)
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Embeddings.Dimension < 1 {
		return fmt.Errorf("%w: embeddings dimension must be positive", ErrInvalidConfig)
	}
	if c.Search.OversampleFactor < 1 {
		return fmt.Errorf("%w: oversample_factor must be >= 1", ErrInvalidConfig)
	}
	if c.Search.MinOversample < 1 {
		return fmt.Errorf("%w: min_oversample must be >= 1", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Corpus.Tenants))
	for _, tenant := range c.Corpus.Tenants {
		if tenant == "" {
			return fmt.Errorf("%w: empty tenant id", ErrInvalidConfig)
		}
		if _, dup := seen[tenant]; dup {
			return fmt.Errorf("%w: duplicate tenant %q", ErrInvalidConfig, tenant)
		}
		seen[tenant] = struct{}{}
	}
	return nil
}
