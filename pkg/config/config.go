// Package config holds service configuration: environment variables for the
// ambient settings, an optional YAML file for the structured ones. Settings
// that regulatory sources impose (rate cap, identification header) are
// validated at startup so misconfiguration never reaches a request.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// FetcherConfig configures outbound filing fetches.
type FetcherConfig struct {
	// Identification is sent as User-Agent; regulatory sources require it.
	Identification string `yaml:"identification"`
	// RateLimitPerSecond may not exceed 10.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	MaxRetries         int     `yaml:"max_retries"`
	// RedisAddr enables the cross-process shared fetch bucket; empty means
	// local limiting only.
	RedisAddr string `yaml:"redis_addr"`
}

// AnonymizationConfig configures the tokenization engine and vault.
type AnonymizationConfig struct {
	// Level is NONE, PARTIAL, FULL, or IRREVERSIBLE.
	Level string `yaml:"level"`
	// TokenizationSecret keys the deterministic token derivation.
	TokenizationSecret string `yaml:"tokenization_secret"`
	// VaultKey seals reverse-map entries at rest.
	VaultKey string `yaml:"vault_key"`
	// VaultPath is the sqlite file for the reverse map; empty means in-memory.
	VaultPath string `yaml:"vault_path"`
}

// EmbeddingsConfig configures the contradiction detector's embedding source.
type EmbeddingsConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

// Config is the full service configuration.
type Config struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`
	// AuditDB is the sqlite file backing the audit chain; empty means
	// in-memory (dev only).
	AuditDB string `yaml:"audit_db"`

	Fetcher       FetcherConfig       `yaml:"fetcher"`
	Anonymization AnonymizationConfig `yaml:"anonymization"`
	Embeddings    EmbeddingsConfig    `yaml:"embeddings"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`

	// ApprovalPolicy is a CEL expression gating record approval; empty
	// means approve on preconditions alone.
	ApprovalPolicy string `yaml:"approval_policy"`
	// SchemaVersion is the active statement schema version.
	SchemaVersion string `yaml:"schema_version"`

	// Retention overrides the built-in per-event-type retention, in days.
	Retention map[string]int `yaml:"retention"`
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:        envOr("PORT", "8080"),
		LogLevel:    envOr("LOG_LEVEL", "INFO"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AuditDB:     os.Getenv("AUDIT_DB"),
		Fetcher: FetcherConfig{
			Identification:     os.Getenv("FETCH_IDENTIFICATION"),
			RateLimitPerSecond: envFloat("FETCH_RATE_LIMIT", 10),
			MaxRetries:         envInt("FETCH_MAX_RETRIES", 3),
			RedisAddr:          os.Getenv("FETCH_REDIS_ADDR"),
		},
		Anonymization: AnonymizationConfig{
			Level:              envOr("ANONYMIZATION_LEVEL", "FULL"),
			TokenizationSecret: os.Getenv("TOKENIZATION_SECRET"),
			VaultKey:           os.Getenv("VAULT_KEY"),
			VaultPath:          os.Getenv("VAULT_PATH"),
		},
		Embeddings: EmbeddingsConfig{
			Endpoint: os.Getenv("EMBEDDINGS_ENDPOINT"),
			APIKey:   os.Getenv("EMBEDDINGS_API_KEY"),
			Model:    os.Getenv("EMBEDDINGS_MODEL"),
		},
		Telemetry: TelemetryConfig{
			Enabled:    os.Getenv("OTLP_ENABLED") == "true",
			Endpoint:   envOr("OTLP_ENDPOINT", "localhost:4317"),
			SampleRate: envFloat("OTLP_SAMPLE_RATE", 1.0),
		},
		ApprovalPolicy: os.Getenv("APPROVAL_POLICY"),
		SchemaVersion:  os.Getenv("SCHEMA_VERSION"),
	}
	return cfg
}

// Validate rejects configurations the pipeline must not start with.
func (c *Config) Validate() error {
	if c.Fetcher.Identification == "" {
		return fmt.Errorf("config: fetcher identification header is required")
	}
	if c.Fetcher.RateLimitPerSecond > 10 {
		return fmt.Errorf("config: fetch rate %.1f req/s exceeds the source cap of 10", c.Fetcher.RateLimitPerSecond)
	}
	if c.Anonymization.TokenizationSecret == "" {
		return fmt.Errorf("config: tokenization secret is required")
	}
	if c.Anonymization.VaultKey == "" {
		return fmt.Errorf("config: vault key is required")
	}
	for eventType, days := range c.Retention {
		if days <= 0 {
			return fmt.Errorf("config: retention for %s must be positive, got %d", eventType, days)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
