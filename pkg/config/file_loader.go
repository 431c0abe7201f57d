package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veridata-Labs/fincorpus/core/pkg/auditchain"
)

// LoadFile reads a YAML configuration file and overlays it onto the
// environment-derived configuration. File values win where set; zero values
// leave the base untouched.
func LoadFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if base == nil {
		base = Load()
	}
	merged := *base
	overlay(&merged, &file)
	return &merged, nil
}

func overlay(dst, src *Config) {
	setString(&dst.Port, src.Port)
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.DatabaseURL, src.DatabaseURL)
	setString(&dst.AuditDB, src.AuditDB)

	setString(&dst.Fetcher.Identification, src.Fetcher.Identification)
	if src.Fetcher.RateLimitPerSecond != 0 {
		dst.Fetcher.RateLimitPerSecond = src.Fetcher.RateLimitPerSecond
	}
	if src.Fetcher.MaxRetries != 0 {
		dst.Fetcher.MaxRetries = src.Fetcher.MaxRetries
	}
	setString(&dst.Fetcher.RedisAddr, src.Fetcher.RedisAddr)

	setString(&dst.Anonymization.Level, src.Anonymization.Level)
	setString(&dst.Anonymization.TokenizationSecret, src.Anonymization.TokenizationSecret)
	setString(&dst.Anonymization.VaultKey, src.Anonymization.VaultKey)
	setString(&dst.Anonymization.VaultPath, src.Anonymization.VaultPath)

	setString(&dst.Embeddings.Endpoint, src.Embeddings.Endpoint)
	setString(&dst.Embeddings.APIKey, src.Embeddings.APIKey)
	setString(&dst.Embeddings.Model, src.Embeddings.Model)

	if src.Telemetry.Enabled {
		dst.Telemetry.Enabled = true
	}
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	if src.Telemetry.SampleRate != 0 {
		dst.Telemetry.SampleRate = src.Telemetry.SampleRate
	}

	setString(&dst.ApprovalPolicy, src.ApprovalPolicy)
	setString(&dst.SchemaVersion, src.SchemaVersion)

	if len(src.Retention) > 0 {
		if dst.Retention == nil {
			dst.Retention = make(map[string]int, len(src.Retention))
		}
		for eventType, days := range src.Retention {
			dst.Retention[eventType] = days
		}
	}
}

func setString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// ApplyRetention installs the configured per-event-type retention overrides
// into the audit chain's retention table. Call once at startup, after
// Validate.
func (c *Config) ApplyRetention() {
	for eventType, days := range c.Retention {
		auditchain.SetRetention(eventType, time.Duration(days)*24*time.Hour)
	}
}
