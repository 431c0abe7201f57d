package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veridata-Labs/fincorpus/core/pkg/auditchain"
	"github.com/Veridata-Labs/fincorpus/core/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: System must boot with safe defaults in dev mode.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("FETCH_IDENTIFICATION", "")
	t.Setenv("FETCH_RATE_LIMIT", "")
	t.Setenv("FETCH_MAX_RETRIES", "")
	t.Setenv("ANONYMIZATION_LEVEL", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 10.0, cfg.Fetcher.RateLimitPerSecond)
	assert.Equal(t, 3, cfg.Fetcher.MaxRetries)
	assert.Equal(t, "FULL", cfg.Anonymization.Level)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: Ops can control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("FETCH_IDENTIFICATION", "fincorpus admin@example.com")
	t.Setenv("FETCH_RATE_LIMIT", "5")
	t.Setenv("EMBEDDINGS_MODEL", "text-embedding-3-small")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "fincorpus admin@example.com", cfg.Fetcher.Identification)
	assert.Equal(t, 5.0, cfg.Fetcher.RateLimitPerSecond)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Fetcher: config.FetcherConfig{
				Identification:     "fincorpus admin@example.com",
				RateLimitPerSecond: 10,
			},
			Anonymization: config.AnonymizationConfig{
				TokenizationSecret: "secret",
				VaultKey:           "key",
			},
		}
	}

	assert.NoError(t, valid().Validate())

	missing := valid()
	missing.Fetcher.Identification = ""
	assert.Error(t, missing.Validate())

	tooFast := valid()
	tooFast.Fetcher.RateLimitPerSecond = 11
	assert.Error(t, tooFast.Validate())

	noSecret := valid()
	noSecret.Anonymization.TokenizationSecret = ""
	assert.Error(t, noSecret.Validate())

	badRetention := valid()
	badRetention.Retention = map[string]int{"RECORD_CREATED": 0}
	assert.Error(t, badRetention.Validate())
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fincorpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: WARN
fetcher:
  identification: "fincorpus ops@example.com"
  rate_limit_per_second: 8
anonymization:
  level: IRREVERSIBLE
  tokenization_secret: file-secret
retention:
  LOGIN_SUCCESS: 400
`), 0o600))

	base := &config.Config{
		Port:     "8080",
		LogLevel: "INFO",
		Fetcher:  config.FetcherConfig{MaxRetries: 3},
	}
	cfg, err := config.LoadFile(path, base)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port) // not in file, base preserved
	assert.Equal(t, "WARN", cfg.LogLevel)
	assert.Equal(t, "fincorpus ops@example.com", cfg.Fetcher.Identification)
	assert.Equal(t, 8.0, cfg.Fetcher.RateLimitPerSecond)
	assert.Equal(t, 3, cfg.Fetcher.MaxRetries)
	assert.Equal(t, "IRREVERSIBLE", cfg.Anonymization.Level)
	assert.Equal(t, "file-secret", cfg.Anonymization.TokenizationSecret)
	assert.Equal(t, 400, cfg.Retention["LOGIN_SUCCESS"])
}

func TestLoadFileMissing(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestApplyRetention(t *testing.T) {
	cfg := &config.Config{Retention: map[string]int{"CONFIG_TEST_EVENT": 42}}
	cfg.ApplyRetention()
	assert.Equal(t, 42*24*time.Hour, auditchain.RetentionFor("CONFIG_TEST_EVENT"))
}
