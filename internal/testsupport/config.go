package testsupport

import (
	"path/filepath"
	"testing"

	"clippress/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.BlobDir = filepath.Join(base, "blobs")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Providers.OpenAI.APIKey = "test"
	cfg.Providers.Groq.APIKey = "test"
	cfg.Providers.Gemini.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithPlatform appends a platform seed to the test config.
func WithPlatform(platform config.Platform) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Platforms = append(cfg.Platforms, platform)
	}
}
