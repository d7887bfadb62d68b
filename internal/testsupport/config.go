package testsupport

import (
	"path/filepath"
	"testing"

	"reelsmith/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.LLM.APIKey = "test"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.MediaBaseURL = "http://127.0.0.1:0/media"
	// Keep retry sleeps negligible in tests.
	cfg.Pipeline.RetryBaseDelayMS = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithTransition selects a concat transition on the test config.
func WithTransition(name string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Compose.Transition = name
	}
}
