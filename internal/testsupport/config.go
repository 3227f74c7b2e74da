package testsupport

import (
	"path/filepath"
	"testing"

	"vitae/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options. Retry delays
// are shortened so tests exercising retries finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.LLM.APIKey = "test"
	cfgVal.LLM.RetryBaseDelayMS = 1
	cfgVal.Jobs.RetryBaseDelaySeconds = 0
	cfgVal.Jobs.PollIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxAttempts overrides the job-level attempt bound.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jobs.MaxAttempts = n
	}
}

// WithProvider selects the generation provider and its endpoint.
func WithProvider(name, baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.Provider = name
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.Model = "test-model"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
