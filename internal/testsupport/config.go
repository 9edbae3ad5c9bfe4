package testsupport

import (
	"path/filepath"
	"testing"

	"arkiv/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.PackageDir = filepath.Join(base, "packages")
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Catalog.BaseURL = "http://catalog.test"
	cfg.Preservation.BaseURL = "http://preservation.test"
	cfg.Packaging.Command = "/bin/true"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithDelays overrides the eligibility delay windows, in days.
func WithDelays(preservationDays, updateDays int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.PreservationDelayDays = preservationDays
		cfg.Workflow.UpdateDelayDays = updateDays
	}
}

// WithMaxAttempts overrides the per-task attempt budget.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxAttempts = attempts
	}
}
