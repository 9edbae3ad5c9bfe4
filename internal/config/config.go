package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	PackageDir string `toml:"package_dir"`
	ArchiveDir string `toml:"archive_dir"`
	LogDir     string `toml:"log_dir"`
}

// Catalog contains configuration for the source-of-truth catalog service.
type Catalog struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	PageSize       int    `toml:"page_size"`
}

// Packaging contains configuration for the external packaging tool that
// turns downloaded content into a submission package.
type Packaging struct {
	Command string `toml:"command"`
	Timeout int    `toml:"timeout"`
}

// Preservation contains configuration for the external preservation service.
type Preservation struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	PollInterval   int    `toml:"poll_interval"`
	StalledAfter   int    `toml:"stalled_after"`
}

// Workflow contains pipeline timing, concurrency, and retry configuration.
// Delay values are in days, everything else in seconds unless noted.
type Workflow struct {
	PreservationDelayDays int `toml:"preservation_delay_days"`
	UpdateDelayDays       int `toml:"update_delay_days"`

	DownloadWorkers int `toml:"download_workers"`
	PackageWorkers  int `toml:"package_workers"`
	SubmitWorkers   int `toml:"submit_workers"`
	ConfirmWorkers  int `toml:"confirm_workers"`

	MaxAttempts        int `toml:"max_attempts"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`

	TaskLease       int `toml:"task_lease"`
	ObjectLockLease int `toml:"object_lock_lease"`
	SyncLockLease   int `toml:"sync_lock_lease"`

	EnqueueInterval int `toml:"enqueue_interval"`
	EnqueueBatch    int `toml:"enqueue_batch"`

	SyncChunkSize     int `toml:"sync_chunk_size"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for arkiv.
//
// Configuration sections by subsystem:
//   - Paths: data, package, archive, and log directories
//   - Catalog: source catalog endpoint and paging
//   - Packaging: external packaging tool invocation
//   - Preservation: preservation service endpoint and polling
//   - Workflow: delay windows, worker counts, retries, lock leases
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Catalog      Catalog      `toml:"catalog"`
	Packaging    Packaging    `toml:"packaging"`
	Preservation Preservation `toml:"preservation"`
	Workflow     Workflow     `toml:"workflow"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/arkiv/config.toml")
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates every directory the workflow needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.PackageDir, c.Paths.ArchiveDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the workflow database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "arkiv.db")
}

// PreservationDelay returns the minimum age of an unpreserved object before
// it becomes eligible for preservation.
func (c *Config) PreservationDelay() time.Duration {
	return time.Duration(c.Workflow.PreservationDelayDays) * 24 * time.Hour
}

// UpdateDelay returns the minimum age of a modification before a previously
// preserved object becomes eligible again.
func (c *Config) UpdateDelay() time.Duration {
	return time.Duration(c.Workflow.UpdateDelayDays) * 24 * time.Hour
}
