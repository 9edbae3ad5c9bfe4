package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.PackageDir, err = expandPath(c.Paths.PackageDir); err != nil {
		return fmt.Errorf("paths.package_dir: %w", err)
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	defaults := Default().Workflow
	if c.Workflow.DownloadWorkers <= 0 {
		c.Workflow.DownloadWorkers = defaults.DownloadWorkers
	}
	if c.Workflow.PackageWorkers <= 0 {
		c.Workflow.PackageWorkers = defaults.PackageWorkers
	}
	if c.Workflow.SubmitWorkers <= 0 {
		c.Workflow.SubmitWorkers = defaults.SubmitWorkers
	}
	if c.Workflow.ConfirmWorkers <= 0 {
		c.Workflow.ConfirmWorkers = defaults.ConfirmWorkers
	}
	if c.Workflow.MaxAttempts <= 0 {
		c.Workflow.MaxAttempts = defaults.MaxAttempts
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaults.QueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaults.ErrorRetryInterval
	}
	if c.Workflow.TaskLease <= 0 {
		c.Workflow.TaskLease = defaults.TaskLease
	}
	if c.Workflow.ObjectLockLease <= 0 {
		c.Workflow.ObjectLockLease = defaults.ObjectLockLease
	}
	if c.Workflow.SyncLockLease <= 0 {
		c.Workflow.SyncLockLease = defaults.SyncLockLease
	}
	if c.Workflow.EnqueueInterval <= 0 {
		c.Workflow.EnqueueInterval = defaults.EnqueueInterval
	}
	if c.Workflow.EnqueueBatch <= 0 {
		c.Workflow.EnqueueBatch = defaults.EnqueueBatch
	}
	if c.Workflow.SyncChunkSize <= 0 {
		c.Workflow.SyncChunkSize = defaults.SyncChunkSize
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.Catalog.PageSize <= 0 {
		c.Catalog.PageSize = defaultCatalogPageSize
	}
	if c.Preservation.PollInterval <= 0 {
		c.Preservation.PollInterval = defaultPreservationPollInterval
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

// ExpandPath resolves ~ and relative segments into an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
