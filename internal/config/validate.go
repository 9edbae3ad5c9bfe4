package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePackaging(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.PackageDir == "" {
		return errors.New("paths.package_dir must be set")
	}
	if c.Paths.ArchiveDir == "" {
		return errors.New("paths.archive_dir must be set")
	}
	return nil
}

func (c *Config) validatePackaging() error {
	if c.Packaging.Timeout <= 0 {
		return errors.New("packaging.timeout must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PreservationDelayDays < 0 {
		return errors.New("workflow.preservation_delay_days must not be negative")
	}
	if c.Workflow.UpdateDelayDays < 0 {
		return errors.New("workflow.update_delay_days must not be negative")
	}
	if c.Workflow.TaskLease < c.Workflow.QueuePollInterval {
		return fmt.Errorf(
			"workflow.task_lease (%ds) must not be shorter than workflow.queue_poll_interval (%ds)",
			c.Workflow.TaskLease, c.Workflow.QueuePollInterval,
		)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
