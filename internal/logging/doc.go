// Package logging builds the slog loggers used across the workflow.
//
// It provides a console handler for interactive use, a JSON handler for
// machine consumption, typed attribute helpers, and the standardized field
// keys (object id, queue, stage) every component logs with.
package logging
