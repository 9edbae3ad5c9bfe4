package sip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"arkiv/internal/config"
)

var commandContext = exec.CommandContext

// Request describes one packaging run.
type Request struct {
	ObjectID  string
	SIPID     string
	SourceDir string
	OutputDir string
}

// Packager turns downloaded object content into a submission package.
type Packager interface {
	// Package builds the package and returns the artifact path.
	Package(ctx context.Context, req Request) (string, error)
}

// CommandPackager shells out to the configured packaging tool. The tool is
// invoked as `<command> <source dir> <output path>` and must leave the
// finished package at the output path.
type CommandPackager struct {
	command string
	timeout time.Duration
}

// NewCommandPackager constructs a packager from configuration.
func NewCommandPackager(cfg *config.Config) (*CommandPackager, error) {
	command := strings.TrimSpace(cfg.Packaging.Command)
	if command == "" {
		return nil, errors.New("packaging.command is not configured")
	}
	return &CommandPackager{
		command: command,
		timeout: time.Duration(cfg.Packaging.Timeout) * time.Second,
	}, nil
}

func (p *CommandPackager) Package(ctx context.Context, req Request) (string, error) {
	if req.SourceDir == "" {
		return "", errors.New("source directory required")
	}
	if req.OutputDir == "" {
		return "", errors.New("output directory required")
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	outputPath := filepath.Join(req.OutputDir, Filename(req.ObjectID, req.SIPID))

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := commandContext(runCtx, p.command, req.SourceDir, outputPath)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("package %s: %w: %s", req.ObjectID, err, detail)
		}
		return "", fmt.Errorf("package %s: %w", req.ObjectID, err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("package %s: tool produced no artifact at %s", req.ObjectID, outputPath)
	}
	return outputPath, nil
}

// Filename returns the canonical package file name for an object and sip id.
func Filename(objectID, sipID string) string {
	return fmt.Sprintf("%s-%s.tar", objectID, sipID)
}

// NewSIPID returns a fresh package identifier derived from the clock.
func NewSIPID(now time.Time) string {
	return now.UTC().Format("20060102-150405")
}
