package main

import (
	"context"
	"log/slog"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"arkiv/internal/config"
	"arkiv/internal/locks"
	"arkiv/internal/logging"
	"arkiv/internal/pipeline"
	"arkiv/internal/store"
	"arkiv/internal/tasks"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the workflow database and runs fn with a signal-aware
// context. The store is shared with a live daemon; every operation reached
// from here coordinates through the same conditional transitions and locks
// the daemon uses.
func (c *commandContext) withStore(fn func(ctx context.Context, cfg *config.Config, st *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, cfg, st)
}

func (c *commandContext) logger(cfg *config.Config) *slog.Logger {
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) taskStore(cfg *config.Config, st *store.Store) *tasks.Store {
	return tasks.New(st.DB(), cfg.Workflow.MaxAttempts)
}

func (c *commandContext) lockService(st *store.Store) *locks.Service {
	return locks.NewService(st.DB())
}

// adminPipeline builds a pipeline for reenqueue/freeze/unfreeze. Those
// operations never reach the catalog, packager, or preservation service, so
// the collaborators stay unset and no endpoint configuration is required.
func (c *commandContext) adminPipeline(cfg *config.Config, st *store.Store) *pipeline.Pipeline {
	return pipeline.New(st, c.taskStore(cfg, st), nil, nil, nil, cfg, c.logger(cfg))
}
