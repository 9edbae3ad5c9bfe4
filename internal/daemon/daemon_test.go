package daemon_test

import (
	"context"
	"testing"

	"arkiv/internal/config"
	"arkiv/internal/daemon"
	"arkiv/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, st, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon not running after start")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second start succeeded")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon still running after stop")
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer first.Stop()

	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
}

func TestNewRequiresCatalogEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Catalog.BaseURL = ""
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := daemon.New(cfg, st, nil); err == nil {
		t.Fatal("expected error without catalog endpoint")
	}
}
