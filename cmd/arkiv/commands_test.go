package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arkiv/internal/store"
	"arkiv/internal/testsupport"
)

func TestEnqueueCommandQueuesEligibleObjects(t *testing.T) {
	env := setupCLITestEnv(t)
	aged := time.Now().AddDate(0, 0, -40)
	testsupport.SeedEligibleObject(t, env.store, "obj-1", aged)
	testsupport.SeedEligibleObject(t, env.store, "obj-2", aged)

	out, _, err := runCLI(t, env.configPath, "enqueue")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	requireContains(t, out, "Queued 2 object(s)")

	out, _, err = runCLI(t, env.configPath, "enqueue")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	requireContains(t, out, "Queued 0 object(s)")
}

func TestEnqueueCommandRejectsCountWithIDs(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env.configPath, "enqueue", "5", "--ids", "obj-1"); err == nil {
		t.Fatal("expected count and --ids to conflict")
	}
}

func TestDeferredEnqueueToggle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "deferred-enqueue", "enable")
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	requireContains(t, out, "enabled")

	value, err := env.store.GetSetting(context.Background(), store.SettingDeferredEnqueue, "disabled")
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if value != "enabled" {
		t.Fatalf("setting = %q, want enabled", value)
	}

	out, _, err = runCLI(t, env.configPath, "deferred-enqueue", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "enabled")
}

func TestFreezeAndUnfreezeCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.SeedEligibleObject(t, env.store, "obj-1", time.Now().AddDate(0, 0, -40))

	if _, _, err := runCLI(t, env.configPath, "freeze", "obj-1"); err == nil {
		t.Fatal("freeze without --reason succeeded")
	}

	out, _, err := runCLI(t, env.configPath, "freeze", "--reason", "broken export", "obj-1")
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	requireContains(t, out, "Froze 1 object(s)")

	object, err := env.store.GetObject(context.Background(), "obj-1")
	if err != nil {
		t.Fatalf("get object: %v", err)
	}
	if !object.Frozen || object.FreezeReason != "broken export" {
		t.Fatalf("object = %+v, want frozen with reason", object)
	}

	out, _, err = runCLI(t, env.configPath, "unfreeze", "obj-1")
	if err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	requireContains(t, out, "Unfroze 1 object(s)")
}

func TestReenqueueCommandRefusesPreserved(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.SeedEligibleObject(t, env.store, "obj-1", time.Now().AddDate(0, 0, -40))
	testsupport.ForceStatus(t, env.store, "obj-1", store.StatusPreserved)

	if _, _, err := runCLI(t, env.configPath, "reenqueue", "obj-1"); err == nil {
		t.Fatal("reenqueue of preserved object succeeded")
	}
}

func TestStatusCommandRendersSections(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.SeedEligibleObject(t, env.store, "obj-1", time.Now().AddDate(0, 0, -40))

	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Objects")
	requireContains(t, out, "download_object")
	requireContains(t, out, "Deferred enqueue: disabled")
}

func TestObjectsListFiltersByStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.SeedEligibleObject(t, env.store, "obj-1", time.Now().AddDate(0, 0, -40))
	testsupport.SeedEligibleObject(t, env.store, "obj-2", time.Now().AddDate(0, 0, -40))
	testsupport.ForceStatus(t, env.store, "obj-2", store.StatusRejected)

	out, _, err := runCLI(t, env.configPath, "objects", "list", "--status", "rejected")
	if err != nil {
		t.Fatalf("objects list: %v", err)
	}
	requireContains(t, out, "obj-2")
	if _, _, err := runCLI(t, env.configPath, "objects", "list", "--status", "bogus"); err == nil {
		t.Fatal("unknown status accepted")
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, env.configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, env.configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("overwrite without --overwrite succeeded")
	}
}
