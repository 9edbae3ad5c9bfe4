package store_test

import (
	"context"
	"testing"
	"time"

	"arkiv/internal/store"
	"arkiv/internal/testsupport"
)

func TestRollbackStageTargetDependsOnHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	modified := time.Now().Add(-40 * 24 * time.Hour)
	preservedAt := time.Now().Add(-60 * 24 * time.Hour)

	testsupport.SeedEligibleObject(t, st, "obj-first", modified)
	testsupport.ForceStatus(t, st, "obj-first", store.StatusDownloading)

	testsupport.SeedEligibleObject(t, st, "obj-again", modified)
	if err := st.Transition(ctx, "obj-again", store.AllStatuses(), store.StatusDownloading, store.Change{LastPreserved: &preservedAt}); err != nil {
		t.Fatalf("mark preserved history: %v", err)
	}

	for id, want := range map[string]store.Status{
		"obj-first": store.StatusNew,
		"obj-again": store.StatusPreserved,
	} {
		if err := st.RollbackStage(ctx, id, store.StatusDownloading, "download failed"); err != nil {
			t.Fatalf("rollback %s: %v", id, err)
		}
		object, err := st.GetObject(ctx, id)
		if err != nil || object == nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if object.Status != want {
			t.Fatalf("%s rolled back to %s, want %s", id, object.Status, want)
		}
		if object.LastError == "" || object.RetryCount != 1 {
			t.Fatalf("%s failure not recorded: %+v", id, object)
		}
	}
}

func TestResetStuckProcessingTargetDependsOnHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	modified := time.Now().Add(-40 * 24 * time.Hour)
	preservedAt := time.Now().Add(-60 * 24 * time.Hour)

	testsupport.SeedEligibleObject(t, st, "obj-first", modified)
	testsupport.ForceStatus(t, st, "obj-first", store.StatusDownloading)

	testsupport.SeedEligibleObject(t, st, "obj-again", modified)
	if err := st.Transition(ctx, "obj-again", store.AllStatuses(), store.StatusDownloading, store.Change{LastPreserved: &preservedAt}); err != nil {
		t.Fatalf("mark preserved history: %v", err)
	}

	testsupport.SeedEligibleObject(t, st, "obj-packaging", modified)
	testsupport.ForceStatus(t, st, "obj-packaging", store.StatusPackaging)

	testsupport.SeedEligibleObject(t, st, "obj-stable", modified)

	reset, err := st.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset != 3 {
		t.Fatalf("reset = %d, want 3", reset)
	}

	for id, want := range map[string]store.Status{
		"obj-first":     store.StatusNew,
		"obj-again":     store.StatusPreserved,
		"obj-packaging": store.StatusDownloaded,
		"obj-stable":    store.StatusNew,
	} {
		object, err := st.GetObject(ctx, id)
		if err != nil || object == nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if object.Status != want {
			t.Fatalf("%s reset to %s, want %s", id, object.Status, want)
		}
	}
}
