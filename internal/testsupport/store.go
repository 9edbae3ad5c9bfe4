package testsupport

import (
	"context"
	"testing"
	"time"

	"arkiv/internal/config"
	"arkiv/internal/store"
)

// MustOpenStore opens a workflow store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedObject upserts one catalog record and returns the stored object.
// The modified date may be nil for objects the catalog has no timestamp for.
func SeedObject(t testing.TB, st *store.Store, id string, modified *time.Time) *store.Object {
	t.Helper()

	record := store.CatalogRecord{ID: id, Title: "Object " + id, ModifiedDate: modified}
	if _, _, err := st.UpsertCatalogRecords(context.Background(), []store.CatalogRecord{record}); err != nil {
		t.Fatalf("upsert object %s: %v", id, err)
	}
	object, err := st.GetObject(context.Background(), id)
	if err != nil {
		t.Fatalf("get object %s: %v", id, err)
	}
	if object == nil {
		t.Fatalf("object %s missing after upsert", id)
	}
	return object
}

// SeedEligibleObject seeds an object old enough for preservation with both
// metadata hashes known.
func SeedEligibleObject(t testing.TB, st *store.Store, id string, modified time.Time) *store.Object {
	t.Helper()

	SeedObject(t, st, id, &modified)
	ctx := context.Background()
	if err := st.SetMetadataHash(ctx, id, "hash-"+id); err != nil {
		t.Fatalf("set metadata hash: %v", err)
	}
	if err := st.SetAttachmentMetadataHash(ctx, id, "att-hash-"+id); err != nil {
		t.Fatalf("set attachment hash: %v", err)
	}
	refreshed, err := st.GetObject(ctx, id)
	if err != nil {
		t.Fatalf("get object %s: %v", id, err)
	}
	return refreshed
}

// ForceStatus moves an object directly into a status, bypassing stage
// validation. Tests use it to build scenarios mid-pipeline.
func ForceStatus(t testing.TB, st *store.Store, id string, status store.Status) {
	t.Helper()

	if err := st.Transition(context.Background(), id, store.AllStatuses(), status, store.Change{}); err != nil {
		t.Fatalf("force status %s on %s: %v", status, id, err)
	}
}
