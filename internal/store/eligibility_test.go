package store_test

import (
	"context"
	"testing"
	"time"

	"arkiv/internal/store"
	"arkiv/internal/testsupport"
)

var testWindows = store.Windows{
	PreservationDelay: 30 * 24 * time.Hour,
	UpdateDelay:       30 * 24 * time.Hour,
}

func timePtr(t time.Time) *time.Time { return &t }

func TestPendingPredicate(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	preservationBoundary := now.Add(-testWindows.PreservationDelay)
	updateBoundary := now.Add(-testWindows.UpdateDelay)
	preserved := now.Add(-90 * 24 * time.Hour)

	base := store.Eligibility{
		Status:              store.StatusNew,
		MetadataHashKnown:   true,
		AttachmentHashKnown: true,
	}

	cases := []struct {
		name string
		edit func(e *store.Eligibility)
		want bool
	}{
		{
			name: "new at exact delay boundary",
			edit: func(e *store.Eligibility) { e.ModifiedDate = timePtr(preservationBoundary) },
			want: true,
		},
		{
			name: "new one second inside the delay",
			edit: func(e *store.Eligibility) { e.ModifiedDate = timePtr(preservationBoundary.Add(time.Second)) },
			want: false,
		},
		{
			name: "new without modification date",
			edit: func(e *store.Eligibility) {},
			want: true,
		},
		{
			name: "new but already preserved once",
			edit: func(e *store.Eligibility) {
				e.ModifiedDate = timePtr(preservationBoundary.Add(-time.Hour))
				e.LastPreserved = timePtr(preserved)
			},
			want: false,
		},
		{
			name: "frozen",
			edit: func(e *store.Eligibility) {
				e.ModifiedDate = timePtr(preservationBoundary)
				e.Frozen = true
			},
			want: false,
		},
		{
			name: "active task",
			edit: func(e *store.Eligibility) {
				e.ModifiedDate = timePtr(preservationBoundary)
				e.HasActiveTask = true
			},
			want: false,
		},
		{
			name: "metadata hash unknown",
			edit: func(e *store.Eligibility) {
				e.ModifiedDate = timePtr(preservationBoundary)
				e.MetadataHashKnown = false
			},
			want: false,
		},
		{
			name: "attachment hash unknown",
			edit: func(e *store.Eligibility) {
				e.ModifiedDate = timePtr(preservationBoundary)
				e.AttachmentHashKnown = false
			},
			want: false,
		},
		{
			name: "preserved and modified afterwards at exact update boundary",
			edit: func(e *store.Eligibility) {
				e.Status = store.StatusPreserved
				e.LastPreserved = timePtr(preserved)
				e.ModifiedDate = timePtr(updateBoundary)
			},
			want: true,
		},
		{
			name: "preserved and modified one second inside the update delay",
			edit: func(e *store.Eligibility) {
				e.Status = store.StatusPreserved
				e.LastPreserved = timePtr(preserved)
				e.ModifiedDate = timePtr(updateBoundary.Add(time.Second))
			},
			want: false,
		},
		{
			name: "preserved but not modified since",
			edit: func(e *store.Eligibility) {
				e.Status = store.StatusPreserved
				e.LastPreserved = timePtr(preserved)
				e.ModifiedDate = timePtr(preserved.Add(-time.Hour))
			},
			want: false,
		},
		{
			name: "preserved without modification date",
			edit: func(e *store.Eligibility) {
				e.Status = store.StatusPreserved
				e.LastPreserved = timePtr(preserved)
			},
			want: false,
		},
		{
			name: "preserved without preservation stamp",
			edit: func(e *store.Eligibility) {
				e.Status = store.StatusPreserved
				e.ModifiedDate = timePtr(updateBoundary)
			},
			want: false,
		},
		{
			name: "mid-pipeline status",
			edit: func(e *store.Eligibility) {
				e.Status = store.StatusDownloading
				e.ModifiedDate = timePtr(preservationBoundary)
			},
			want: false,
		},
		{
			name: "rejected stays out",
			edit: func(e *store.Eligibility) {
				e.Status = store.StatusRejected
				e.ModifiedDate = timePtr(preservationBoundary)
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := base
			tc.edit(&e)
			if got := store.Pending(e, now, testWindows); got != tc.want {
				t.Fatalf("Pending = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelectEligibleHonorsDelayBoundary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now()

	testsupport.SeedEligibleObject(t, st, "obj-due", now.Add(-testWindows.PreservationDelay))
	testsupport.SeedEligibleObject(t, st, "obj-fresh", now.Add(-testWindows.PreservationDelay).Add(time.Second))

	eligible, err := st.SelectEligible(ctx, now, testWindows, 0)
	if err != nil {
		t.Fatalf("select eligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != "obj-due" {
		t.Fatalf("eligible = %+v, want only obj-due", eligible)
	}
}

func TestSelectEligibleExcludesIncompleteHashes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now()
	modified := now.Add(-40 * 24 * time.Hour)

	// Seeded from the catalog only: no metadata or attachment digest yet.
	testsupport.SeedObject(t, st, "obj-unhashed", &modified)
	testsupport.SeedEligibleObject(t, st, "obj-complete", modified)

	eligible, err := st.SelectEligible(ctx, now, testWindows, 0)
	if err != nil {
		t.Fatalf("select eligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != "obj-complete" {
		t.Fatalf("eligible = %+v, want only obj-complete", eligible)
	}
}

func TestSelectEligibleOrdersNeverPreservedFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now()

	older := now.Add(-60 * 24 * time.Hour)
	newer := now.Add(-40 * 24 * time.Hour)
	preservedAt := now.Add(-90 * 24 * time.Hour)

	testsupport.SeedEligibleObject(t, st, "obj-new-newer", newer)
	testsupport.SeedEligibleObject(t, st, "obj-new-older", older)
	testsupport.SeedEligibleObject(t, st, "obj-updated", older)
	if err := st.Transition(ctx, "obj-updated", store.AllStatuses(), store.StatusPreserved, store.Change{LastPreserved: &preservedAt}); err != nil {
		t.Fatalf("mark preserved: %v", err)
	}

	eligible, err := st.SelectEligible(ctx, now, testWindows, 0)
	if err != nil {
		t.Fatalf("select eligible: %v", err)
	}
	if len(eligible) != 3 {
		t.Fatalf("eligible = %d, want 3", len(eligible))
	}
	order := []string{eligible[0].ID, eligible[1].ID, eligible[2].ID}
	want := []string{"obj-new-older", "obj-new-newer", "obj-updated"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
