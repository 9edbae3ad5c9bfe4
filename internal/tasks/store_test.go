package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"arkiv/internal/store"
)

func newTaskStore(t *testing.T) *Store {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "arkiv.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st.DB(), 3)
}

// forceDue rewinds a pending task's schedule so the retry sequence can be
// driven without waiting out the backoff.
func forceDue(t *testing.T, ts *Store, id int64) {
	t.Helper()
	if _, err := ts.db.Exec(`UPDATE tasks SET run_at_ms = 0 WHERE id = ?`, id); err != nil {
		t.Fatalf("force schedule: %v", err)
	}
}

func TestEnqueueRejectsSecondActiveTask(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	first, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first.State != StatePending {
		t.Fatalf("state = %s, want pending", first.State)
	}

	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueCreateSIP, ObjectID: "obj-1"}); !errors.Is(err, ErrActiveExists) {
		t.Fatalf("second enqueue error = %v, want ErrActiveExists", err)
	}

	// A different object is unaffected.
	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-2"}); err != nil {
		t.Fatalf("enqueue other object: %v", err)
	}
}

func TestEnqueueAllowedAfterCompletion(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	task, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := ts.Complete(ctx, task.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueCreateSIP, ObjectID: "obj-1"}); err != nil {
		t.Fatalf("enqueue after completion: %v", err)
	}
}

func TestClaimLeasesOldestDueTask(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	first, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := ts.Claim(ctx, QueueDownloadObject, "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claimed = %+v, want task %d", claimed, first.ID)
	}
	if claimed.State != StateRunning {
		t.Fatalf("state = %s, want running", claimed.State)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", claimed.Attempts)
	}
	if claimed.ClaimedBy != "worker-a" {
		t.Fatalf("claimed_by = %q", claimed.ClaimedBy)
	}
	if claimed.LeaseExpiry == nil {
		t.Fatal("lease expiry not set")
	}
}

func TestClaimSkipsFutureAndOtherQueues(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueSubmitSIP, ObjectID: "obj-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := ts.Claim(ctx, QueueSubmitSIP, "worker-a", time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ts.Release(ctx, claimed.ID, time.Hour); err != nil {
		t.Fatalf("release: %v", err)
	}

	if got, err := ts.Claim(ctx, QueueSubmitSIP, "worker-b", time.Minute); err != nil || got != nil {
		t.Fatalf("claim delayed task = %+v, %v; want nil", got, err)
	}
	if got, err := ts.Claim(ctx, QueueDownloadObject, "worker-b", time.Minute); err != nil || got != nil {
		t.Fatalf("claim other queue = %+v, %v; want nil", got, err)
	}
}

func TestClaimReclaimsExpiredLease(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	task, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := ts.Claim(ctx, QueueDownloadObject, "worker-a", -time.Second)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}

	reclaimed, err := ts.Claim(ctx, QueueDownloadObject, "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed == nil || reclaimed.ID != task.ID {
		t.Fatalf("reclaimed = %+v, want task %d", reclaimed, task.ID)
	}
	if reclaimed.ClaimedBy != "worker-b" {
		t.Fatalf("claimed_by = %q, want worker-b", reclaimed.ClaimedBy)
	}
	if reclaimed.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", reclaimed.Attempts)
	}

	// The original holder has lost the lease.
	if err := ts.RenewLease(ctx, task.ID, "worker-a", time.Minute); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("renew error = %v, want ErrLeaseLost", err)
	}
	if err := ts.RenewLease(ctx, task.ID, "worker-b", time.Minute); err != nil {
		t.Fatalf("renew by current holder: %v", err)
	}
}

func TestReleaseRestoresAttemptBudget(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := ts.Claim(ctx, QueueDownloadObject, "worker-a", time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ts.Release(ctx, claimed.ID, 0); err != nil {
		t.Fatalf("release: %v", err)
	}

	again, err := ts.Claim(ctx, QueueDownloadObject, "worker-a", time.Minute)
	if err != nil || again == nil {
		t.Fatalf("claim again: %v", err)
	}
	if again.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1 after release", again.Attempts)
	}
}

func TestRetryBackoffThenDeadLetter(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Attempts 1 and 2 retry.
	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := ts.Claim(ctx, QueueDownloadObject, "worker-a", time.Minute)
		if err != nil || claimed == nil {
			t.Fatalf("claim attempt %d: %v", attempt, err)
		}
		retried, err := ts.Retry(ctx, claimed, "download failed")
		if err != nil {
			t.Fatalf("retry attempt %d: %v", attempt, err)
		}
		if !retried {
			t.Fatalf("attempt %d dead-lettered early", attempt)
		}
		refreshed, err := ts.GetByID(ctx, claimed.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if refreshed.State != StatePending {
			t.Fatalf("state = %s, want pending", refreshed.State)
		}
		wantDelay := RetryDelay(attempt)
		if gap := time.Until(refreshed.RunAt); gap < wantDelay-10*time.Second || gap > wantDelay+10*time.Second {
			t.Fatalf("attempt %d run delay = %s, want about %s", attempt, gap, wantDelay)
		}
		forceDue(t, ts, claimed.ID)
	}

	// Third failure exhausts the budget.
	claimed, err := ts.Claim(ctx, QueueDownloadObject, "worker-a", time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("final claim: %v", err)
	}
	retried, err := ts.Retry(ctx, claimed, "download failed")
	if err != nil {
		t.Fatalf("final retry: %v", err)
	}
	if retried {
		t.Fatal("task retried past its attempt budget")
	}

	dead, err := ts.DeadTasks(ctx)
	if err != nil {
		t.Fatalf("dead tasks: %v", err)
	}
	if len(dead) != 1 || dead[0].LastError != "download failed" {
		t.Fatalf("dead tasks = %+v", dead)
	}

	// A dead task no longer blocks new work for the object.
	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"}); err != nil {
		t.Fatalf("enqueue after dead-letter: %v", err)
	}
}

func TestCancelForObject(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cancelled, err := ts.CancelForObject(ctx, "obj-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", cancelled)
	}
	active, err := ts.ActiveForObject(ctx, "obj-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Fatalf("active = %+v, want nil", active)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	task, err := ts.Enqueue(ctx, Spec{
		Queue:    QueueConfirmSIP,
		ObjectID: "obj-1",
		Payload:  ConfirmPayload{Outcome: OutcomeRejected, Report: "invalid checksum"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var payload ConfirmPayload
	if err := task.DecodePayload(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Outcome != OutcomeRejected || payload.Report != "invalid checksum" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestStats(t *testing.T) {
	ts := newTaskStore(t)
	ctx := context.Background()

	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := ts.Enqueue(ctx, Spec{Queue: QueueDownloadObject, ObjectID: "obj-2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := ts.Claim(ctx, QueueDownloadObject, "worker-a", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	stats, err := ts.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[QueueDownloadObject][StatePending] != 1 {
		t.Fatalf("pending = %d, want 1", stats[QueueDownloadObject][StatePending])
	}
	if stats[QueueDownloadObject][StateRunning] != 1 {
		t.Fatalf("running = %d, want 1", stats[QueueDownloadObject][StateRunning])
	}
}

func TestRetryDelaySchedule(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{8, time.Hour}, // capped at the max interval
	}
	for _, tc := range cases {
		if got := RetryDelay(tc.attempt); got != tc.want {
			t.Errorf("RetryDelay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
