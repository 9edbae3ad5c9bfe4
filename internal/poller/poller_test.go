package poller_test

import (
	"context"
	"testing"
	"time"

	"arkiv/internal/poller"
	"arkiv/internal/sip"
	"arkiv/internal/store"
	"arkiv/internal/tasks"
	"arkiv/internal/testsupport"
)

type fixture struct {
	store        *store.Store
	tasks        *tasks.Store
	preservation *testsupport.FakePreservation
	poller       *poller.Poller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	taskStore := tasks.New(st.DB(), cfg.Workflow.MaxAttempts)
	preservation := &testsupport.FakePreservation{}
	return &fixture{
		store:        st,
		tasks:        taskStore,
		preservation: preservation,
		poller:       poller.New(st, taskStore, preservation, cfg, nil),
	}
}

// seedAwaiting puts an object into the given waiting status with a recorded
// submission id.
func seedAwaiting(t *testing.T, st *store.Store, id, submissionID string, status store.Status) {
	t.Helper()
	ctx := context.Background()
	testsupport.SeedEligibleObject(t, st, id, time.Now().AddDate(0, 0, -40))
	err := st.Transition(ctx, id, store.AllStatuses(), status, store.Change{SubmissionID: submissionID})
	if err != nil {
		t.Fatalf("transition %s: %v", id, err)
	}
}

func confirmTask(t *testing.T, f *fixture, objectID string) *tasks.Task {
	t.Helper()
	task, err := f.tasks.ActiveForObject(context.Background(), objectID)
	if err != nil {
		t.Fatalf("active task: %v", err)
	}
	return task
}

func TestRunOnceQueuesConfirmOnVerdict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedAwaiting(t, f.store, "obj-accepted", "sub-1", store.StatusAwaitingConfirmation)
	seedAwaiting(t, f.store, "obj-rejected", "sub-2", store.StatusAwaitingConfirmation)
	seedAwaiting(t, f.store, "obj-pending", "sub-3", store.StatusAwaitingConfirmation)
	f.preservation.SetResult("sub-1", sip.PollResult{State: sip.PollAccepted, Report: "ok"})
	f.preservation.SetResult("sub-2", sip.PollResult{State: sip.PollRejected, Report: "invalid mets"})

	queued, err := f.poller.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}

	task := confirmTask(t, f, "obj-accepted")
	if task == nil || task.Queue != tasks.QueueConfirmSIP {
		t.Fatalf("task = %+v, want confirm task", task)
	}
	var payload tasks.ConfirmPayload
	if err := task.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Outcome != "accepted" || payload.Report != "ok" {
		t.Fatalf("payload = %+v", payload)
	}

	if task := confirmTask(t, f, "obj-pending"); task != nil {
		t.Fatalf("pending object got task %+v", task)
	}

	beats, err := f.store.Heartbeats(ctx)
	if err != nil {
		t.Fatalf("heartbeats: %v", err)
	}
	if _, ok := beats[store.HeartbeatPoller]; !ok {
		t.Fatal("poller heartbeat missing")
	}
}

func TestRunOnceIncludesSubmittedStatus(t *testing.T) {
	f := newFixture(t)

	// A crash between upload and artifact cleanup leaves the object in
	// submitted. The verdict must still get through.
	seedAwaiting(t, f.store, "obj-1", "sub-1", store.StatusSubmitted)
	f.preservation.SetResult("sub-1", sip.PollResult{State: sip.PollAccepted})

	queued, err := f.poller.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if queued != 1 {
		t.Fatalf("queued = %d, want 1", queued)
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	f := newFixture(t)

	seedAwaiting(t, f.store, "obj-1", "sub-1", store.StatusAwaitingConfirmation)
	f.preservation.SetResult("sub-1", sip.PollResult{State: sip.PollAccepted})

	if _, err := f.poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	queued, err := f.poller.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if queued != 0 {
		t.Fatalf("second run queued = %d, want 0", queued)
	}
}

func TestRunOnceSkipsMissingSubmissionID(t *testing.T) {
	f := newFixture(t)

	seedAwaiting(t, f.store, "obj-1", "", store.StatusAwaitingConfirmation)

	queued, err := f.poller.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if queued != 0 {
		t.Fatalf("queued = %d, want 0", queued)
	}
}

func TestRunOnceContinuesPastPollErrors(t *testing.T) {
	f := newFixture(t)

	seedAwaiting(t, f.store, "obj-1", "sub-1", store.StatusAwaitingConfirmation)
	f.preservation.PollErr = context.DeadlineExceeded

	queued, err := f.poller.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if queued != 0 {
		t.Fatalf("queued = %d, want 0", queued)
	}
	if task := confirmTask(t, f, "obj-1"); task != nil {
		t.Fatalf("errored object got task %+v", task)
	}
}
