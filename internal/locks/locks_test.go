package locks_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"arkiv/internal/locks"
	"arkiv/internal/store"
)

func newService(t *testing.T) *locks.Service {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "arkiv.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return locks.NewService(st.DB())
}

func TestAcquireExcludesOtherHolders(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	name := locks.ObjectLockName("obj-1")

	if err := svc.Acquire(ctx, name, "holder-a", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := svc.Acquire(ctx, name, "holder-b", time.Minute); !errors.Is(err, locks.ErrBusy) {
		t.Fatalf("second acquire error = %v, want ErrBusy", err)
	}

	// Other names stay free.
	if err := svc.Acquire(ctx, locks.ObjectLockName("obj-2"), "holder-b", time.Minute); err != nil {
		t.Fatalf("acquire other name: %v", err)
	}
}

func TestReleaseFreesLock(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.Acquire(ctx, locks.NameWorkflow, "holder-a", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := svc.Release(ctx, locks.NameWorkflow, "holder-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := svc.Acquire(ctx, locks.NameWorkflow, "holder-b", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestExpiredLeaseIsTakenOver(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	name := locks.ObjectLockName("obj-1")

	if err := svc.Acquire(ctx, name, "holder-a", -time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := svc.Acquire(ctx, name, "holder-b", time.Minute); err != nil {
		t.Fatalf("takeover: %v", err)
	}

	// The dead holder cannot renew and its release is harmless.
	if err := svc.Renew(ctx, name, "holder-a", time.Minute); !errors.Is(err, locks.ErrLost) {
		t.Fatalf("renew error = %v, want ErrLost", err)
	}
	if err := svc.Release(ctx, name, "holder-a"); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	holder, err := svc.Holder(ctx, name)
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if holder != "holder-b" {
		t.Fatalf("holder = %q, want holder-b", holder)
	}
}

func TestRenewExtendsLease(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	name := locks.ObjectLockName("obj-1")

	if err := svc.Acquire(ctx, name, "holder-a", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := svc.Renew(ctx, name, "holder-a", time.Hour); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if err := svc.Acquire(ctx, name, "holder-b", time.Minute); !errors.Is(err, locks.ErrBusy) {
		t.Fatalf("acquire after renew = %v, want ErrBusy", err)
	}
}

func TestAcquireGroupAllOrNothing(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	// One member held by somebody else blocks the whole group.
	if err := svc.Acquire(ctx, locks.NameSyncHashes, "other", time.Minute); err != nil {
		t.Fatalf("acquire member: %v", err)
	}
	err := svc.AcquireGroup(ctx, locks.SyncGroup(), "holder-a", time.Minute)
	if !errors.Is(err, locks.ErrBusy) {
		t.Fatalf("group acquire error = %v, want ErrBusy", err)
	}

	// No member may have been taken by the failed attempt.
	holder, err := svc.Holder(ctx, locks.NameSyncObjects)
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if holder != "" {
		t.Fatalf("sync:objects holder = %q, want free", holder)
	}

	if err := svc.Release(ctx, locks.NameSyncHashes, "other"); err != nil {
		t.Fatalf("release member: %v", err)
	}
	if err := svc.AcquireGroup(ctx, locks.SyncGroup(), "holder-a", time.Minute); err != nil {
		t.Fatalf("group acquire: %v", err)
	}
	if err := svc.ReleaseGroup(ctx, locks.SyncGroup(), "holder-a"); err != nil {
		t.Fatalf("group release: %v", err)
	}
	if err := svc.Acquire(ctx, locks.NameSyncObjects, "holder-b", time.Minute); err != nil {
		t.Fatalf("acquire after group release: %v", err)
	}
}

func TestNewHolderTokensAreUnique(t *testing.T) {
	a := locks.NewHolder()
	b := locks.NewHolder()
	if a == "" || a == b {
		t.Fatalf("holder tokens %q, %q", a, b)
	}
}
