package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBusy means another holder owns the lock and its lease is live.
	ErrBusy = errors.New("lock is held")
	// ErrLost means a renew or release found the lock no longer held by
	// the caller. The holder must stop the protected work immediately.
	ErrLost = errors.New("lock lost")
)

// Reserved lock names. Per-object locks use ObjectLockName.
const (
	NameWorkflow        = "workflow"
	NameSyncObjects     = "sync:objects"
	NameSyncAttachments = "sync:attachments"
	NameSyncHashes      = "sync:hashes"
)

// SyncGroup lists the mutually exclusive sync job locks. Acquiring any one
// of them requires all of them to be free.
func SyncGroup() []string {
	return []string{NameSyncObjects, NameSyncAttachments, NameSyncHashes}
}

// ObjectLockName returns the lock name guarding a single object's pipeline.
func ObjectLockName(objectID string) string {
	return "object:" + objectID
}

// NewHolder returns a unique holder token for one acquisition.
func NewHolder() string {
	return uuid.NewString()
}

// Service grants advisory leases persisted in the workflow database.
// Expired leases are treated as free, so a crashed holder never wedges
// the pipeline for longer than its lease duration.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Acquire takes the named lock for holder with the given lease. Returns
// ErrBusy when another holder has a live lease.
func (s *Service) Acquire(ctx context.Context, name, holder string, lease time.Duration) error {
	now := time.Now()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO locks (name, holder, acquired_ms, expires_ms) VALUES (?, ?, ?, ?)
         ON CONFLICT (name) DO UPDATE
         SET holder = excluded.holder, acquired_ms = excluded.acquired_ms, expires_ms = excluded.expires_ms
         WHERE locks.expires_ms < ?`,
		name,
		holder,
		now.UnixMilli(),
		now.Add(lease).UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("acquire %s: %w", name, ErrBusy)
	}
	return nil
}

// AcquireGroup takes every named lock atomically. If any is busy, none are
// taken.
func (s *Service) AcquireGroup(ctx context.Context, names []string, holder string, lease time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, name := range names {
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO locks (name, holder, acquired_ms, expires_ms) VALUES (?, ?, ?, ?)
             ON CONFLICT (name) DO UPDATE
             SET holder = excluded.holder, acquired_ms = excluded.acquired_ms, expires_ms = excluded.expires_ms
             WHERE locks.expires_ms < ?`,
			name,
			holder,
			now.UnixMilli(),
			now.Add(lease).UnixMilli(),
			now.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("acquire %s: %w", name, ErrBusy)
		}
	}
	return tx.Commit()
}

// Renew extends the caller's lease. ErrLost means the lease expired and
// may have been taken over.
func (s *Service) Renew(ctx context.Context, name, holder string, lease time.Duration) error {
	now := time.Now()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE locks SET expires_ms = ? WHERE name = ? AND holder = ? AND expires_ms >= ?`,
		now.Add(lease).UnixMilli(),
		name,
		holder,
		now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("renew %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("renew %s: %w", name, ErrLost)
	}
	return nil
}

// Release drops the caller's lock. Releasing a lock already lost or taken
// over by another holder is a no-op.
func (s *Service) Release(ctx context.Context, name, holder string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND holder = ?`, name, holder)
	if err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// ReleaseGroup drops every named lock held by holder.
func (s *Service) ReleaseGroup(ctx context.Context, names []string, holder string) error {
	for _, name := range names {
		if err := s.Release(ctx, name, holder); err != nil {
			return err
		}
	}
	return nil
}

// Holder reports the current live holder of a lock, or "" when free.
func (s *Service) Holder(ctx context.Context, name string) (string, error) {
	var holder string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT holder FROM locks WHERE name = ? AND expires_ms >= ?`,
		name,
		time.Now().UnixMilli(),
	).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("holder of %s: %w", name, err)
	}
	return holder, nil
}
