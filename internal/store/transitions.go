package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Change describes the column mutations applied alongside a status
// transition. Zero values leave the corresponding column untouched.
type Change struct {
	// ClearError resets last_error and the retry counter.
	ClearError bool
	// Error records an error message and bumps the retry counter.
	Error string
	// SubmissionID records the preservation service submission identifier.
	SubmissionID string
	// LastPreserved stamps the successful preservation time.
	LastPreserved *time.Time
	// LatestPackageID links the object to its newest submission package.
	LatestPackageID *int64
	// RequireUnfrozen makes the transition fail with ErrConflict when the
	// object has been frozen since the task was dispatched.
	RequireUnfrozen bool
}

// Transition atomically moves an object from one of the expected statuses to
// the target status, applying the requested mutations in the same UPDATE.
// A transition whose precondition no longer holds returns ErrConflict; the
// caller treats that as a duplicate or stale task and no-ops.
func (s *Store) Transition(ctx context.Context, objectID string, expect []Status, to Status, change Change) error {
	if len(expect) == 0 {
		return fmt.Errorf("transition for %s: no expected statuses", objectID)
	}

	var sets []string
	var args []any

	sets = append(sets, "status = ?")
	args = append(args, to)

	if change.ClearError {
		sets = append(sets, "last_error = NULL", "retry_count = 0")
	}
	if change.Error != "" {
		sets = append(sets, "last_error = ?", "retry_count = retry_count + 1")
		args = append(args, change.Error)
	}
	if change.SubmissionID != "" {
		sets = append(sets, "submission_id = ?")
		args = append(args, change.SubmissionID)
	}
	if change.LastPreserved != nil {
		sets = append(sets, "last_preserved = ?")
		args = append(args, timestamp(*change.LastPreserved))
	}
	if change.LatestPackageID != nil {
		sets = append(sets, "latest_package_id = ?")
		args = append(args, *change.LatestPackageID)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, timestamp(time.Now()))

	query := `UPDATE objects SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND status IN (` + makePlaceholders(len(expect)) + `)`
	args = append(args, objectID)
	for _, status := range expect {
		args = append(args, status)
	}
	if change.RequireUnfrozen {
		query += ` AND frozen = 0`
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition %s to %s: %w", objectID, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	object, err := s.GetObject(ctx, objectID)
	if err != nil {
		return err
	}
	if object == nil {
		return fmt.Errorf("transition %s to %s: %w", objectID, to, ErrNotFound)
	}
	return fmt.Errorf("transition %s to %s: object is %s%s: %w",
		objectID, to, object.Status, frozenSuffix(object), ErrConflict)
}

// RollbackStage returns an object from an in-flight status to its stable
// predecessor, recording the failure. Used when a stage fails and the task
// is scheduled for retry or dead-lettered. A downloading object that has been
// preserved before rolls back to preserved, not new, so an update that fails
// stays visible to the next enqueue scan.
func (s *Store) RollbackStage(ctx context.Context, objectID string, from Status, failure string) error {
	if from == StatusDownloading {
		return s.rollbackDownload(ctx, objectID, failure)
	}
	stable, ok := RollbackStatus(from)
	if !ok {
		return fmt.Errorf("rollback for %s: %s is not an in-flight status", objectID, from)
	}
	return s.Transition(ctx, objectID, []Status{from}, stable, Change{Error: failure})
}

func (s *Store) rollbackDownload(ctx context.Context, objectID string, failure string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE objects
         SET status = CASE WHEN last_preserved IS NOT NULL THEN ? ELSE ? END,
             last_error = ?, retry_count = retry_count + 1, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPreserved, StatusNew,
		failure, timestamp(time.Now()),
		objectID, StatusDownloading,
	)
	if err != nil {
		return fmt.Errorf("rollback download for %s: %w", objectID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	object, err := s.GetObject(ctx, objectID)
	if err != nil {
		return err
	}
	if object == nil {
		return fmt.Errorf("rollback download for %s: %w", objectID, ErrNotFound)
	}
	return fmt.Errorf("rollback download for %s: object is %s%s: %w",
		objectID, object.Status, frozenSuffix(object), ErrConflict)
}

// ResetStuckProcessing rolls every in-flight object back to the start of its
// stage. Called on daemon startup before workers begin, so a crash mid-stage
// cannot strand objects in a processing status with no active worker.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE objects
         SET status = CASE status
             WHEN ? THEN CASE WHEN last_preserved IS NOT NULL THEN ? ELSE ? END
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             updated_at = ?
         WHERE status IN (?, ?, ?)`,
		StatusDownloading, StatusPreserved, StatusNew,
		StatusPackaging, StatusDownloaded,
		StatusSubmitting, StatusPackaged,
		timestamp(time.Now()),
		StatusDownloading,
		StatusPackaging,
		StatusSubmitting,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck objects: %w", err)
	}
	return res.RowsAffected()
}

func frozenSuffix(object *Object) string {
	if object.Frozen {
		return " (frozen)"
	}
	return ""
}
