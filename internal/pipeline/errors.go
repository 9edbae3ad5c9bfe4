package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"arkiv/internal/locks"
	"arkiv/internal/store"
)

var (
	// ErrTransient marks failures worth retrying with backoff, typically
	// network errors against the catalog or preservation service.
	ErrTransient = errors.New("transient failure")
	// ErrConflict marks a stage whose precondition no longer holds. The
	// task is a duplicate or stale delivery and must no-op.
	ErrConflict = errors.New("precondition conflict")
	// ErrLockBusy marks contention on the per-object lock. The task is
	// released back to its queue without consuming an attempt.
	ErrLockBusy = errors.New("object lock busy")
	// ErrIntegrity marks data the stage cannot safely proceed on, such as
	// a missing package row. Never retried; the task is dead-lettered.
	ErrIntegrity = errors.New("integrity violation")
	// ErrPreservation marks a definitive failure reported by the
	// preservation service for the object's content. The object is frozen
	// automatically so it stops consuming pipeline capacity.
	ErrPreservation = errors.New("preservation error")
)

// Wrap builds an error that carries stage context while tagging it with a
// marker for later classification. A nil marker defaults to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Disposition tells the worker harness what to do with a failed task.
type Disposition int

const (
	// DispositionRetry reschedules the task with backoff, dead-lettering
	// after the attempt budget.
	DispositionRetry Disposition = iota
	// DispositionDrop discards the task as a no-op.
	DispositionDrop
	// DispositionRelease returns the task to its queue without consuming
	// an attempt.
	DispositionRelease
	// DispositionDead sends the task straight to the dead-letter state.
	DispositionDead
	// DispositionFreeze dead-letters the task and freezes the object.
	DispositionFreeze
)

// Classify maps a stage error to its worker disposition. Unknown errors are
// treated as transient.
func Classify(err error) Disposition {
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
		return DispositionDrop
	case errors.Is(err, ErrLockBusy), errors.Is(err, locks.ErrBusy):
		return DispositionRelease
	case errors.Is(err, ErrPreservation):
		return DispositionFreeze
	case errors.Is(err, ErrIntegrity):
		return DispositionDead
	case errors.Is(err, context.Canceled):
		return DispositionRelease
	default:
		return DispositionRetry
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
