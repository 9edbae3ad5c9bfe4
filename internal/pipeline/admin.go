package pipeline

import (
	"context"
	"fmt"

	"arkiv/internal/logging"
	"arkiv/internal/store"
	"arkiv/internal/tasks"
)

// Reenqueue resets a rejected or failed object back to the start of the
// pipeline: active tasks are cancelled, the unresolved package attempt is
// voided, prior error state is cleared, and a fresh download task is
// queued. Preserved and frozen objects are refused.
func (p *Pipeline) Reenqueue(ctx context.Context, objectID string) error {
	object, err := p.store.GetObject(ctx, objectID)
	if err != nil {
		return err
	}
	if object == nil {
		return fmt.Errorf("reenqueue %s: %w", objectID, store.ErrNotFound)
	}
	if object.Status == store.StatusPreserved {
		return fmt.Errorf("reenqueue %s: object is already preserved: %w", objectID, store.ErrConflict)
	}
	if object.Frozen {
		return fmt.Errorf("reenqueue %s: object is frozen: %w", objectID, store.ErrConflict)
	}

	cancelled, err := p.tasks.CancelForObject(ctx, objectID)
	if err != nil {
		return err
	}
	if object.LatestPackageID != 0 {
		if err := p.store.CancelPackage(ctx, object.LatestPackageID); err != nil {
			return err
		}
	}

	expect := make([]store.Status, 0, len(store.AllStatuses()))
	for _, status := range store.AllStatuses() {
		if status != store.StatusPreserved {
			expect = append(expect, status)
		}
	}
	err = p.store.Transition(ctx, objectID, expect, store.StatusDownloading, store.Change{
		ClearError:      true,
		RequireUnfrozen: true,
	})
	if err != nil {
		return err
	}

	if _, err := p.tasks.Enqueue(ctx, tasks.Spec{Queue: tasks.QueueDownloadObject, ObjectID: objectID}); err != nil {
		return err
	}

	p.logger.Info("object reenqueued",
		logging.ObjectID(objectID),
		logging.Int64("cancelled_tasks", cancelled),
	)
	return nil
}

// Freeze excludes objects from automatic pipeline progress and cancels
// their queued work. In-flight stages are not interrupted; the frozen flag
// makes their next conditional transition fail as a conflict instead.
func (p *Pipeline) Freeze(ctx context.Context, objectIDs []string, reason string) (int64, error) {
	frozen, err := p.store.FreezeObjects(ctx, objectIDs, reason, store.FreezeSourceUser)
	if err != nil {
		return 0, err
	}
	for _, objectID := range objectIDs {
		if _, err := p.tasks.CancelForObject(ctx, objectID); err != nil {
			return frozen, err
		}
	}
	p.logger.Info("objects frozen",
		logging.Int64("count", frozen),
		logging.String("reason", reason),
	)
	return frozen, nil
}

// Unfreeze clears the frozen flag. Objects resume being considered by the
// enqueue policy on its next run.
func (p *Pipeline) Unfreeze(ctx context.Context, objectIDs []string) (int64, error) {
	unfrozen, err := p.store.UnfreezeObjects(ctx, objectIDs)
	if err != nil {
		return 0, err
	}
	p.logger.Info("objects unfrozen", logging.Int64("count", unfrozen))
	return unfrozen, nil
}
