package store

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Eligibility holds the pure inputs of the preservation-pending predicate,
// separated from the database so the delay-window math can be tested against
// synthetic clocks.
type Eligibility struct {
	Status              Status
	Frozen              bool
	MetadataHashKnown   bool
	AttachmentHashKnown bool
	ModifiedDate        *time.Time
	LastPreserved       *time.Time
	HasActiveTask       bool
}

// Windows carries the configured delay windows.
type Windows struct {
	PreservationDelay time.Duration
	UpdateDelay       time.Duration
}

// Pending reports whether an object is due for (re)preservation at the given
// instant. The boundary is inclusive: an object modified exactly
// PreservationDelay ago is eligible.
//
// An object qualifies when it is not frozen, has no active task, has
// complete metadata hashes, and either
//   - it has never been preserved and its modification (when known) is at
//     least PreservationDelay old, or
//   - it has been preserved, was modified afterwards, and that modification
//     is at least UpdateDelay old.
//
// The delay windows exist to avoid preserving content still being actively
// edited at the source.
func Pending(e Eligibility, now time.Time, w Windows) bool {
	if e.Frozen || e.HasActiveTask {
		return false
	}
	if !e.MetadataHashKnown || !e.AttachmentHashKnown {
		return false
	}

	switch e.Status {
	case StatusNew:
		if e.LastPreserved != nil {
			return false
		}
		if e.ModifiedDate == nil {
			return true
		}
		return !e.ModifiedDate.After(now.Add(-w.PreservationDelay))
	case StatusPreserved:
		if e.LastPreserved == nil || e.ModifiedDate == nil {
			return false
		}
		if !e.ModifiedDate.After(*e.LastPreserved) {
			return false
		}
		return !e.ModifiedDate.After(now.Add(-w.UpdateDelay))
	default:
		// Mid-pipeline, rejected, and frozen-in-place objects never
		// reenter automatically.
		return false
	}
}

// EligibilityOf projects an object onto the predicate's inputs. The active
// task flag must be supplied by the caller.
func EligibilityOf(object *Object, hasActiveTask bool) Eligibility {
	return Eligibility{
		Status:              object.Status,
		Frozen:              object.Frozen,
		MetadataHashKnown:   object.MetadataHash != "",
		AttachmentHashKnown: object.AttachmentMetadataHash != "",
		ModifiedDate:        object.ModifiedDate,
		LastPreserved:       object.LastPreserved,
		HasActiveTask:       hasActiveTask,
	}
}

// SelectEligible returns up to limit objects due for preservation, in
// deterministic priority order: never-preserved objects oldest-modified
// first, then updated-but-stale objects oldest-modified first, ties broken
// by identifier. A zero limit means no cap. When ids are provided only
// those objects are considered.
//
// Candidates are prefiltered in SQL (frozen, status, hash completeness, and
// the active-task exclusion via the tasks table); the time-window predicate
// is applied in Go so it shares the exact logic tests exercise.
func (s *Store) SelectEligible(ctx context.Context, now time.Time, w Windows, limit int, ids ...string) ([]*Object, error) {
	query := `SELECT ` + objectColumns + ` FROM objects
        WHERE frozen = 0
          AND status IN (?, ?)
          AND metadata_hash IS NOT NULL
          AND attachment_metadata_hash IS NOT NULL
          AND NOT EXISTS (
              SELECT 1 FROM tasks
              WHERE tasks.object_id = objects.id
                AND tasks.state IN ('pending', 'running')
          )`
	args := []any{StatusNew, StatusPreserved}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select eligible: %w", err)
	}
	defer rows.Close()

	candidates, err := collectObjects(rows)
	if err != nil {
		return nil, err
	}

	var eligible []*Object
	for _, object := range candidates {
		if Pending(EligibilityOf(object, false), now, w) {
			eligible = append(eligible, object)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		aNever := a.LastPreserved == nil
		bNever := b.LastPreserved == nil
		if aNever != bNever {
			return aNever
		}
		at, bt := modifiedOrZero(a), modifiedOrZero(b)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.ID < b.ID
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

func modifiedOrZero(object *Object) time.Time {
	if object.ModifiedDate == nil {
		return time.Time{}
	}
	return *object.ModifiedDate
}
