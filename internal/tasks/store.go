package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrActiveExists is returned by Enqueue when the object already has an
// active task in any queue.
var ErrActiveExists = errors.New("object already has an active task")

// ErrLeaseLost is returned when a lease renewal finds the task no longer
// held by the caller.
var ErrLeaseLost = errors.New("task lease lost")

// Store manages the task queues. It shares the workflow database.
type Store struct {
	db          *sql.DB
	maxAttempts int
}

// New constructs a task store. maxAttempts bounds retries per task.
func New(db *sql.DB, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Store{db: db, maxAttempts: maxAttempts}
}

const taskColumns = "id, queue, object_id, payload, state, attempts, max_attempts, run_at_ms, lease_expires_ms, claimed_by, last_error, created_at, updated_at"

// Enqueue creates a pending task. At most one active task may exist per
// object across all queues; a second enqueue returns ErrActiveExists.
func (s *Store) Enqueue(ctx context.Context, spec Spec) (*Task, error) {
	payload := ""
	if spec.Payload != nil {
		data, err := json.Marshal(spec.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		payload = string(data)
	}

	now := time.Now()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (queue, object_id, payload, state, max_attempts, run_at_ms, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.Queue,
		spec.ObjectID,
		nullableString(payload),
		StatePending,
		s.maxAttempts,
		now.UnixMilli(),
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("enqueue %s for %s: %w", spec.Queue, spec.ObjectID, ErrActiveExists)
		}
		return nil, fmt.Errorf("enqueue %s for %s: %w", spec.Queue, spec.ObjectID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a task by identifier. Missing returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Claim leases the oldest due pending task on a queue. Expired running
// leases are reclaimed first, so tasks orphaned by a crashed worker become
// claimable once their lease runs out. Returns (nil, nil) when the queue
// has no due work.
func (s *Store) Claim(ctx context.Context, queue Queue, holder string, lease time.Duration) (*Task, error) {
	now := time.Now()

	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET state = ?, claimed_by = NULL, lease_expires_ms = NULL, updated_at = ?
         WHERE queue = ? AND state = ? AND lease_expires_ms IS NOT NULL AND lease_expires_ms < ?`,
		StatePending,
		timestamp(now),
		queue,
		StateRunning,
		now.UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("reclaim expired leases: %w", err)
	}

	row := s.db.QueryRowContext(
		ctx,
		`UPDATE tasks
         SET state = ?, claimed_by = ?, lease_expires_ms = ?, attempts = attempts + 1, updated_at = ?
         WHERE id = (
             SELECT id FROM tasks
             WHERE queue = ? AND state = ? AND run_at_ms <= ?
             ORDER BY run_at_ms, id LIMIT 1
         )
         RETURNING `+taskColumns,
		StateRunning,
		holder,
		now.Add(lease).UnixMilli(),
		timestamp(now),
		queue,
		StatePending,
		now.UnixMilli(),
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// RenewLease extends a running task's lease. A task no longer held by the
// caller returns ErrLeaseLost; the worker must stop its stage immediately.
func (s *Store) RenewLease(ctx context.Context, id int64, holder string, lease time.Duration) error {
	now := time.Now()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET lease_expires_ms = ?, updated_at = ?
         WHERE id = ? AND state = ? AND claimed_by = ?`,
		now.Add(lease).UnixMilli(),
		timestamp(now),
		id,
		StateRunning,
		holder,
	)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Complete removes a successfully finished task.
func (s *Store) Complete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Release returns a claimed task to pending without consuming an attempt,
// delaying it briefly. Used when the per-object lock is busy.
func (s *Store) Release(ctx context.Context, id int64, delay time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET state = ?, claimed_by = NULL, lease_expires_ms = NULL,
             attempts = attempts - 1, run_at_ms = ?, updated_at = ?
         WHERE id = ? AND state = ?`,
		StatePending,
		now.Add(delay).UnixMilli(),
		timestamp(now),
		id,
		StateRunning,
	)
	if err != nil {
		return fmt.Errorf("release task: %w", err)
	}
	return nil
}

// Retry reschedules a failed task with exponential backoff, or dead-letters
// it once its attempt budget is exhausted. Returns true when the task will
// run again.
func (s *Store) Retry(ctx context.Context, task *Task, failure string) (bool, error) {
	if task == nil {
		return false, errors.New("task is nil")
	}
	if task.Attempts >= task.MaxAttempts {
		if err := s.Dead(ctx, task.ID, failure); err != nil {
			return false, err
		}
		return false, nil
	}

	now := time.Now()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET state = ?, claimed_by = NULL, lease_expires_ms = NULL,
             run_at_ms = ?, last_error = ?, updated_at = ?
         WHERE id = ?`,
		StatePending,
		now.Add(RetryDelay(task.Attempts)).UnixMilli(),
		failure,
		timestamp(now),
		task.ID,
	)
	if err != nil {
		return false, fmt.Errorf("retry task: %w", err)
	}
	return true, nil
}

// Dead moves a task to the dead-letter state with its final error.
func (s *Store) Dead(ctx context.Context, id int64, failure string) error {
	now := time.Now()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET state = ?, claimed_by = NULL, lease_expires_ms = NULL, last_error = ?, updated_at = ?
         WHERE id = ?`,
		StateDead,
		failure,
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("dead-letter task: %w", err)
	}
	return nil
}

// CancelForObject deletes the object's active task, if any. Returns the
// number of cancelled tasks. Used by reenqueue and freeze.
func (s *Store) CancelForObject(ctx context.Context, objectID string) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE object_id = ? AND state IN (?, ?)`,
		objectID,
		StatePending,
		StateRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel tasks for %s: %w", objectID, err)
	}
	return res.RowsAffected()
}

// ActiveForObject returns the object's active task, or nil.
func (s *Store) ActiveForObject(ctx context.Context, objectID string) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE object_id = ? AND state IN (?, ?) LIMIT 1`,
		objectID,
		StatePending,
		StateRunning,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active task for %s: %w", objectID, err)
	}
	return task, nil
}

// DeadTasks returns dead-lettered tasks, oldest first.
func (s *Store) DeadTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE state = ? ORDER BY id`,
		StateDead,
	)
	if err != nil {
		return nil, fmt.Errorf("dead tasks: %w", err)
	}
	defer rows.Close()

	var result []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}

// Stats counts tasks per queue and state.
func (s *Store) Stats(ctx context.Context) (map[Queue]map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT queue, state, COUNT(1) FROM tasks GROUP BY queue, state`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Queue]map[State]int)
	for rows.Next() {
		var queue Queue
		var state State
		var count int
		if err := rows.Scan(&queue, &state, &count); err != nil {
			return nil, err
		}
		if stats[queue] == nil {
			stats[queue] = make(map[State]int)
		}
		stats[queue][state] = count
	}
	return stats, rows.Err()
}

// DecodePayload unmarshals the task payload into dst.
func (t *Task) DecodePayload(dst any) error {
	if t.Payload == "" {
		return errors.New("task has no payload")
	}
	return json.Unmarshal([]byte(t.Payload), dst)
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id          int64
		queue       string
		objectID    string
		payload     sql.NullString
		state       string
		attempts    int
		maxAttempts int
		runAtMs     int64
		leaseMs     sql.NullInt64
		claimedBy   sql.NullString
		lastError   sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&queue,
		&objectID,
		&payload,
		&state,
		&attempts,
		&maxAttempts,
		&runAtMs,
		&leaseMs,
		&claimedBy,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:          id,
		Queue:       Queue(queue),
		ObjectID:    objectID,
		Payload:     payload.String,
		State:       State(state),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		RunAt:       time.UnixMilli(runAtMs).UTC(),
		ClaimedBy:   claimedBy.String,
		LastError:   lastError.String,
	}
	if leaseMs.Valid {
		expiry := time.UnixMilli(leaseMs.Int64).UTC()
		task.LeaseExpiry = &expiry
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timestamp(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
