package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCheckpoint loads the checkpoint for a sync kind, creating an empty one
// on first use.
func (s *Store) GetCheckpoint(ctx context.Context, name string) (*SyncCheckpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT name, cursor_offset, start_sync_date, prev_start_sync_date, updated_at
         FROM sync_checkpoints WHERE name = ?`,
		name,
	)
	checkpoint, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		now := timestamp(time.Now())
		if _, err := s.db.ExecContext(
			ctx,
			`INSERT INTO sync_checkpoints (name, cursor_offset, updated_at) VALUES (?, 0, ?)
             ON CONFLICT (name) DO NOTHING`,
			name, now,
		); err != nil {
			return nil, fmt.Errorf("create checkpoint %s: %w", name, err)
		}
		return &SyncCheckpoint{Name: name}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", name, err)
	}
	return checkpoint, nil
}

// UpdateCheckpointOffset persists the scan cursor after each chunk so an
// interrupted run resumes near where it stopped.
func (s *Store) UpdateCheckpointOffset(ctx context.Context, name string, offset int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_checkpoints SET cursor_offset = ?, updated_at = ? WHERE name = ?`,
		offset, timestamp(time.Now()), name,
	)
	if err != nil {
		return fmt.Errorf("update checkpoint %s: %w", name, err)
	}
	return nil
}

// StartCheckpoint stamps the start of a sync run unless a prior incomplete
// run is being resumed.
func (s *Store) StartCheckpoint(ctx context.Context, name string, startedAt time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_checkpoints SET start_sync_date = ?, updated_at = ?
         WHERE name = ? AND start_sync_date IS NULL`,
		timestamp(startedAt), timestamp(time.Now()), name,
	)
	if err != nil {
		return fmt.Errorf("start checkpoint %s: %w", name, err)
	}
	return nil
}

// FinishCheckpoint completes a sync run: the offset resets and the run's
// start date becomes the watermark for the next incremental scan.
func (s *Store) FinishCheckpoint(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_checkpoints
         SET cursor_offset = 0, prev_start_sync_date = start_sync_date,
             start_sync_date = NULL, updated_at = ?
         WHERE name = ?`,
		timestamp(time.Now()), name,
	)
	if err != nil {
		return fmt.Errorf("finish checkpoint %s: %w", name, err)
	}
	return nil
}

// ResetCheckpoint clears all progress for a sync kind; the next run scans
// from the beginning (a requested full resync).
func (s *Store) ResetCheckpoint(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_checkpoints
         SET cursor_offset = 0, start_sync_date = NULL, prev_start_sync_date = NULL, updated_at = ?
         WHERE name = ?`,
		timestamp(time.Now()), name,
	)
	if err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", name, err)
	}
	return nil
}

func scanCheckpoint(scanner interface{ Scan(dest ...any) error }) (*SyncCheckpoint, error) {
	var (
		name       string
		offset     int64
		start      sql.NullString
		prevStart  sql.NullString
		updatedRaw string
	)
	if err := scanner.Scan(&name, &offset, &start, &prevStart, &updatedRaw); err != nil {
		return nil, err
	}
	checkpoint := &SyncCheckpoint{
		Name:              name,
		Offset:            offset,
		StartSyncDate:     parseNullableTime(start),
		PrevStartSyncDate: parseNullableTime(prevStart),
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		checkpoint.UpdatedAt = updated
	}
	return checkpoint, nil
}
