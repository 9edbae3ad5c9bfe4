package store

import (
	"context"
	"fmt"
	"time"
)

// Heartbeat sources, one per recurring background procedure.
const (
	HeartbeatSyncObjects     = "sync_objects"
	HeartbeatSyncAttachments = "sync_attachments"
	HeartbeatSyncHashes      = "sync_hashes"
	HeartbeatPoller          = "confirmation_poller"
	HeartbeatDeferredEnqueue = "deferred_enqueue"
)

// SubmitHeartbeat records that a background procedure ran successfully.
func (s *Store) SubmitHeartbeat(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO heartbeats (source, beat_at) VALUES (?, ?)
         ON CONFLICT (source) DO UPDATE SET beat_at = excluded.beat_at`,
		source, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("submit heartbeat %s: %w", source, err)
	}
	return nil
}

// Heartbeats returns the last run time per background source. Sources that
// have never run are absent; operators use this to spot silently failing
// procedures.
func (s *Store) Heartbeats(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, beat_at FROM heartbeats`)
	if err != nil {
		return nil, fmt.Errorf("query heartbeats: %w", err)
	}
	defer rows.Close()

	result := make(map[string]time.Time)
	for rows.Next() {
		var source, raw string
		if err := rows.Scan(&source, &raw); err != nil {
			return nil, err
		}
		if at, err := parseTimeString(raw); err == nil {
			result[source] = at
		}
	}
	return result, rows.Err()
}
