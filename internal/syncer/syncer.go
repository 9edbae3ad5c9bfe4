package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"arkiv/internal/config"
	"arkiv/internal/locks"
	"arkiv/internal/logging"
	"arkiv/internal/museum"
	"arkiv/internal/store"
)

// Checkpoint names, one per sync kind.
const (
	CheckpointObjects     = "objects"
	CheckpointAttachments = "attachments"
	CheckpointHashes      = "hashes"
)

// Syncer runs the three catalog synchronization jobs. The jobs share and
// mutate overlapping object metadata, so they are mutually exclusive
// cluster-wide: each run holds the whole sync lock group for its duration.
type Syncer struct {
	store   *store.Store
	catalog museum.Client
	locks   *locks.Service
	logger  *slog.Logger

	chunkSize int
	lease     time.Duration
}

// New constructs a syncer.
func New(st *store.Store, catalog museum.Client, lockService *locks.Service, cfg *config.Config, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = logging.NewNop()
	}
	chunkSize := cfg.Workflow.SyncChunkSize
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &Syncer{
		store:     st,
		catalog:   catalog,
		locks:     lockService,
		logger:    logging.WithComponent(logger, "syncer"),
		chunkSize: chunkSize,
		lease:     time.Duration(cfg.Workflow.SyncLockLease) * time.Second,
	}
}

// SyncObjects streams the catalog change feed into the object store.
// Upserts are idempotent by external id and an object's modified date only
// moves forward, so resuming a partially finished scan never rewinds
// records. After a completed run the checkpoint's watermark narrows the
// next scan to records modified since that run started. With restart the
// checkpoint is discarded and the scan covers the full catalog.
func (s *Syncer) SyncObjects(ctx context.Context, restart bool) error {
	return s.run(ctx, CheckpointObjects, store.HeartbeatSyncObjects, restart, func(ctx context.Context, since *time.Time, offset int) (int, error) {
		page, err := s.catalog.ListChangedObjects(ctx, since, offset, s.chunkSize)
		if err != nil {
			return 0, fmt.Errorf("list changed objects: %w", err)
		}
		if len(page) == 0 {
			return 0, nil
		}
		records := make([]store.CatalogRecord, len(page))
		for i, object := range page {
			records[i] = store.CatalogRecord{
				ID:           object.ID,
				Title:        object.Title,
				CreatedDate:  object.CreatedAt,
				ModifiedDate: object.ModifiedAt,
				MetadataHash: object.MetadataHash,
			}
		}
		inserted, updated, err := s.store.UpsertCatalogRecords(ctx, records)
		if err != nil {
			return 0, err
		}
		s.logger.Debug("object chunk synced",
			logging.Sync(CheckpointObjects),
			logging.Int("offset", offset),
			logging.Int64("inserted", inserted),
			logging.Int64("updated", updated),
		)
		return len(page), nil
	})
}

// SyncAttachments refreshes every object's cumulative attachment metadata
// digest. A changed digest marks the object as modified at the attachment
// level even when its own metadata is untouched.
func (s *Syncer) SyncAttachments(ctx context.Context, restart bool) error {
	return s.run(ctx, CheckpointAttachments, store.HeartbeatSyncAttachments, restart, func(ctx context.Context, _ *time.Time, offset int) (int, error) {
		ids, err := s.store.ObjectIDPage(ctx, offset, s.chunkSize)
		if err != nil {
			return 0, err
		}
		for _, id := range ids {
			attachments, err := s.catalog.FetchAttachments(ctx, id)
			if err != nil {
				return 0, fmt.Errorf("fetch attachments for %s: %w", id, err)
			}
			digest, err := attachmentDigest(attachments)
			if err != nil {
				return 0, err
			}
			if err := s.store.SetAttachmentMetadataHash(ctx, id, digest); err != nil {
				return 0, err
			}
		}
		return len(ids), nil
	})
}

// SyncHashes refreshes every object's metadata digest from the catalog.
func (s *Syncer) SyncHashes(ctx context.Context, restart bool) error {
	return s.run(ctx, CheckpointHashes, store.HeartbeatSyncHashes, restart, func(ctx context.Context, _ *time.Time, offset int) (int, error) {
		ids, err := s.store.ObjectIDPage(ctx, offset, s.chunkSize)
		if err != nil {
			return 0, err
		}
		for _, id := range ids {
			digest, err := s.catalog.ComputeHash(ctx, id)
			if err != nil {
				return 0, fmt.Errorf("compute hash for %s: %w", id, err)
			}
			if err := s.store.SetMetadataHash(ctx, id, digest); err != nil {
				return 0, err
			}
		}
		return len(ids), nil
	})
}

// run is the common scan skeleton: take the group lock, resume or restart
// the checkpoint, process chunks while persisting the cursor and renewing
// the lease, and roll the checkpoint over on completion. The chunk callback
// receives the previous completed run's start as the watermark; a missing
// or reset checkpoint passes nil, meaning a full scan. A busy lock group
// surfaces as locks.ErrBusy; callers treat it as a non-fatal skip.
func (s *Syncer) run(
	ctx context.Context,
	name string,
	heartbeat string,
	restart bool,
	chunk func(ctx context.Context, since *time.Time, offset int) (int, error),
) error {
	holder := locks.NewHolder()
	if err := s.locks.AcquireGroup(ctx, locks.SyncGroup(), holder, s.lease); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	defer func() {
		if err := s.locks.ReleaseGroup(context.WithoutCancel(ctx), locks.SyncGroup(), holder); err != nil {
			s.logger.Error("release sync locks", logging.Sync(name), logging.Error(err))
		}
	}()

	if restart {
		if err := s.store.ResetCheckpoint(ctx, name); err != nil {
			return err
		}
	}
	checkpoint, err := s.store.GetCheckpoint(ctx, name)
	if err != nil {
		return err
	}
	if err := s.store.StartCheckpoint(ctx, name, time.Now()); err != nil {
		return err
	}
	since := checkpoint.PrevStartSyncDate
	offset := int(checkpoint.Offset)
	if offset > 0 {
		s.logger.Info("resuming sync from checkpoint", logging.Sync(name), logging.Int("offset", offset))
	}

	for {
		if err := ctx.Err(); err != nil {
			// Interrupted: the checkpoint stays valid for resumption.
			return err
		}
		processed, err := chunk(ctx, since, offset)
		if err != nil {
			return fmt.Errorf("sync %s at offset %d: %w", name, offset, err)
		}
		if processed == 0 {
			break
		}
		offset += processed
		if err := s.store.UpdateCheckpointOffset(ctx, name, int64(offset)); err != nil {
			return err
		}
		if err := s.renewGroup(ctx, holder); err != nil {
			return fmt.Errorf("sync %s: %w", name, err)
		}
		if err := s.store.SubmitHeartbeat(ctx, heartbeat); err != nil {
			return err
		}
		if processed < s.chunkSize {
			break
		}
	}

	if err := s.store.FinishCheckpoint(ctx, name); err != nil {
		return err
	}
	if err := s.store.SubmitHeartbeat(ctx, heartbeat); err != nil {
		return err
	}
	s.logger.Info("sync finished", logging.Sync(name), logging.Int("records", offset))
	return nil
}

// renewGroup extends every lease in the sync group. A lost lease means
// another process may be syncing already, so the scan stops immediately.
func (s *Syncer) renewGroup(ctx context.Context, holder string) error {
	for _, name := range locks.SyncGroup() {
		if err := s.locks.Renew(ctx, name, holder, s.lease); err != nil {
			return err
		}
	}
	return nil
}

// attachmentDigest computes a stable digest over attachment descriptors.
// Order-insensitive: the catalog does not guarantee listing order.
func attachmentDigest(attachments []museum.Attachment) (string, error) {
	sorted := make([]museum.Attachment, len(attachments))
	copy(sorted, attachments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	hasher := sha256.New()
	encoder := json.NewEncoder(hasher)
	for _, attachment := range sorted {
		if err := encoder.Encode(attachment); err != nil {
			return "", fmt.Errorf("hash attachment %s: %w", attachment.ID, err)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
