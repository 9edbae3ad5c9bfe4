package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const objectColumns = "id, title, status, frozen, freeze_reason, freeze_source, created_date, modified_date, metadata_hash, attachment_metadata_hash, last_preserved, submission_id, last_error, retry_count, latest_package_id, created_at, updated_at"

// CatalogRecord is one object as observed in the source catalog.
type CatalogRecord struct {
	ID           string
	Title        string
	CreatedDate  *time.Time
	ModifiedDate *time.Time
	MetadataHash string
}

// GetObject fetches an object by its external identifier. A missing object
// returns (nil, nil).
func (s *Store) GetObject(ctx context.Context, id string) (*Object, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE id = ?`, id)
	object, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return object, nil
}

// ObjectsByStatus returns objects matching a status ordered by identifier.
func (s *Store) ObjectsByStatus(ctx context.Context, statuses ...Status) ([]*Object, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+objectColumns+` FROM objects WHERE status IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query objects by status: %w", err)
	}
	defer rows.Close()
	return collectObjects(rows)
}

// ObjectIDPage returns one page of object identifiers in stable order.
// Sync jobs use it to walk the whole store with a resumable offset.
func (s *Store) ObjectIDPage(ctx context.Context, offset, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM objects ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("page object ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListObjects returns every object, ordered by identifier.
func (s *Store) ListObjects(ctx context.Context) ([]*Object, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+objectColumns+` FROM objects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()
	return collectObjects(rows)
}

// UpsertCatalogRecords inserts or updates objects from a catalog sync chunk.
// The upsert is idempotent by external ID; the modification date only ever
// moves forward so a resumed scan cannot regress a newer observation.
func (s *Store) UpsertCatalogRecords(ctx context.Context, records []CatalogRecord) (inserted, updated int64, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp(time.Now())
	for _, record := range records {
		res, execErr := tx.ExecContext(
			ctx,
			`UPDATE objects SET title = ?, metadata_hash = ?, updated_at = ? WHERE id = ?`,
			nullableString(record.Title),
			nullableString(record.MetadataHash),
			now,
			record.ID,
		)
		if execErr != nil {
			return 0, 0, fmt.Errorf("update object %s: %w", record.ID, execErr)
		}
		affected, execErr := res.RowsAffected()
		if execErr != nil {
			return 0, 0, fmt.Errorf("rows affected: %w", execErr)
		}

		if affected == 0 {
			_, execErr = tx.ExecContext(
				ctx,
				`INSERT INTO objects (id, title, status, created_date, modified_date, metadata_hash, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				record.ID,
				nullableString(record.Title),
				StatusNew,
				nullableTime(record.CreatedDate),
				nullableTime(record.ModifiedDate),
				nullableString(record.MetadataHash),
				now,
				now,
			)
			if execErr != nil {
				return 0, 0, fmt.Errorf("insert object %s: %w", record.ID, execErr)
			}
			inserted++
			continue
		}

		updated++
		if record.ModifiedDate != nil {
			// Monotonic guard: only advance the modification date.
			_, execErr = tx.ExecContext(
				ctx,
				`UPDATE objects SET modified_date = ?
                 WHERE id = ? AND (modified_date IS NULL OR modified_date < ?)`,
				nullableTime(record.ModifiedDate),
				record.ID,
				nullableTime(record.ModifiedDate),
			)
			if execErr != nil {
				return 0, 0, fmt.Errorf("advance modified date %s: %w", record.ID, execErr)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit upsert: %w", err)
	}
	return inserted, updated, nil
}

// SetAttachmentMetadataHash records the cumulative attachment hash for an
// object, observed during attachment sync.
func (s *Store) SetAttachmentMetadataHash(ctx context.Context, id, hash string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE objects SET attachment_metadata_hash = ?, updated_at = ? WHERE id = ?`,
		hash,
		timestamp(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set attachment hash: %w", err)
	}
	return nil
}

// SetMetadataHash records a freshly computed content hash for an object.
func (s *Store) SetMetadataHash(ctx context.Context, id, hash string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE objects SET metadata_hash = ?, updated_at = ? WHERE id = ?`,
		hash,
		timestamp(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set metadata hash: %w", err)
	}
	return nil
}

// FreezeObjects sets the frozen flag on the given objects. Frozen objects
// are skipped by the enqueue policy and no-op any in-flight task at its
// next precondition check.
func (s *Store) FreezeObjects(ctx context.Context, ids []string, reason string, source FreezeSource) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, nullableString(reason), string(source), timestamp(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE objects SET frozen = 1, freeze_reason = ?, freeze_source = ?, updated_at = ?
         WHERE id IN (`+placeholders+`) AND status NOT IN ('`+string(StatusPreserved)+`')`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("freeze objects: %w", err)
	}
	return res.RowsAffected()
}

// UnfreezeObjects clears the frozen flag on the given objects.
func (s *Store) UnfreezeObjects(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, timestamp(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE objects SET frozen = 0, freeze_reason = NULL, freeze_source = NULL, updated_at = ?
         WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("unfreeze objects: %w", err)
	}
	return res.RowsAffected()
}

// Health aggregates object state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, frozen, COUNT(1) FROM objects GROUP BY status, frozen`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("object stats: %w", err)
	}
	defer rows.Close()

	health := HealthSummary{}
	for rows.Next() {
		var status Status
		var frozen int
		var count int
		if err := rows.Scan(&status, &frozen, &count); err != nil {
			return HealthSummary{}, err
		}
		health.Total += count
		if frozen != 0 {
			health.Frozen += count
		}
		switch status {
		case StatusNew:
			health.New += count
		case StatusAwaitingConfirmation, StatusSubmitted:
			health.Awaiting += count
		case StatusPreserved:
			health.Preserved += count
		case StatusRejected:
			health.Rejected += count
		default:
			if IsProcessingStatus(status) || status == StatusDownloaded || status == StatusPackaged {
				health.Processing += count
			}
		}
	}
	return health, rows.Err()
}

func collectObjects(rows *sql.Rows) ([]*Object, error) {
	var objects []*Object
	for rows.Next() {
		object, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, object)
	}
	return objects, rows.Err()
}

func scanObject(scanner interface{ Scan(dest ...any) error }) (*Object, error) {
	var (
		id             string
		title          sql.NullString
		statusStr      string
		frozen         int
		freezeReason   sql.NullString
		freezeSource   sql.NullString
		createdDate    sql.NullString
		modifiedDate   sql.NullString
		metadataHash   sql.NullString
		attachmentHash sql.NullString
		lastPreserved  sql.NullString
		submissionID   sql.NullString
		lastError      sql.NullString
		retryCount     int
		latestPackage  sql.NullInt64
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&title,
		&statusStr,
		&frozen,
		&freezeReason,
		&freezeSource,
		&createdDate,
		&modifiedDate,
		&metadataHash,
		&attachmentHash,
		&lastPreserved,
		&submissionID,
		&lastError,
		&retryCount,
		&latestPackage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	object := &Object{
		ID:                     id,
		Title:                  title.String,
		Status:                 Status(statusStr),
		Frozen:                 frozen != 0,
		FreezeReason:           freezeReason.String,
		FreezeSource:           FreezeSource(freezeSource.String),
		CreatedDate:            parseNullableTime(createdDate),
		ModifiedDate:           parseNullableTime(modifiedDate),
		MetadataHash:           metadataHash.String,
		AttachmentMetadataHash: attachmentHash.String,
		LastPreserved:          parseNullableTime(lastPreserved),
		SubmissionID:           submissionID.String,
		LastError:              lastError.String,
		RetryCount:             retryCount,
		LatestPackageID:        latestPackage.Int64,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		object.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		object.UpdatedAt = updated
	}
	return object, nil
}
