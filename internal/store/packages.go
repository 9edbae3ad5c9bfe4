package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const packageColumns = "id, object_id, sip_id, sip_filename, location, object_modified_date, metadata_hash, attachment_metadata_hash, downloaded, packaged, uploaded, preserved, rejected, cancelled, submission_id, report, created_at, updated_at"

// CreatePackage inserts a new submission package row for an object and links
// it as the object's latest package. The SIP filename must be unique; a
// duplicate indicates a stage re-running after completion and surfaces as an
// error rather than a silent overwrite.
func (s *Store) CreatePackage(ctx context.Context, pkg *Package) (*Package, error) {
	if pkg == nil {
		return nil, errors.New("package is nil")
	}
	now := timestamp(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin package tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO packages (
            object_id, sip_id, sip_filename, location, object_modified_date,
            metadata_hash, attachment_metadata_hash, downloaded,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		pkg.ObjectID,
		pkg.SIPID,
		pkg.SIPFilename,
		nullableString(pkg.Location),
		nullableTime(pkg.ObjectModifiedDate),
		nullableString(pkg.MetadataHash),
		nullableString(pkg.AttachmentMetadataHash),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert package %s: %w", pkg.SIPFilename, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE objects SET latest_package_id = ?, updated_at = ? WHERE id = ?`,
		id, now, pkg.ObjectID,
	); err != nil {
		return nil, fmt.Errorf("link latest package: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit package: %w", err)
	}
	return s.GetPackage(ctx, id)
}

// GetPackage fetches a package by identifier. Missing returns (nil, nil).
func (s *Store) GetPackage(ctx context.Context, id int64) (*Package, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = ?`, id)
	pkg, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	return pkg, nil
}

// LatestPackage returns the object's most recent package, or nil.
func (s *Store) LatestPackage(ctx context.Context, objectID string) (*Package, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+packageColumns+` FROM packages WHERE object_id = ? ORDER BY id DESC LIMIT 1`,
		objectID,
	)
	pkg, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest package: %w", err)
	}
	return pkg, nil
}

// PackagesForObject returns the object's package history, oldest first.
func (s *Store) PackagesForObject(ctx context.Context, objectID string) ([]*Package, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+packageColumns+` FROM packages WHERE object_id = ? ORDER BY id`,
		objectID,
	)
	if err != nil {
		return nil, fmt.Errorf("packages for object: %w", err)
	}
	defer rows.Close()

	var packages []*Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// MarkPackagePackaged flags the package as successfully assembled.
func (s *Store) MarkPackagePackaged(ctx context.Context, id int64, location string) error {
	return s.updatePackage(ctx, id, `packaged = 1, location = ?`, nullableString(location))
}

// MarkPackageUploaded flags the package as submitted and records the
// submission identifier assigned by the preservation service.
func (s *Store) MarkPackageUploaded(ctx context.Context, id int64, submissionID string) error {
	return s.updatePackage(ctx, id, `uploaded = 1, submission_id = ?`, nullableString(submissionID))
}

// ResolvePackage records the terminal preservation outcome and the ingest
// report for a package.
func (s *Store) ResolvePackage(ctx context.Context, id int64, preserved bool, report string) error {
	return s.updatePackage(
		ctx, id,
		`preserved = ?, rejected = ?, report = ?`,
		boolToInt(preserved), boolToInt(!preserved), nullableString(report),
	)
}

// CancelPackage marks an unfinished package cancelled, typically because the
// underlying object was frozen or reenqueued mid-flight.
func (s *Store) CancelPackage(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE packages SET cancelled = 1, updated_at = ?
         WHERE id = ? AND preserved = 0 AND rejected = 0`,
		timestamp(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("cancel package: %w", err)
	}
	return nil
}

func (s *Store) updatePackage(ctx context.Context, id int64, set string, args ...any) error {
	args = append(args, timestamp(time.Now()), id)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE packages SET `+set+`, updated_at = ? WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update package %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update package %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanPackage(scanner interface{ Scan(dest ...any) error }) (*Package, error) {
	var (
		id             int64
		objectID       string
		sipID          string
		sipFilename    string
		location       sql.NullString
		objectModified sql.NullString
		metadataHash   sql.NullString
		attachmentHash sql.NullString
		downloaded     int
		packaged       int
		uploaded       int
		preserved      int
		rejected       int
		cancelled      int
		submissionID   sql.NullString
		report         sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&objectID,
		&sipID,
		&sipFilename,
		&location,
		&objectModified,
		&metadataHash,
		&attachmentHash,
		&downloaded,
		&packaged,
		&uploaded,
		&preserved,
		&rejected,
		&cancelled,
		&submissionID,
		&report,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	pkg := &Package{
		ID:                     id,
		ObjectID:               objectID,
		SIPID:                  sipID,
		SIPFilename:            sipFilename,
		Location:               location.String,
		ObjectModifiedDate:     parseNullableTime(objectModified),
		MetadataHash:           metadataHash.String,
		AttachmentMetadataHash: attachmentHash.String,
		Downloaded:             downloaded != 0,
		Packaged:               packaged != 0,
		Uploaded:               uploaded != 0,
		Preserved:              preserved != 0,
		Rejected:               rejected != 0,
		Cancelled:              cancelled != 0,
		SubmissionID:           submissionID.String,
		Report:                 report.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		pkg.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		pkg.UpdatedAt = updated
	}
	return pkg, nil
}
