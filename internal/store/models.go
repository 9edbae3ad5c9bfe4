package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an object in the preservation pipeline.
type Status string

const (
	StatusNew                  Status = "new"
	StatusDownloading          Status = "downloading"
	StatusDownloaded           Status = "downloaded"
	StatusPackaging            Status = "packaging"
	StatusPackaged             Status = "packaged"
	StatusSubmitting           Status = "submitting"
	StatusSubmitted            Status = "submitted"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusPreserved            Status = "preserved"
	StatusRejected             Status = "rejected"
)

var allStatuses = []Status{
	StatusNew,
	StatusDownloading,
	StatusDownloaded,
	StatusPackaging,
	StatusPackaged,
	StatusSubmitting,
	StatusSubmitted,
	StatusAwaitingConfirmation,
	StatusPreserved,
	StatusRejected,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusDownloading: {},
	StatusPackaging:   {},
	StatusSubmitting:  {},
}

// stageRollbacks maps each in-flight status back to the stable status a
// failed or reclaimed stage returns the object to. For downloading the map
// holds the target for objects never preserved; RollbackStage sends a
// previously preserved object back to preserved instead.
var stageRollbacks = map[Status]Status{
	StatusDownloading: StatusNew,
	StatusPackaging:   StatusDownloaded,
	StatusSubmitting:  StatusPackaged,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a status ends automatic pipeline progress.
// Rejected objects stay terminal until an administrator reenqueues them.
func (s Status) IsTerminal() bool {
	return s == StatusPreserved || s == StatusRejected
}

// RollbackStatus returns the stable status an in-flight stage rolls back to.
func RollbackStatus(status Status) (Status, bool) {
	stable, ok := stageRollbacks[status]
	return stable, ok
}

// FreezeSource records who froze an object.
type FreezeSource string

const (
	// FreezeSourceUser marks a freeze issued by an administrator.
	FreezeSourceUser FreezeSource = "user"
	// FreezeSourceAutomatic marks a freeze issued by the workflow itself,
	// typically after a preservation error from a collaborator.
	FreezeSourceAutomatic FreezeSource = "automatic"
)

// Object is one preservable unit tracked from the external catalog through
// to a preservation outcome. ID is the stable external catalog identifier.
type Object struct {
	ID           string
	Title        string
	Status       Status
	Frozen       bool
	FreezeReason string
	FreezeSource FreezeSource

	CreatedDate  *time.Time
	ModifiedDate *time.Time

	// MetadataHash and AttachmentMetadataHash must both be known before an
	// object can enter the pipeline. Empty means not yet synced.
	MetadataHash           string
	AttachmentMetadataHash string

	LastPreserved   *time.Time
	SubmissionID    string
	LastError       string
	RetryCount      int
	LatestPackageID int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsProcessing returns true when the object is mid-stage.
func (o Object) IsProcessing() bool {
	return IsProcessingStatus(o.Status)
}

// Package is one submission package generated from an object at a point in
// time. A new row is created per preservation attempt.
type Package struct {
	ID          int64
	ObjectID    string
	SIPID       string
	SIPFilename string
	Location    string

	// ObjectModifiedDate snapshots the object's modification timestamp at
	// packaging time, not the package creation time.
	ObjectModifiedDate     *time.Time
	MetadataHash           string
	AttachmentMetadataHash string

	Downloaded bool
	Packaged   bool
	Uploaded   bool
	Preserved  bool
	Rejected   bool
	Cancelled  bool

	SubmissionID string
	Report       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncCheckpoint is the resumption marker for one long-running catalog scan.
type SyncCheckpoint struct {
	Name string

	// Offset is the cursor position to resume from. Zero means start over.
	Offset int64

	// StartSyncDate is when the in-progress run started; it rolls into
	// PrevStartSyncDate once the run completes, after which only records
	// modified since that watermark need to be scanned.
	StartSyncDate     *time.Time
	PrevStartSyncDate *time.Time

	UpdatedAt time.Time
}

// HealthSummary describes aggregated object counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	New        int
	Processing int
	Awaiting   int
	Preserved  int
	Rejected   int
	Frozen     int
}
