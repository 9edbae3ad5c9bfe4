package museum

import (
	"context"
	"time"
)

// ChangedObject is one catalog record in a change feed page.
type ChangedObject struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	CreatedAt    *time.Time `json:"created_at"`
	ModifiedAt   *time.Time `json:"modified_at"`
	MetadataHash string     `json:"metadata_hash"`
}

// Attachment describes one file belonging to an object.
type Attachment struct {
	ID         string     `json:"id"`
	Filename   string     `json:"filename"`
	ModifiedAt *time.Time `json:"modified_at"`
	Hash       string     `json:"hash"`
}

// Client is the catalog surface the workflow consumes. Implementations
// must honor the context on every call.
type Client interface {
	// ListChangedObjects returns one page of the catalog's change feed,
	// ordered by modification time. A non-nil since restricts the feed to
	// records modified at or after that instant; nil requests the full
	// feed. A page shorter than limit marks the end of the feed.
	ListChangedObjects(ctx context.Context, since *time.Time, offset, limit int) ([]ChangedObject, error)
	// FetchAttachments lists the attachment descriptors of an object.
	FetchAttachments(ctx context.Context, objectID string) ([]Attachment, error)
	// ComputeHash returns the digest of the object's current metadata.
	ComputeHash(ctx context.Context, objectID string) (string, error)
	// DownloadObject fetches the object's metadata and attachments into
	// destDir and returns the written paths.
	DownloadObject(ctx context.Context, objectID, destDir string) ([]string, error)
}
