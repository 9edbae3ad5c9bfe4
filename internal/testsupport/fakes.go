package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"arkiv/internal/museum"
	"arkiv/internal/sip"
)

// FakeCatalog is an in-memory museum.Client for tests.
type FakeCatalog struct {
	mu sync.Mutex

	Objects     []museum.ChangedObject
	Attachments map[string][]museum.Attachment
	Hashes      map[string]string

	// Err, when set, is returned by every call.
	Err error

	Downloads int
}

func (f *FakeCatalog) ListChangedObjects(_ context.Context, since *time.Time, offset, limit int) ([]museum.ChangedObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	feed := f.Objects
	if since != nil {
		feed = nil
		for _, object := range f.Objects {
			// Records without a modification time always appear; the
			// feed cannot prove they predate the watermark.
			if object.ModifiedAt == nil || !object.ModifiedAt.Before(*since) {
				feed = append(feed, object)
			}
		}
	}
	if offset >= len(feed) {
		return nil, nil
	}
	end := offset + limit
	if end > len(feed) {
		end = len(feed)
	}
	page := make([]museum.ChangedObject, end-offset)
	copy(page, feed[offset:end])
	return page, nil
}

func (f *FakeCatalog) FetchAttachments(_ context.Context, objectID string) ([]museum.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Attachments[objectID], nil
}

func (f *FakeCatalog) ComputeHash(_ context.Context, objectID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	hash, ok := f.Hashes[objectID]
	if !ok {
		return "", fmt.Errorf("no hash for %s", objectID)
	}
	return hash, nil
}

func (f *FakeCatalog) DownloadObject(_ context.Context, objectID, destDir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Downloads++
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(destDir, "metadata.json")
	if err := os.WriteFile(path, []byte(`{"id":"`+objectID+`"}`), 0o644); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// FakePackager writes an artifact file instead of running a packaging tool.
type FakePackager struct {
	mu sync.Mutex

	Err      error
	Packaged []sip.Request
}

func (f *FakePackager) Package(_ context.Context, req sip.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.Packaged = append(f.Packaged, req)
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(req.OutputDir, sip.Filename(req.ObjectID, req.SIPID))
	if err := os.WriteFile(path, []byte("sip"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// FakePreservation is an in-memory preservation service for tests.
type FakePreservation struct {
	mu sync.Mutex

	SubmitErr error
	PollErr   error

	// Results maps submission ids to poll responses. Unknown ids poll as
	// pending.
	Results map[string]sip.PollResult

	Submitted []string
	nextID    int
}

func (f *FakePreservation) Submit(_ context.Context, packagePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.nextID++
	id := fmt.Sprintf("sub-%d", f.nextID)
	f.Submitted = append(f.Submitted, packagePath)
	return id, nil
}

func (f *FakePreservation) Poll(_ context.Context, submissionID string) (sip.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PollErr != nil {
		return sip.PollResult{}, f.PollErr
	}
	result, ok := f.Results[submissionID]
	if !ok {
		return sip.PollResult{State: sip.PollPending}, nil
	}
	return result, nil
}

// SetResult records the poll response for a submission id.
func (f *FakePreservation) SetResult(submissionID string, result sip.PollResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Results == nil {
		f.Results = make(map[string]sip.PollResult)
	}
	f.Results[submissionID] = result
}
