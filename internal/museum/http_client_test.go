package museum_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arkiv/internal/museum"
)

func newServer(t *testing.T, handler http.HandlerFunc) *museum.HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return museum.NewHTTPClientWith(server.URL, server.Client())
}

func TestListChangedObjects(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/objects" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("offset"); got != "100" {
			t.Errorf("offset = %s", got)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %s", got)
		}
		if got := r.URL.Query().Get("modified_since"); got != "" {
			t.Errorf("modified_since = %s, want unset", got)
		}
		w.Write([]byte(`{"results":[{"id":"obj-1","title":"Vase","modified_at":"2026-01-02T03:04:05Z","metadata_hash":"abc"}]}`))
	})

	page, err := client.ListChangedObjects(context.Background(), nil, 100, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].ID != "obj-1" || page[0].MetadataHash != "abc" {
		t.Fatalf("page = %+v", page)
	}
	if page[0].ModifiedAt == nil {
		t.Fatal("modified_at not parsed")
	}
}

func TestListChangedObjectsSendsWatermark(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("modified_since"); got != "2026-03-01T12:00:00Z" {
			t.Errorf("modified_since = %s", got)
		}
		w.Write([]byte(`{"results":[]}`))
	})

	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := client.ListChangedObjects(context.Background(), &since, 0, 50); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestComputeHash(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/objects/obj-1/hash" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"hash":"deadbeef"}`))
	})

	hash, err := client.ComputeHash(context.Background(), "obj-1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash != "deadbeef" {
		t.Fatalf("hash = %q", hash)
	}
}

func TestDownloadObjectWritesMetadataAndAttachments(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/objects/obj-1":
			w.Write([]byte(`{"id":"obj-1"}`))
		case "/objects/obj-1/attachments":
			w.Write([]byte(`{"results":[{"id":"att-1","filename":"photo.tif"}]}`))
		case "/objects/obj-1/attachments/att-1/content":
			w.Write([]byte("image bytes"))
		default:
			http.NotFound(w, r)
		}
	})

	dir := t.TempDir()
	paths, err := client.DownloadObject(context.Background(), "obj-1", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	content, err := os.ReadFile(filepath.Join(dir, "photo.tif"))
	if err != nil {
		t.Fatalf("read attachment: %v", err)
	}
	if string(content) != "image bytes" {
		t.Fatalf("attachment content = %q", content)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	if _, err := client.ListChangedObjects(context.Background(), nil, 0, 10); err == nil {
		t.Fatal("expected error from 502 response")
	}
}
