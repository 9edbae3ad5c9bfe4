package sip_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arkiv/internal/sip"
)

func TestNewSIPID(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if got := sip.NewSIPID(at); got != "20260314-092653" {
		t.Fatalf("sip id = %q", got)
	}

	// Non-UTC inputs normalize to UTC.
	helsinki := time.FixedZone("EET", 2*3600)
	if got := sip.NewSIPID(at.In(helsinki)); got != "20260314-092653" {
		t.Fatalf("sip id in zone = %q", got)
	}
}

func TestFilename(t *testing.T) {
	if got := sip.Filename("obj-1", "20260314-092653"); got != "obj-1-20260314-092653.tar" {
		t.Fatalf("filename = %q", got)
	}
}

func newPreservation(t *testing.T, handler http.HandlerFunc) *sip.HTTPPreservation {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return sip.NewHTTPPreservationWith(server.URL, server.Client())
}

func TestSubmitUploadsPackage(t *testing.T) {
	var uploaded []byte
	client := newPreservation(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submissions" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"submission_id":"sub-42"}`))
	})

	pkg := writeTempPackage(t, "package bytes")
	id, err := client.Submit(context.Background(), pkg)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "sub-42" {
		t.Fatalf("submission id = %q", id)
	}
	if string(uploaded) != "package bytes" {
		t.Fatalf("uploaded = %q", uploaded)
	}
}

func TestPollStates(t *testing.T) {
	cases := []struct {
		body string
		want sip.PollResult
	}{
		{`{"status":"pending"}`, sip.PollResult{State: sip.PollPending}},
		{`{"status":"accepted","report":"ingest ok"}`, sip.PollResult{State: sip.PollAccepted, Report: "ingest ok"}},
		{`{"status":"rejected","report":"invalid mets"}`, sip.PollResult{State: sip.PollRejected, Report: "invalid mets"}},
	}
	for _, tc := range cases {
		body := tc.body
		client := newPreservation(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/submissions/sub-42" {
				t.Errorf("path = %s", r.URL.Path)
			}
			w.Write([]byte(body))
		})
		got, err := client.Poll(context.Background(), "sub-42")
		if err != nil {
			t.Fatalf("poll %s: %v", tc.body, err)
		}
		if got != tc.want {
			t.Fatalf("poll %s = %+v, want %+v", tc.body, got, tc.want)
		}
	}
}

func TestPollRejectsUnknownStatus(t *testing.T) {
	client := newPreservation(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"exploded"}`))
	})
	if _, err := client.Poll(context.Background(), "sub-42"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func writeTempPackage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkg.tar")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write package: %v", err)
	}
	return path
}
