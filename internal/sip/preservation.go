package sip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arkiv/internal/config"
)

// PollState is the preservation service's view of a submission.
type PollState string

const (
	PollPending  PollState = "pending"
	PollAccepted PollState = "accepted"
	PollRejected PollState = "rejected"
)

// PollResult carries a submission's state and, for definitive outcomes,
// the service's ingest report.
type PollResult struct {
	State  PollState
	Report string
}

// Preservation is the submission surface of the external preservation
// service.
type Preservation interface {
	// Submit uploads a package and returns the submission identifier.
	Submit(ctx context.Context, packagePath string) (string, error)
	// Poll reports the current state of a submission.
	Poll(ctx context.Context, submissionID string) (PollResult, error)
}

// HTTPDoer describes the HTTP client used by the preservation service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPPreservation talks to the preservation service's REST surface.
type HTTPPreservation struct {
	baseURL string
	client  HTTPDoer
}

// NewHTTPPreservation constructs a preservation client from configuration.
func NewHTTPPreservation(cfg *config.Config) (*HTTPPreservation, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Preservation.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("preservation.base_url is not configured")
	}
	return &HTTPPreservation{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(cfg.Preservation.RequestTimeout) * time.Second},
	}, nil
}

// NewHTTPPreservationWith constructs a preservation client with an explicit
// doer.
func NewHTTPPreservationWith(baseURL string, client HTTPDoer) *HTTPPreservation {
	return &HTTPPreservation{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), client: client}
}

func (p *HTTPPreservation) Submit(ctx context.Context, packagePath string) (string, error) {
	file, err := os.Open(packagePath)
	if err != nil {
		return "", fmt.Errorf("open package: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/submissions", file)
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-tar")
	req.Header.Set("X-Package-Filename", filepath.Base(packagePath))

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit package: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("preservation service returned %d on submit", resp.StatusCode)
	}

	var body struct {
		SubmissionID string `json:"submission_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if body.SubmissionID == "" {
		return "", errors.New("preservation service returned no submission id")
	}
	return body.SubmissionID, nil
}

func (p *HTTPPreservation) Poll(ctx context.Context, submissionID string) (PollResult, error) {
	endpoint := p.baseURL + "/submissions/" + url.PathEscape(submissionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("build poll request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return PollResult{}, fmt.Errorf("poll submission %s: %w", submissionID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return PollResult{}, fmt.Errorf("preservation service returned %d for submission %s", resp.StatusCode, submissionID)
	}

	var body struct {
		Status string `json:"status"`
		Report string `json:"report"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PollResult{}, fmt.Errorf("decode poll response: %w", err)
	}

	switch PollState(body.Status) {
	case PollPending, PollAccepted, PollRejected:
		return PollResult{State: PollState(body.Status), Report: body.Report}, nil
	default:
		return PollResult{}, fmt.Errorf("unknown submission status %q for %s", body.Status, submissionID)
	}
}
