package museum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"arkiv/internal/config"
)

// HTTPDoer describes the HTTP client used by the catalog service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient talks to the catalog's REST feed.
type HTTPClient struct {
	baseURL string
	client  HTTPDoer
}

// NewHTTPClient constructs a catalog client from configuration.
func NewHTTPClient(cfg *config.Config) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Catalog.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("catalog.base_url is not configured")
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(cfg.Catalog.RequestTimeout) * time.Second},
	}, nil
}

// NewHTTPClientWith constructs a catalog client with an explicit doer.
func NewHTTPClientWith(baseURL string, client HTTPDoer) *HTTPClient {
	return &HTTPClient{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), client: client}
}

func (c *HTTPClient) ListChangedObjects(ctx context.Context, since *time.Time, offset, limit int) ([]ChangedObject, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	if since != nil {
		query.Set("modified_since", since.UTC().Format(time.RFC3339))
	}

	var page struct {
		Results []ChangedObject `json:"results"`
	}
	if err := c.getJSON(ctx, "/objects?"+query.Encode(), &page); err != nil {
		return nil, fmt.Errorf("list changed objects at offset %d: %w", offset, err)
	}
	return page.Results, nil
}

func (c *HTTPClient) FetchAttachments(ctx context.Context, objectID string) ([]Attachment, error) {
	var page struct {
		Results []Attachment `json:"results"`
	}
	if err := c.getJSON(ctx, "/objects/"+url.PathEscape(objectID)+"/attachments", &page); err != nil {
		return nil, fmt.Errorf("fetch attachments for %s: %w", objectID, err)
	}
	return page.Results, nil
}

func (c *HTTPClient) ComputeHash(ctx context.Context, objectID string) (string, error) {
	var body struct {
		Hash string `json:"hash"`
	}
	if err := c.getJSON(ctx, "/objects/"+url.PathEscape(objectID)+"/hash", &body); err != nil {
		return "", fmt.Errorf("compute hash for %s: %w", objectID, err)
	}
	return body.Hash, nil
}

// DownloadObject writes the object's metadata document and every attachment
// into destDir.
func (c *HTTPClient) DownloadObject(ctx context.Context, objectID, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	metadataPath := filepath.Join(destDir, "metadata.json")
	if err := c.getFile(ctx, "/objects/"+url.PathEscape(objectID), metadataPath); err != nil {
		return nil, fmt.Errorf("download metadata for %s: %w", objectID, err)
	}
	paths := []string{metadataPath}

	attachments, err := c.FetchAttachments(ctx, objectID)
	if err != nil {
		return nil, err
	}
	for _, attachment := range attachments {
		name := attachment.Filename
		if name == "" {
			name = attachment.ID
		}
		target := filepath.Join(destDir, filepath.Base(name))
		endpoint := "/objects/" + url.PathEscape(objectID) + "/attachments/" + url.PathEscape(attachment.ID) + "/content"
		if err := c.getFile(ctx, endpoint, target); err != nil {
			return nil, fmt.Errorf("download attachment %s for %s: %w", attachment.ID, objectID, err)
		}
		paths = append(paths, target)
	}
	return paths, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, dst any) error {
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) getFile(ctx context.Context, endpoint, target string) error {
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(target)
		return fmt.Errorf("write %s: %w", target, err)
	}
	return file.Close()
}

func (c *HTTPClient) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("catalog returned %d for %s", resp.StatusCode, endpoint)
	}
	return resp, nil
}
