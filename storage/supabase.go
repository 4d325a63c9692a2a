// Package storage persists generated artifacts to Supabase Storage and
// hands back publicly resolvable URLs. The vendor surface is two plain
// REST calls, so this stays a small hand-rolled client.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultBucket = "memoji-images"

type Client struct {
	baseURL string
	apiKey  string
	bucket  string
	http    *http.Client

	// Now is injectable for tests (it determines the YYYY/MM prefix).
	Now func() time.Time
}

// NewClientFromEnv reads SUPABASE_URL plus the service-role key
// (falling back to the anon key). A nil client means storage is not
// configured; callers must treat uploads as best-effort.
func NewClientFromEnv() *Client {
	url := strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	key := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if key == "" {
		key = os.Getenv("SUPABASE_ANON_KEY")
	}
	if url == "" || key == "" {
		return nil
	}
	bucket := os.Getenv("SUPABASE_STORAGE_BUCKET")
	if bucket == "" {
		bucket = defaultBucket
	}
	return &Client{
		baseURL: url,
		apiKey:  key,
		bucket:  bucket,
		http:    &http.Client{Timeout: 30 * time.Second},
		Now:     time.Now,
	}
}

// ObjectPath builds the deterministic YYYY/MM/<hash>.png layout.
func (c *Client) ObjectPath(hash string) string {
	now := c.Now().UTC()
	return fmt.Sprintf("%d/%02d/%s.png", now.Year(), int(now.Month()), hash)
}

// Upload stores PNG bytes under the hash-derived path, overwriting on
// collision (idempotent re-upload), and returns the public URL.
func (c *Client) Upload(ctx context.Context, data []byte, hash string) (string, error) {
	path := c.ObjectPath(hash)
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("x-upsert", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("storage upload failed: %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, path), nil
}
