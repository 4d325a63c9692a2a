// Package generator calls the external image-generation provider.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com"

// Params is the validated generation request.
type Params struct {
	Model      string
	Prompt     string
	Size       string
	Background string
}

// Artifact is one provider result: a hosted URL or inline base64 PNG.
type Artifact struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

type Result struct {
	Data []Artifact `json:"data"`
}

// UpstreamError carries the provider's own (safe) message so it can be
// surfaced to the caller without leaking internals.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider error (%d): %s", e.Status, e.Message)
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClientFromEnv builds the client; a nil return means OPENAI_API_KEY
// is missing. The request timeout bounds the generator call per the
// hosting platform's deadline (GENERATION_TIMEOUT_SECONDS, default 60).
func NewClientFromEnv() *Client {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil
	}
	base := strings.TrimRight(os.Getenv("OPENAI_BASE_URL"), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := 60 * time.Second
	if v := os.Getenv("GENERATION_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			timeout = d
		}
	}
	return &Client{
		apiKey:  key,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// Generate invokes the images endpoint with model-specific parameters.
func (c *Client) Generate(ctx context.Context, p Params) (*Result, error) {
	body := map[string]any{
		"model":  p.Model,
		"prompt": p.Prompt,
		"n":      1,
	}
	switch p.Model {
	case "gpt-image-1":
		body["size"] = defaultStr(p.Size, "1024x1024")
		body["quality"] = "high"
		body["background"] = defaultStr(p.Background, "auto")
		body["output_format"] = "png"
	case "dall-e-3":
		body["size"] = defaultStr(p.Size, "1024x1024")
		body["quality"] = "hd"
		body["style"] = "vivid"
	default: // dall-e-2
		body["size"] = defaultStr(p.Size, "1024x1024")
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := "image generation failed"
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Message: msg}
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: "provider returned no artifacts"}
	}
	return &result, nil
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
