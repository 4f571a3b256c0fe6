package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxFetchBytes caps response bodies so a huge page cannot blow up the
// conversation context.
const maxFetchBytes = 256 * 1024

// FetchURLTool retrieves a URL over HTTP GET. Read-only from the host's
// perspective, so it is not on the unsafe denylist.
type FetchURLTool struct {
	client *http.Client
}

func NewFetchURLTool() *FetchURLTool {
	return &FetchURLTool{
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

func (t *FetchURLTool) Name() string { return "fetch_url" }

func (t *FetchURLTool) Description() string {
	return "Fetch the contents of a URL via HTTP GET. Arguments: url (string)."
}

func (t *FetchURLTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "The URL to fetch."},
		},
		"required": []string{"url"},
	}
}

func (t *FetchURLTool) Unsafe() bool { return false }

func (t *FetchURLTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	rawURL, ok := input["url"].(string)
	if !ok {
		return "", fmt.Errorf("argument 'url' is required and must be a string")
	}

	slog.Info("Fetching URL", "url", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching url: HTTP %d", resp.StatusCode)
	}

	return string(body), nil
}
