package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetchTimeout bounds a single document download.
const fetchTimeout = 30 * time.Second

// Fetcher downloads document bodies over HTTP. GitHub blob and tree URLs are
// rewritten to raw content URLs before the request goes out.
type Fetcher struct {
	httpClient *http.Client
	token      string
}

// NewFetcher creates a fetcher. token authenticates GitHub raw-content
// requests and may be empty (public repositories only).
func NewFetcher(token string) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: fetchTimeout},
		token:      token,
	}
}

// Fetch downloads one document, truncating the body at maxBytes. The bool
// return reports whether truncation occurred.
func (f *Fetcher) Fetch(ctx context.Context, docURL string, maxBytes int) (string, bool, error) {
	downloadURL := ConvertToRawURL(docURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch document %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("document fetch returned HTTP %d for %s", resp.StatusCode, downloadURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		return "", false, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxBytes {
		return string(body[:maxBytes]), true, nil
	}
	return string(body), false, nil
}
