// Package page fetches article pages and extracts their readable text for
// word counting.
package page

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"spsdaily/internal/ports"
)

const (
	userAgent = "spsdaily/1.0"
	// snapshotPrefix requests the most recent Wayback Machine capture; used
	// when the live page is unreachable or paywalled.
	snapshotPrefix = "https://web.archive.org/web/2/"
)

// Fetcher retrieves pages, falling back to an archival snapshot.
type Fetcher struct {
	client       *http.Client
	logger       *slog.Logger
	snapshotBase string
}

var _ ports.PageFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; nil gets a 30s-timeout default.
func NewFetcher(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, logger: logger, snapshotBase: snapshotPrefix}
}

// WithSnapshotBase overrides the archival snapshot prefix, for tests.
func (f *Fetcher) WithSnapshotBase(base string) *Fetcher {
	f.snapshotBase = base
	return f
}

// Extract returns the readable body text of the page at pageURL. When the
// live fetch fails it tries the archival snapshot once; after that the
// article is the caller's to drop.
func (f *Fetcher) Extract(ctx context.Context, pageURL string) (string, error) {
	text, err := f.extractFrom(ctx, pageURL, pageURL)
	if err == nil {
		return text, nil
	}

	f.logger.Debug("live page failed, trying snapshot", "url", pageURL, "error", err)

	text, snapErr := f.extractFrom(ctx, f.snapshotBase+pageURL, pageURL)
	if snapErr != nil {
		return "", fmt.Errorf("fetch %s: %w (snapshot: %v)", pageURL, err, snapErr)
	}
	return text, nil
}

func (f *Fetcher) extractFrom(ctx context.Context, fetchURL, canonical string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}

	parsed, err := url.Parse(canonical)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("extract readable text: %w", err)
	}
	return article.TextContent, nil
}
