// Package feed adapts RSS and Atom sources to the collector's port.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"spsdaily/internal/domain"
	"spsdaily/internal/ports"
)

const userAgent = "spsdaily/1.0"

// Fetcher downloads and parses one feed per call.
type Fetcher struct {
	client *http.Client
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; nil gets a 20s-timeout default.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch returns the entries of the feed at url. Items without a usable link
// are silently skipped; any transport or parse failure means the source is
// unavailable for this run.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]domain.FeedItem, error) {
	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = userAgent

	parsed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	items := make([]domain.FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := extractLink(entry)
		if link == "" {
			continue
		}

		items = append(items, domain.FeedItem{
			Title:       entry.Title,
			Link:        link,
			Summary:     pickSummary(entry),
			PublishedAt: publishedAt(entry),
		})
	}
	return items, nil
}

// extractLink prefers the explicit link, falling back to a GUID that looks
// like an HTTP URL.
func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if len(entry.GUID) > 4 && entry.GUID[:4] == "http" {
		return entry.GUID
	}
	return ""
}

func pickSummary(entry *gofeed.Item) string {
	if entry.Description != "" {
		return entry.Description
	}
	return entry.Content
}

// publishedAt resolves the entry timestamp, trying the raw date string when
// gofeed could not parse it; feeds are wildly inconsistent here.
func publishedAt(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	for _, raw := range []string{entry.Published, entry.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
