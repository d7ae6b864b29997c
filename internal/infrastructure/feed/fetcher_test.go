package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>First Article</title>
      <link>https://example.org/first</link>
      <description>A short summary.</description>
      <pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>GUID Only</title>
      <guid>https://example.org/guid-only</guid>
    </item>
    <item>
      <title>No Link At All</title>
      <guid isPermaLink="false">tag:example.org,2026:1234</guid>
    </item>
  </channel>
</rss>`

func TestFetchParsesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	items, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// The item without a usable link is dropped.
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}

	first := items[0]
	if first.Title != "First Article" || first.Link != "https://example.org/first" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.Summary != "A short summary." {
		t.Fatalf("unexpected summary: %q", first.Summary)
	}
	want := time.Date(2026, time.August, 24, 10, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Fatalf("unexpected published time: %v", first.PublishedAt)
	}

	if items[1].Link != "https://example.org/guid-only" {
		t.Fatalf("http GUID should serve as link: %+v", items[1])
	}
}

func TestFetchReportsServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for failing source")
	}
}

func TestFetchReportsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	if _, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected parse error")
	}
}
