package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spsdaily/internal/config"
	"spsdaily/internal/domain"
	"spsdaily/internal/store"
)

var testNow = time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)

type fakeFeeds struct {
	items map[string][]domain.FeedItem
	errs  map[string]error
}

func (f *fakeFeeds) Fetch(_ context.Context, url string) ([]domain.FeedItem, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.items[url], nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return &cfg
}

func testSeen(t *testing.T) *store.SeenSet {
	t.Helper()
	seen, err := store.LoadSeen(filepath.Join(t.TempDir(), "seen.json"), 7*24*time.Hour,
		func() time.Time { return testNow })
	require.NoError(t, err)
	return seen
}

func newCollector(t *testing.T, feeds *fakeFeeds, cfg *config.Config, seen *store.SeenSet) *Collector {
	t.Helper()
	return New(feeds, seen, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return testNow })
}

func singleFeedConfig(cfg *config.Config, cat domain.Category, feedURL string, weight int) {
	cfg.Categories = map[string]config.CategoryConfig{
		string(cat): {
			MinWords: 600,
			Feeds:    []config.FeedConfig{{Name: "Test Feed", URL: feedURL, Weight: weight}},
		},
	}
}

func TestBlockedDomainExcludedRegardlessOfAnythingElse(t *testing.T) {
	cfg := testConfig(t)
	singleFeedConfig(cfg, domain.CategoryScience, "https://feeds.example/science", 5)

	feeds := &fakeFeeds{items: map[string][]domain.FeedItem{
		"https://feeds.example/science": {
			{Title: "Great Science", Link: "https://sub.medium.com/great-science", PublishedAt: testNow},
			{Title: "Kept Article", Link: "https://nautil.us/kept", PublishedAt: testNow},
		},
	}}

	out, err := newCollector(t, feeds, cfg, testSeen(t)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out[domain.CategoryScience], 1)
	assert.Equal(t, "https://nautil.us/kept", out[domain.CategoryScience][0].URL)
}

func TestClickbaitTitlesExcluded(t *testing.T) {
	cfg := testConfig(t)
	singleFeedConfig(cfg, domain.CategoryScience, "https://feeds.example/science", 2)

	feeds := &fakeFeeds{items: map[string][]domain.FeedItem{
		"https://feeds.example/science": {
			{Title: "7 ways to hack your brain", Link: "https://x.example/a", PublishedAt: testNow},
			{Title: "You won't believe this telescope", Link: "https://x.example/b", PublishedAt: testNow},
			{Title: "The physics of glass", Link: "https://x.example/c", PublishedAt: testNow},
		},
	}}

	out, err := newCollector(t, feeds, cfg, testSeen(t)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out[domain.CategoryScience], 1)
	assert.Equal(t, "The physics of glass", out[domain.CategoryScience][0].Title)
}

func TestStaleItemsExcluded(t *testing.T) {
	cfg := testConfig(t)
	singleFeedConfig(cfg, domain.CategoryScience, "https://feeds.example/science", 2)

	feeds := &fakeFeeds{items: map[string][]domain.FeedItem{
		"https://feeds.example/science": {
			{Title: "Old News", Link: "https://x.example/old", PublishedAt: testNow.Add(-8 * 24 * time.Hour)},
			{Title: "Fresh News", Link: "https://x.example/fresh", PublishedAt: testNow.Add(-2 * 24 * time.Hour)},
			{Title: "Undated Piece", Link: "https://x.example/undated"},
		},
	}}

	out, err := newCollector(t, feeds, cfg, testSeen(t)).Run(context.Background())
	require.NoError(t, err)

	urls := make([]string, 0)
	for _, a := range out[domain.CategoryScience] {
		urls = append(urls, a.URL)
	}
	assert.Equal(t, []string{"https://x.example/fresh", "https://x.example/undated"}, urls)
}

func TestSeenRecordedImmediatelyAndSkipped(t *testing.T) {
	cfg := testConfig(t)
	singleFeedConfig(cfg, domain.CategoryScience, "https://feeds.example/science", 2)
	seen := testSeen(t)

	feeds := &fakeFeeds{items: map[string][]domain.FeedItem{
		"https://feeds.example/science": {
			{Title: "The physics of glass", Link: "https://x.example/c", PublishedAt: testNow},
		},
	}}

	c := newCollector(t, feeds, cfg, seen)

	out, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out[domain.CategoryScience], 1)
	assert.True(t, seen.Seen("https://x.example/c"))

	// The same item must not be emitted again, even within the window.
	out, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out[domain.CategoryScience])
}

func TestSourceFailureDoesNotAbortRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Categories = map[string]config.CategoryConfig{
		string(domain.CategoryScience): {
			MinWords: 600,
			Feeds: []config.FeedConfig{
				{Name: "Broken Feed", URL: "https://broken.example/feed", Weight: 5},
				{Name: "Good Feed", URL: "https://good.example/feed", Weight: 2},
			},
		},
	}

	feeds := &fakeFeeds{
		errs: map[string]error{"https://broken.example/feed": errors.New("connection refused")},
		items: map[string][]domain.FeedItem{
			"https://good.example/feed": {
				{Title: "Survivor", Link: "https://good.example/survivor", PublishedAt: testNow},
			},
		},
	}

	out, err := newCollector(t, feeds, cfg, testSeen(t)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out[domain.CategoryScience], 1)
	assert.Equal(t, "Survivor", out[domain.CategoryScience][0].Title)
}

func TestBooksPoliticalFilter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Categories = map[string]config.CategoryConfig{
		string(domain.CategoryBooks): {
			MinWords: 800,
			Feeds:    []config.FeedConfig{{Name: "Reviews", URL: "https://books.example/feed", Weight: 3}},
		},
		string(domain.CategorySociety): {
			MinWords: 700,
			Feeds:    []config.FeedConfig{{Name: "Society", URL: "https://society.example/feed", Weight: 3}},
		},
	}

	feeds := &fakeFeeds{items: map[string][]domain.FeedItem{
		"https://books.example/feed": {
			{Title: "A Novel About the Election Campaign", Link: "https://books.example/political", PublishedAt: testNow},
			{Title: "On Reading Proust Slowly", Link: "https://books.example/proust", PublishedAt: testNow},
		},
		"https://society.example/feed": {
			// The filter applies only to books.
			{Title: "How Election Systems Shape Cities", Link: "https://society.example/elections", PublishedAt: testNow},
		},
	}}

	out, err := newCollector(t, feeds, cfg, testSeen(t)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out[domain.CategoryBooks], 1)
	assert.Equal(t, "On Reading Proust Slowly", out[domain.CategoryBooks][0].Title)
	assert.Len(t, out[domain.CategorySociety], 1)
}

func TestCandidateFieldsPopulated(t *testing.T) {
	cfg := testConfig(t)
	singleFeedConfig(cfg, domain.CategoryPhilosophy, "https://feeds.example/phil", 4)

	longSummary := "<p>" + strings.Repeat("argument and counterargument ", 20) + "</p>"
	feeds := &fakeFeeds{items: map[string][]domain.FeedItem{
		"https://feeds.example/phil": {
			{Title: "On <em>Being</em>", Link: "https://www.aeon.co/essays/being", Summary: longSummary, PublishedAt: testNow},
		},
	}}

	out, err := newCollector(t, feeds, cfg, testSeen(t)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out[domain.CategoryPhilosophy], 1)

	a := out[domain.CategoryPhilosophy][0]
	assert.Equal(t, "On Being", a.Title, "markup stripped from title")
	assert.Equal(t, "aeon.co", a.Domain)
	assert.Equal(t, domain.CategoryPhilosophy, a.Category)
	assert.Equal(t, 4.0, a.BaseScore)
	assert.Equal(t, domain.StatusCandidate, a.Status)
	assert.True(t, strings.HasSuffix(a.Teaser, "..."), "long teaser truncated")
	assert.LessOrEqual(t, len(a.Teaser), teaserMaxLen+3)
}

func TestTeaserTruncationKeepsRunesIntact(t *testing.T) {
	teaser := strings.TrimSpace(strings.Repeat("длинная аннотация статьи ", 30))
	got := truncateTeaser(teaser, teaserMaxLen)
	assert.True(t, utf8.ValidString(got), "truncation must not split a multibyte rune")
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), teaserMaxLen+3)
}

func TestPerFeedLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Curation.PerFeedLimit = 2
	singleFeedConfig(cfg, domain.CategoryScience, "https://feeds.example/science", 1)

	items := make([]domain.FeedItem, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		items = append(items, domain.FeedItem{
			Title: "Article " + name, Link: "https://x.example/" + name, PublishedAt: testNow,
		})
	}
	feeds := &fakeFeeds{items: map[string][]domain.FeedItem{"https://feeds.example/science": items}}

	out, err := newCollector(t, feeds, cfg, testSeen(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, out[domain.CategoryScience], 2)
}
