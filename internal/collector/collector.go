// Package collector turns configured feeds into per-category candidate sets,
// applying the cheap structural filters: seen set, domain blocklist, clickbait
// titles, staleness, and the books political-keyword filter.
package collector

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"spsdaily/internal/config"
	"spsdaily/internal/domain"
	"spsdaily/internal/ports"
	"spsdaily/internal/store"
)

const teaserMaxLen = 200

// Collector walks every configured source once per run.
type Collector struct {
	feeds  ports.FeedFetcher
	seen   *store.SeenSet
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// New wires the feed fetcher and the seen set.
func New(feeds ports.FeedFetcher, seen *store.SeenSet, cfg *config.Config, logger *slog.Logger) *Collector {
	return &Collector{
		feeds:  feeds,
		seen:   seen,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.now = now
	return c
}

// Run fetches every source and returns candidates per category, in source
// iteration order. Every emitted candidate is recorded into the seen set
// immediately, so a later run never re-evaluates it even if it gets rejected
// downstream. A single source failure is logged and skipped.
func (c *Collector) Run(ctx context.Context) (map[domain.Category][]domain.Article, error) {
	cutoff := c.now().Add(-c.cfg.Curation.StaleAfter.Std())
	out := map[domain.Category][]domain.Article{}

	for _, cat := range domain.Categories() {
		catCfg, ok := c.cfg.Categories[string(cat)]
		if !ok {
			continue
		}

		for _, feed := range catCfg.Feeds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			items, err := c.feeds.Fetch(ctx, feed.URL)
			if err != nil {
				c.logger.Warn("source unavailable, skipping",
					"category", cat, "source", feed.Name, "error", err)
				continue
			}

			if len(items) > c.cfg.Curation.PerFeedLimit {
				items = items[:c.cfg.Curation.PerFeedLimit]
			}

			added := 0
			for _, item := range items {
				article, keep := c.screen(cat, feed, item, cutoff)
				if !keep {
					continue
				}
				c.seen.Add(article.URL)
				out[cat] = append(out[cat], article)
				added++
			}

			c.logger.Debug("source processed",
				"category", cat, "source", feed.Name, "added", added, "fetched", len(items))
		}
	}

	return out, nil
}

// screen applies the structural filters to one raw item. Rejections here are
// expected, not errors; they are logged at debug level at most.
func (c *Collector) screen(cat domain.Category, feed config.FeedConfig, item domain.FeedItem, cutoff time.Time) (domain.Article, bool) {
	title := stripHTML(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return domain.Article{}, false
	}

	if c.seen.Seen(link) {
		return domain.Article{}, false
	}

	host := hostOf(link)
	if c.blockedDomain(host) {
		c.logger.Debug("blocked domain", "url", link)
		return domain.Article{}, false
	}

	for _, re := range c.cfg.ClickbaitPatterns() {
		if re.MatchString(title) {
			c.logger.Debug("clickbait title", "title", title)
			return domain.Article{}, false
		}
	}

	if !item.PublishedAt.IsZero() && item.PublishedAt.Before(cutoff) {
		return domain.Article{}, false
	}

	teaser := truncateTeaser(stripHTML(item.Summary), teaserMaxLen)

	if cat == domain.CategoryBooks && c.politicalContent(title, teaser) {
		c.logger.Debug("political content in books", "title", title)
		return domain.Article{}, false
	}

	return domain.Article{
		URL:         link,
		Title:       title,
		Teaser:      teaser,
		Source:      feed.Name,
		Domain:      host,
		Category:    cat,
		PublishedAt: item.PublishedAt,
		BaseScore:   float64(feed.Weight),
		Status:      domain.StatusCandidate,
	}, true
}

func (c *Collector) blockedDomain(host string) bool {
	for _, blocked := range c.cfg.Blocklist {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

func (c *Collector) politicalContent(title, teaser string) bool {
	text := strings.ToLower(title + " " + teaser)
	for _, keyword := range c.cfg.BooksFilter {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func hostOf(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

// stripHTML removes markup and collapses whitespace; feed summaries routinely
// arrive with embedded tags and entities.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// truncateTeaser cuts at a word boundary and appends an ellipsis. The cut is
// measured in runes so multibyte text never ends up split mid-sequence.
func truncateTeaser(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	cut := string(runes[:maxRunes])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
