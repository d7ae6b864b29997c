package ports

import (
	"context"

	"spsdaily/internal/domain"
)

// FeedFetcher pulls the recent entries of one RSS/Atom feed. A failure means
// "source unavailable" and never aborts the rest of a collection run.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]domain.FeedItem, error)
}

// PageFetcher retrieves the readable text of an article page. Implementations
// may fall back to an archival snapshot before reporting failure.
type PageFetcher interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Classifier is the optional AI collaborator. The pipeline must keep working
// when it is absent or erroring: gates then rest on word count and reputation.
type Classifier interface {
	// Classify reports whether the text fits the category's editorial line.
	Classify(ctx context.Context, category domain.Category, text string) (bool, error)
	// Translate renders text into English from the given source language.
	Translate(ctx context.Context, text, sourceLang string) (string, error)
}

// ReviewChannel presents candidates to the curator and streams decisions back.
// Decisions are delivered at least once and in no particular order.
type ReviewChannel interface {
	SendForReview(ctx context.Context, batch map[domain.Category][]domain.Article) error
	// Listen blocks, invoking onDecision for every button press and onCommand
	// for chat commands; both return the acknowledgement text shown to the
	// curator. Returns when ctx is done.
	Listen(ctx context.Context, onDecision func(context.Context, domain.Decision) string, onCommand func(context.Context, string) string) error
}

// Archive is the append-only history of every approved article. Entries are
// unique by URL and never deleted by normal operation.
type Archive interface {
	Contains(ctx context.Context, url string) (bool, error)
	// ContainsRef reports whether any archived URL hashes to the short ref,
	// so decisions on rotated articles still resolve.
	ContainsRef(ctx context.Context, ref string) (bool, error)
	Add(ctx context.Context, article domain.Article) error
	// ByDate returns the full history grouped by approval date, newest first
	// within each category, for the archive.json export.
	ByDate(ctx context.Context) (map[string]map[domain.Category][]domain.Article, error)
}
