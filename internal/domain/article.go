package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Category is the closed set of sections the site publishes.
type Category string

const (
	CategoryScience    Category = "science"
	CategoryPhilosophy Category = "philosophy"
	CategorySociety    Category = "society"
	CategoryBooks      Category = "books"
	CategoryEssays     Category = "essays"
)

// Categories returns all known categories in display order.
func Categories() []Category {
	return []Category{
		CategoryScience,
		CategoryPhilosophy,
		CategorySociety,
		CategoryBooks,
		CategoryEssays,
	}
}

// ValidCategory reports whether name is a member of the closed category set.
func ValidCategory(name string) bool {
	for _, c := range Categories() {
		if string(c) == name {
			return true
		}
	}
	return false
}

// Status enumerates the lifecycle states of an article.
type Status string

const (
	StatusCandidate   Status = "candidate"
	StatusPending     Status = "pending"
	StatusLive        Status = "live"
	StatusEditorsPick Status = "editors_pick"
	StatusRejected    Status = "rejected"
	StatusArchived    Status = "archived"
)

// Article is the central entity. The canonical URL is its identity across all
// categories and all stores. JSON field names match the documents the site
// renderer consumes.
type Article struct {
	URL          string    `json:"url"`
	Title        string    `json:"headline"`
	Teaser       string    `json:"teaser"`
	Source       string    `json:"source"`
	Domain       string    `json:"domain,omitempty"`
	Category     Category  `json:"category,omitempty"`
	PublishedAt  time.Time `json:"published,omitzero"`
	WordCount    int       `json:"word_count,omitempty"`
	ReadingMin   int       `json:"reading_min,omitempty"`
	BaseScore    float64   `json:"base_score,omitempty"`
	Score        float64   `json:"score,omitempty"`
	Status       Status    `json:"status,omitempty"`
	ApprovedDate string    `json:"approvedDate,omitempty"`
	FrontPage    bool      `json:"frontPage,omitempty"`
	EditorsPick  bool      `json:"isEditorsPick,omitempty"`
}

// Ref returns a short stable identifier for the article URL, suitable for
// transports that cannot carry the full URL (Telegram callback data is capped
// at 64 bytes).
func (a Article) Ref() string {
	return RefOf(a.URL)
}

// RefOf derives the short identifier for a canonical URL.
func RefOf(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8])
}

// Action is an operator decision kind.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionPick    Action = "pick"
)

// Decision is one operator verdict on a pending article. Delivery is
// at-least-once and unordered, so applying a Decision must be replayable.
type Decision struct {
	Ref    string
	Action Action
}

// FeedItem is a raw entry as returned by a feed source, before any filtering.
type FeedItem struct {
	Title       string
	Link        string
	Summary     string
	PublishedAt time.Time
}
