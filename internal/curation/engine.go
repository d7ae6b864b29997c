// Package curation implements the decision state machine over the publication
// store: approve/reject/pick transitions, the auto-approve timeout path, and
// the retention rotation. Every transition is a pure function of (stored
// state, decision) applied inside an exclusive section, so redelivered or
// duplicated decisions collapse into no-ops.
package curation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spsdaily/internal/config"
	"spsdaily/internal/domain"
	"spsdaily/internal/ports"
	"spsdaily/internal/store"
)

const dateLayout = "2006-01-02"

// Engine applies decisions and sweeps against the shared store.
type Engine struct {
	store   *store.Store
	archive ports.Archive
	cfg     *config.Config
	logger  *slog.Logger
	now     func() time.Time
}

// New wires the publication store and the append-only archive.
func New(st *store.Store, archive ports.Archive, cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		store:   st,
		archive: archive,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Enqueue replaces the curation queue with a fresh gated batch and stamps the
// review window start.
func (e *Engine) Enqueue(ctx context.Context, ranked map[domain.Category][]domain.Article) error {
	return e.store.Update(func(st *store.State) error {
		st.Pending = store.Pending{
			SentAt:     e.now(),
			Categories: map[domain.Category][]domain.Article{},
		}
		for cat, articles := range ranked {
			if len(articles) > 0 {
				st.Pending.Categories[cat] = articles
			}
		}
		return nil
	})
}

// Apply executes one decision and returns the acknowledgement text for the
// sender. Decisions referencing an article that already left the queue are
// no-ops: delivery is at-least-once and a curator may press a button twice.
func (e *Engine) Apply(ctx context.Context, d domain.Decision) (string, error) {
	var (
		result         string
		archiveChanged bool
	)

	err := e.store.Update(func(st *store.State) error {
		cat, idx := findPending(st.Pending, d.Ref)
		if idx < 0 {
			if inLive(st.Live, d.Ref) {
				result = "Already processed"
				return nil
			}
			// Live entries rotate out after the retention window, but the
			// archive keeps them forever; a late or redelivered decision on
			// such an article is still a duplicate, not an unknown ref.
			archived, aErr := e.archive.ContainsRef(ctx, d.Ref)
			if aErr != nil {
				return fmt.Errorf("resolve ref %s against archive: %w", d.Ref, aErr)
			}
			if archived {
				result = "Already processed"
			} else {
				result = "Article not found"
			}
			return nil
		}

		article := st.Pending.Categories[cat][idx]

		// The identity check spans all three stores, never just the
		// current category's list.
		if d.Action != domain.ActionReject {
			if findLiveURL(st.Live, article.URL) {
				st.Pending.Categories[cat] = removeAt(st.Pending.Categories[cat], idx)
				result = "Already live"
				return nil
			}
			archived, aErr := e.archive.Contains(ctx, article.URL)
			if aErr != nil {
				return fmt.Errorf("check archive for %s: %w", article.URL, aErr)
			}
			if archived {
				st.Pending.Categories[cat] = removeAt(st.Pending.Categories[cat], idx)
				result = "Already archived"
				return nil
			}
		}

		switch d.Action {
		case domain.ActionApprove:
			promoted := e.promote(article, false)
			if err := e.archive.Add(ctx, promoted); err != nil {
				return fmt.Errorf("archive %s: %w", promoted.URL, err)
			}
			insertLive(&st.Live, cat, promoted, e.today())
			archiveChanged = true
			result = "LIVE: " + clip(promoted.Title, 40)

		case domain.ActionPick:
			promoted := e.promote(article, true)
			if err := e.archive.Add(ctx, promoted); err != nil {
				return fmt.Errorf("archive %s: %w", promoted.URL, err)
			}
			demotePick(&st.Live, cat)
			insertLive(&st.Live, cat, promoted, e.today())
			archiveChanged = true
			result = "PICK: " + clip(promoted.Title, 40)

		case domain.ActionReject:
			result = "Rejected: " + clip(article.Title, 40)

		default:
			result = "Unknown action"
			return nil
		}

		st.Pending.Categories[cat] = removeAt(st.Pending.Categories[cat], idx)
		return nil
	})
	if err != nil {
		return "", err
	}

	if archiveChanged {
		if err := e.exportArchive(ctx); err != nil {
			e.logger.Error("archive export failed", "error", err)
		}
	}

	e.logger.Info("decision applied", "action", d.Action, "ref", d.Ref, "result", result)
	return result, nil
}

// AutoApprove resolves an expired review window without human input: the top
// per-category-limit pending articles by final score go live (the best few
// flagged for the front page), everything else still pending is rejected.
// With force=false it is a no-op while the window is still open.
func (e *Engine) AutoApprove(ctx context.Context, force bool) (promoted, rejected int, err error) {
	archiveChanged := false

	err = e.store.Update(func(st *store.State) error {
		if len(st.Pending.Categories) == 0 {
			return nil
		}
		if !force {
			if st.Pending.SentAt.IsZero() {
				return nil
			}
			deadline := st.Pending.SentAt.Add(e.cfg.Curation.ReviewWindow.Std())
			if e.now().Before(deadline) {
				return nil
			}
		}

		today := e.today()
		for _, cat := range domain.Categories() {
			queue := st.Pending.Categories[cat]
			if len(queue) == 0 {
				continue
			}

			domain.SortRanked(queue)
			for i, article := range queue {
				if i >= e.cfg.Curation.PerCategoryLimit {
					rejected++
					continue
				}
				if findLiveURL(st.Live, article.URL) {
					continue
				}
				archived, aErr := e.archive.Contains(ctx, article.URL)
				if aErr != nil {
					return fmt.Errorf("check archive for %s: %w", article.URL, aErr)
				}
				if archived {
					continue
				}

				live := e.promote(article, false)
				live.FrontPage = i < e.cfg.Curation.FrontPageLimit
				if err := e.archive.Add(ctx, live); err != nil {
					return fmt.Errorf("archive %s: %w", live.URL, err)
				}
				insertLive(&st.Live, cat, live, today)
				archiveChanged = true
				promoted++
			}
		}

		st.Pending = store.NewPending()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	if archiveChanged {
		if err := e.exportArchive(ctx); err != nil {
			e.logger.Error("archive export failed", "error", err)
		}
	}

	if promoted > 0 || rejected > 0 {
		e.logger.Info("auto-approve resolved queue", "promoted", promoted, "rejected", rejected)
	}
	return promoted, rejected, nil
}

func (e *Engine) promote(article domain.Article, pick bool) domain.Article {
	article.ApprovedDate = e.today()
	if pick {
		article.Status = domain.StatusEditorsPick
		article.EditorsPick = true
	} else {
		article.Status = domain.StatusLive
		article.EditorsPick = false
	}
	return article
}

func (e *Engine) exportArchive(ctx context.Context) error {
	doc, err := e.archive.ByDate(ctx)
	if err != nil {
		return err
	}
	return e.store.WriteArchiveExport(doc)
}

func (e *Engine) today() string {
	return e.now().UTC().Format(dateLayout)
}

func findPending(p store.Pending, ref string) (domain.Category, int) {
	for cat, articles := range p.Categories {
		for i, a := range articles {
			if a.Ref() == ref {
				return cat, i
			}
		}
	}
	return "", -1
}

func inLive(b store.Board, ref string) bool {
	for _, articles := range b.Categories {
		for _, a := range articles {
			if a.Ref() == ref {
				return true
			}
		}
	}
	return false
}

func findLiveURL(b store.Board, url string) bool {
	for _, articles := range b.Categories {
		for _, a := range articles {
			if a.URL == url {
				return true
			}
		}
	}
	return false
}

func insertLive(b *store.Board, cat domain.Category, article domain.Article, today string) {
	if b.Categories == nil {
		b.Categories = map[domain.Category][]domain.Article{}
	}
	b.Categories[cat] = append([]domain.Article{article}, b.Categories[cat]...)
	b.LastUpdated = today
}

func demotePick(b *store.Board, cat domain.Category) {
	articles := b.Categories[cat]
	for i := range articles {
		if articles[i].EditorsPick {
			articles[i].EditorsPick = false
			articles[i].Status = domain.StatusLive
		}
	}
}

func removeAt(articles []domain.Article, idx int) []domain.Article {
	return append(articles[:idx:idx], articles[idx+1:]...)
}

func clip(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
