// Package scorer ranks candidates and enforces the category word-count gate.
// It is deliberately two-phase: reputation ranking is metadata-only and cheap,
// so the candidate pool is truncated before the expensive full-text fetches.
package scorer

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"spsdaily/internal/config"
	"spsdaily/internal/domain"
	"spsdaily/internal/ports"
)

// readingWPM converts word counts into the minutes estimate shown in review
// messages.
const readingWPM = 200

// Scorer applies the quality gate to one category's candidate sequence.
type Scorer struct {
	pages      ports.PageFetcher
	classifier ports.Classifier
	cfg        *config.Config
	logger     *slog.Logger
}

// New wires the page fetcher and the optional classifier; classifier may be
// nil, in which case the gate rests on word count and reputation alone.
func New(pages ports.PageFetcher, classifier ports.Classifier, cfg *config.Config, logger *slog.Logger) *Scorer {
	return &Scorer{
		pages:      pages,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Rank returns the candidates that pass the gate, ordered by final score and
// marked pending. Page-fetch failures (after the fetcher's archival fallback)
// and below-threshold word counts are silent drops.
func (s *Scorer) Rank(ctx context.Context, cat domain.Category, candidates []domain.Article) ([]domain.Article, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	pool := make([]domain.Article, len(candidates))
	copy(pool, candidates)

	// Phase 1: reputation only. Truncate to a small multiple of the output
	// size before paying for page fetches.
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].BaseScore != pool[j].BaseScore {
			return pool[i].BaseScore > pool[j].BaseScore
		}
		return pool[i].PublishedAt.Before(pool[j].PublishedAt)
	})

	limit := s.cfg.Curation.OverfetchFactor * s.cfg.Curation.PerCategoryLimit
	if len(pool) > limit {
		pool = pool[:limit]
	}

	minWords := s.cfg.MinWords(cat)

	// Phase 2: measure true length, gate hard, score.
	kept := make([]domain.Article, 0, len(pool))
	for _, candidate := range pool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := s.pages.Extract(ctx, candidate.URL)
		if err != nil {
			s.logger.Debug("page unreachable, dropping", "url", candidate.URL, "error", err)
			continue
		}

		wc := countWords(text)
		if wc < minWords {
			s.logger.Debug("below word threshold",
				"url", candidate.URL, "words", wc, "min", minWords)
			continue
		}

		if s.classifier != nil {
			ok, cErr := s.classifier.Classify(ctx, cat, classifierExcerpt(candidate, text))
			if cErr != nil {
				s.logger.Warn("classifier unavailable, keeping candidate",
					"url", candidate.URL, "error", cErr)
			} else if !ok {
				s.logger.Debug("classifier rejected", "url", candidate.URL)
				continue
			}
		}

		candidate.WordCount = wc
		candidate.ReadingMin = (wc + readingWPM - 1) / readingWPM
		// The logarithm caps the influence of extreme length so source
		// reputation still matters.
		candidate.Score = candidate.BaseScore + math.Log10(float64(wc))
		candidate.Status = domain.StatusPending
		kept = append(kept, candidate)
	}

	domain.SortRanked(kept)
	return kept, nil
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// classifierExcerpt keeps classification prompts bounded: headline plus the
// opening of the body, cut on a rune boundary.
func classifierExcerpt(a domain.Article, text string) string {
	const maxExcerpt = 1500
	if len(text) > maxExcerpt {
		cut := maxExcerpt
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return a.Title + "\n\n" + text
}
