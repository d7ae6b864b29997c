// Package usecase orchestrates one collection run: collect, gate, enqueue,
// send for review.
package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"spsdaily/internal/collector"
	"spsdaily/internal/config"
	"spsdaily/internal/curation"
	"spsdaily/internal/domain"
	"spsdaily/internal/ports"
	"spsdaily/internal/scorer"
	"spsdaily/internal/store"
)

// PipelineDeps wires the run's collaborators.
type PipelineDeps struct {
	Collector  *collector.Collector
	Scorer     *scorer.Scorer
	Engine     *curation.Engine
	Review     ports.ReviewChannel
	Classifier ports.Classifier
	Seen       *store.SeenSet
	Config     *config.Config
	Logger     *slog.Logger
}

// Pipeline is the collection workflow.
type Pipeline struct {
	collector  *collector.Collector
	scorer     *scorer.Scorer
	engine     *curation.Engine
	review     ports.ReviewChannel
	classifier ports.Classifier
	seen       *store.SeenSet
	cfg        *config.Config
	logger     *slog.Logger
	feedLangs  map[string]string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	langs := map[string]string{}
	for _, cat := range deps.Config.Categories {
		for _, feed := range cat.Feeds {
			if feed.Lang != "" && feed.Lang != "en" {
				langs[feed.Name] = feed.Lang
			}
		}
	}

	return &Pipeline{
		collector:  deps.Collector,
		scorer:     deps.Scorer,
		engine:     deps.Engine,
		review:     deps.Review,
		classifier: deps.Classifier,
		seen:       deps.Seen,
		cfg:        deps.Config,
		logger:     deps.Logger,
		feedLangs:  langs,
	}
}

// Collect runs the whole batch: fetch feeds, gate quality, replace the
// curation queue, and present the batch for review. The caller holds the run
// lock for the duration.
func (p *Pipeline) Collect(ctx context.Context) error {
	candidates, err := p.collector.Run(ctx)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	// The seen set is written as soon as collection finishes: rejected
	// candidates must not be re-presented by the next run either.
	if err := p.seen.Save(); err != nil {
		return fmt.Errorf("persist seen set: %w", err)
	}

	ranked := map[domain.Category][]domain.Article{}
	total := 0
	for _, cat := range domain.Categories() {
		gated, err := p.scorer.Rank(ctx, cat, candidates[cat])
		if err != nil {
			return fmt.Errorf("score %s: %w", cat, err)
		}
		p.translate(ctx, gated)
		ranked[cat] = gated
		total += len(gated)
		p.logger.Info("category gated",
			"category", cat, "candidates", len(candidates[cat]), "pending", len(gated))
	}

	if err := p.engine.Enqueue(ctx, ranked); err != nil {
		return fmt.Errorf("enqueue pending: %w", err)
	}

	if p.review == nil {
		p.logger.Warn("no review channel configured, queue awaits auto-approve")
		return nil
	}
	if err := p.review.SendForReview(ctx, ranked); err != nil {
		return fmt.Errorf("send for review: %w", err)
	}

	p.logger.Info("collection run complete", "pending_total", total)
	return nil
}

// translate rewrites titles and teasers of articles from non-English sources.
// Errors leave the original text in place; translation is best effort.
func (p *Pipeline) translate(ctx context.Context, articles []domain.Article) {
	if p.classifier == nil || len(p.feedLangs) == 0 {
		return
	}

	for i := range articles {
		lang, ok := p.feedLangs[articles[i].Source]
		if !ok {
			continue
		}
		if title, err := p.classifier.Translate(ctx, articles[i].Title, lang); err == nil && title != "" {
			articles[i].Title = title
		} else if err != nil {
			p.logger.Warn("title translation failed", "url", articles[i].URL, "error", err)
		}
		if teaser, err := p.classifier.Translate(ctx, articles[i].Teaser, lang); err == nil && teaser != "" {
			articles[i].Teaser = teaser
		} else if err != nil {
			p.logger.Warn("teaser translation failed", "url", articles[i].URL, "error", err)
		}
	}
}
