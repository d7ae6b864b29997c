// Package app wires configuration into the runnable operations behind the
// command surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"spsdaily/internal/collector"
	"spsdaily/internal/config"
	"spsdaily/internal/curation"
	"spsdaily/internal/domain"
	"spsdaily/internal/infrastructure/feed"
	"spsdaily/internal/infrastructure/intel"
	"spsdaily/internal/infrastructure/page"
	"spsdaily/internal/infrastructure/storage"
	"spsdaily/internal/infrastructure/telegram"
	"spsdaily/internal/logging"
	"spsdaily/internal/ports"
	"spsdaily/internal/scheduler"
	"spsdaily/internal/scorer"
	"spsdaily/internal/store"
	"spsdaily/internal/usecase"
)

// Application owns the long-lived resources shared by all operations.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	archive    *storage.ArchiveRepository
	engine     *curation.Engine
	review     ports.ReviewChannel
	classifier ports.Classifier
}

// New opens the stores and builds the engine.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = logging.New(cfg.Logging.Level)
	}

	st, err := store.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	archive, err := storage.Open(ctx, cfg.Storage.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	var classifier ports.Classifier
	if client := intel.NewClient(cfg.Intel); client != nil {
		classifier = client
	}

	var review ports.ReviewChannel
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		review = telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			logger.With("component", "telegram"))
	}

	engine := curation.New(st, archive, &cfg, logger.With("component", "curation"))

	return &Application{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		archive:    archive,
		engine:     engine,
		review:     review,
		classifier: classifier,
	}, nil
}

// Close releases the archive connection pool.
func (a *Application) Close() error {
	return a.archive.Close()
}

// Collect performs one full collection run under the exclusive run lock. A
// concurrent run is fatal-but-benign: report and let the next trigger retry.
func (a *Application) Collect(ctx context.Context) error {
	if err := a.store.AcquireRun(); err != nil {
		if errors.Is(err, store.ErrRunActive) {
			a.logger.Warn("collection already running, exiting")
		}
		return err
	}
	defer func() { _ = a.store.ReleaseRun() }()

	seen, err := store.LoadSeen(a.store.SeenPath(), a.cfg.Curation.SeenWindow.Std(), nil)
	if err != nil {
		return err
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Collector: collector.New(feed.NewFetcher(nil), seen, &a.cfg,
			a.logger.With("component", "collector")),
		Scorer: scorer.New(page.NewFetcher(nil, a.logger.With("component", "page")),
			a.classifier, &a.cfg, a.logger.With("component", "scorer")),
		Engine:     a.engine,
		Review:     a.review,
		Classifier: a.classifier,
		Seen:       seen,
		Config:     &a.cfg,
		Logger:     a.logger.With("component", "pipeline"),
	})

	return pipeline.Collect(ctx)
}

// Curate runs the long-lived decision listener.
func (a *Application) Curate(ctx context.Context) error {
	if a.review == nil {
		return fmt.Errorf("no review channel configured")
	}
	a.logger.Info("curation listener starting")
	err := a.review.Listen(ctx, a.handleDecision, a.handleCommand)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// AutoApprove resolves an expired review window; force skips the window check.
func (a *Application) AutoApprove(ctx context.Context, force bool) error {
	promoted, rejected, err := a.engine.AutoApprove(ctx, force)
	if err != nil {
		return err
	}
	a.logger.Info("auto-approve finished", "promoted", promoted, "rejected", rejected)
	return nil
}

// Rotate sweeps expired live articles into archive-only visibility.
func (a *Application) Rotate(ctx context.Context) error {
	removed, err := a.engine.Rotate()
	if err != nil {
		return err
	}
	a.logger.Info("rotation finished", "removed", removed)
	return nil
}

// ResetSeen clears the seen set so every feed item is re-evaluated.
func (a *Application) ResetSeen() error {
	seen, err := store.LoadSeen(a.store.SeenPath(), a.cfg.Curation.SeenWindow.Std(), nil)
	if err != nil {
		return err
	}
	seen.Reset()
	return seen.Save()
}

// StatusText renders per-category counts for the operator.
func (a *Application) StatusText() (string, error) {
	counts, err := a.engine.Status()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Live articles\n")
	for _, cat := range domain.Categories() {
		sb.WriteString(fmt.Sprintf("  %-11s live %2d  pending %2d",
			cat, counts.Live[cat], counts.Pending[cat]))
		if pick, ok := counts.Picks[cat]; ok {
			sb.WriteString("  pick: " + pick)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Run is daemon mode: scheduled collection, auto-approve checks, weekly
// rotation, and the decision listener, all in one process.
func (a *Application) Run(ctx context.Context) error {
	cr := scheduler.New(a.logger.With("component", "scheduler"))

	jobs := []struct {
		spec, name string
		fn         func()
	}{
		{a.cfg.Scheduler.CollectSpec, "collect", func() {
			if err := a.Collect(ctx); err != nil && !errors.Is(err, store.ErrRunActive) {
				a.logger.Error("collection run failed", "error", err)
			}
		}},
		{a.cfg.Scheduler.AutoApproveSpec, "auto-approve", func() {
			if err := a.AutoApprove(ctx, false); err != nil {
				a.logger.Error("auto-approve failed", "error", err)
			}
		}},
		{a.cfg.Scheduler.RotateSpec, "rotate", func() {
			if err := a.Rotate(ctx); err != nil {
				a.logger.Error("rotation failed", "error", err)
			}
		}},
	}
	for _, job := range jobs {
		if err := cr.Add(job.spec, job.name, job.fn); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}

	cr.Start()
	defer cr.Stop(context.Background())

	return a.Curate(ctx)
}

func (a *Application) handleDecision(ctx context.Context, d domain.Decision) string {
	result, err := a.engine.Apply(ctx, d)
	if err != nil {
		a.logger.Error("decision failed", "ref", d.Ref, "action", d.Action, "error", err)
		return "Error, try again"
	}
	return result
}

func (a *Application) handleCommand(ctx context.Context, cmd string) string {
	switch cmd {
	case "/status":
		text, err := a.StatusText()
		if err != nil {
			a.logger.Error("status failed", "error", err)
			return "Error reading store"
		}
		return text
	case "/cleanup":
		if err := a.Rotate(ctx); err != nil {
			return "Rotation failed"
		}
		return "Rotation done"
	case "/help", "/start":
		return "SPS Daily Curator\n\n/status - live and pending counts\n/cleanup - rotate expired articles\n/help - this message"
	default:
		return ""
	}
}
