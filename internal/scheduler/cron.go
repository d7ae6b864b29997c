// Package scheduler drives daemon mode with real cron expressions.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Cron wraps a cron runner with logged job registration.
type Cron struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New builds an empty scheduler using standard five-field specs.
func New(logger *slog.Logger) *Cron {
	return &Cron{cron: cron.New(), logger: logger}
}

// Add registers a named job under a cron spec.
func (c *Cron) Add(spec, name string, job func()) error {
	_, err := c.cron.AddFunc(spec, func() {
		c.logger.Info("scheduled job firing", "job", name)
		job()
	})
	if err != nil {
		return err
	}
	c.logger.Info("scheduled job registered", "job", name, "spec", spec)
	return nil
}

// Start launches the runner in its own goroutine.
func (c *Cron) Start() {
	c.cron.Start()
}

// Stop halts scheduling and waits for running jobs, bounded by ctx.
func (c *Cron) Stop(ctx context.Context) {
	done := c.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
