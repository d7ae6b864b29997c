// Command spsdaily is the operator surface of the curation pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"spsdaily/internal/app"
	"spsdaily/internal/config"
	"spsdaily/internal/logging"
	"spsdaily/internal/store"
)

var cfgFile string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "spsdaily",
		Short: "RSS curation pipeline for the SPS Daily site",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $SPSDAILY_CONFIG)")

	var force bool
	autoApprove := command("auto-approve", "Resolve an expired review window without human input",
		func(ctx context.Context, a *app.Application) error {
			return a.AutoApprove(ctx, force)
		})
	autoApprove.Flags().BoolVar(&force, "force", false, "resolve even if the review window is still open")

	root.AddCommand(
		command("run", "Daemon mode: scheduled collection plus the decision listener",
			func(ctx context.Context, a *app.Application) error { return a.Run(ctx) }),
		command("collect", "Run one collection pass and send candidates for review",
			func(ctx context.Context, a *app.Application) error { return a.Collect(ctx) }),
		command("curate", "Run the decision listener only",
			func(ctx context.Context, a *app.Application) error { return a.Curate(ctx) }),
		autoApprove,
		command("status", "Show live and pending counts per category",
			func(ctx context.Context, a *app.Application) error {
				text, err := a.StatusText()
				if err != nil {
					return err
				}
				fmt.Print(text)
				return nil
			}),
		command("cleanup", "Rotate expired live articles into archive-only visibility",
			func(ctx context.Context, a *app.Application) error { return a.Rotate(ctx) }),
		command("reset-seen", "Clear the seen set so feed items are re-evaluated",
			func(ctx context.Context, a *app.Application) error { return a.ResetSeen() }),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, store.ErrRunActive) {
			// Benign: another run holds the lock, the next trigger retries.
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// command builds a subcommand that loads config, wires the application, and
// runs fn under signal-aware cancellation.
func command(use, short string, fn func(context.Context, *app.Application) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			defer func() { _ = application.Close() }()

			if err := fn(ctx, application); err != nil {
				logger.Error("command failed", "command", use, "error", err)
				return err
			}
			return nil
		},
	}
}
