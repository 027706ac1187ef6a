package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fieldworks/dispatchd/internal/app"
	"github.com/fieldworks/dispatchd/pkg/config"
	"github.com/fieldworks/dispatchd/pkg/observability"
	"github.com/spf13/cobra"
)

func newReplanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replan",
		Short: "Run one replan cycle",
		Long: `Fetches active technicians and open jobs, plans today and up to
MAX_OVERFLOW_ATTEMPTS future days, and commits the result in one batch.
Jobs that cannot be placed within the horizon are set to pending_review.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if logger == nil {
				logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
			}
			if verbose {
				logger = observability.NewLogger(observability.LogConfig{
					Level:       observability.LogLevelDebug,
					Format:      observability.LogFormatText,
					ServiceName: "dispatchd",
				})
			}

			ctx := observability.WithCorrelationID(cmd.Context(), correlationIDFrom(cmd))

			container, err := app.NewContainer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("building application: %w", err)
			}
			defer container.Close()

			if err := container.Orchestrator.RunCycle(ctx); err != nil {
				return fmt.Errorf("replan cycle failed: %w", err)
			}
			return nil
		},
	}
}
