package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedguard/feedguard/internal/core/config"
	"github.com/feedguard/feedguard/internal/infra/storage/postgres"
)

var eventsSince time.Duration

var eventsCmd = &cobra.Command{
	Use:   "events [endpoint_key]",
	Short: "List recent error events for an endpoint",
	Args:  cobra.ExactArgs(1),
	Run:   runEvents,
}

func init() {
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 24*time.Hour, "how far back to look")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) {
	endpointKey := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("events command requires a database configuration")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	now := time.Now()
	events, err := postgres.NewErrorEventRepo(db).ListByEndpoint(ctx, endpointKey, now.Add(-eventsSince), now)
	if err != nil {
		slog.Error("Failed to list error events", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tKIND\tCODE\tRETRIES\tRESOLVED\tSTRATEGY")

	for _, ev := range events {
		strategy := ev.StrategyUsed
		if strategy == "" {
			strategy = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%s\n",
			ev.CreatedAt.Format(time.RFC3339), ev.Kind, ev.StatusCode, ev.RetryCount, ev.Resolved, strategy)
	}
	_ = w.Flush()
}
