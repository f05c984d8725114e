package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/campusfeed/internal/loadgen"
	"github.com/okian/campusfeed/pkg/logger"
)

func newLoadgenCmd() *cobra.Command {
	var (
		cfg     loadgen.Config
		verbose bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Send change notifications to a running server and verify feeds",
		Long: `Submit generated change notifications (with a share of duplicate ids) to
POST /changes, then fetch and explain the feeds of the given viewers and check
that they are ordered by score.

Examples:
  campusfeed loadgen --url http://localhost:9080
  campusfeed loadgen --changes 10000 --duplicates 0.2 --viewer u1 --viewer u2 --settle 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := logger.Init(); err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			_ = logger.SetLevelString(level)

			stats, runErr := loadgen.Run(ctx, cfg, logger.Named("loadgen"), os.Stderr)
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(stats); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "generated=%d accepted=%d duplicate=%d throttled=%d failed=%d\n",
					stats.Generated, stats.Accepted, stats.Duplicate, stats.Throttled, stats.Failed)
				fmt.Fprintf(out, "feeds_checked=%d feeds_missing=%d posts_explained=%d duration=%s\n",
					stats.FeedsChecked, stats.FeedsMissing, stats.PostsExplained, stats.Duration)
				for _, v := range stats.Violations {
					fmt.Fprintf(out, "violation: %s\n", v)
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the campusfeed server")
	f.IntVar(&cfg.Changes, "changes", loadgen.DefaultChanges, "Number of change notifications to send")
	f.Float64Var(&cfg.DuplicateRatio, "duplicates", loadgen.DefaultDuplicateRatio, "Share of notifications that reuse an earlier id")
	f.StringSliceVar(&cfg.Viewers, "viewer", nil, "Viewer whose feed is verified (repeatable)")
	f.IntVar(&cfg.Workers, "workers", 0, "Concurrent submitters (0 = number of CPUs)")
	f.DurationVar(&cfg.Timeout, "timeout", loadgen.DefaultTimeout, "Per-request timeout")
	f.DurationVar(&cfg.Settle, "settle", 0, "Wait between submission and feed checks")
	f.Int64Var(&cfg.Seed, "seed", 1, "Seed for the change generator")
	f.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	f.BoolVar(&jsonOut, "json", false, "Print stats as JSON")
	return cmd
}
