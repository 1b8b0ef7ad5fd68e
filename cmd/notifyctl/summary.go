package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"civicnotify/internal/complaint"
	"civicnotify/internal/config"
	"civicnotify/internal/ledger"
	"civicnotify/internal/summary"
)

func summaryCmd() *cobra.Command {
	var (
		out    string
		limit  int
		failed bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Render recent deliveries as a PNG table",
		Long: `Render the most recent ledger rows as an image that can be shared
with department operators.

Examples:
  notifyctl summary --out today.png
  notifyctl summary --failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := openPool(ctx, config.Load())
			if err != nil {
				return err
			}
			defer pool.Close()

			filter := ledger.Filter{Limit: limit}
			title := "Notification Deliveries"
			if failed {
				filter.Outcome = complaint.OutcomeFailed
				title = "Failed Deliveries"
			}

			n, err := writeSummary(ctx, ledger.NewPGLedger(pool), filter, title, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d deliveries to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "deliveries.png", "Output PNG path")
	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum rows")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only failed deliveries")

	return cmd
}

func writeSummary(ctx context.Context, l ledger.Ledger, filter ledger.Filter, title, path string) (int, error) {
	rows, err := l.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to list deliveries: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("no deliveries match")
	}

	img, err := summary.RenderDeliveries(title, rows, time.Now())
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return len(rows), nil
}
