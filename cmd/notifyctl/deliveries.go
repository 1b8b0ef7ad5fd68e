package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"civicnotify/internal/complaint"
	"civicnotify/internal/compose"
	"civicnotify/internal/config"
	"civicnotify/internal/ledger"
	"civicnotify/internal/storage"
)

const descriptionPreview = 100

// openPool connects to the service database. The in-memory ledger lives in
// the service process, so diagnostics need DATABASE_URL.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set; the service ledger is in memory and cannot be inspected")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

func deliveriesCmd() *cobra.Command {
	var (
		complaintID string
		outcome     string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "List delivery ledger rows and outcome counts",
		Long: `List the delivery ledger, most recent attempt first.

Examples:
  # Everything sent for one complaint
  notifyctl deliveries --complaint GNT-1042

  # Failed deliveries as JSON
  notifyctl deliveries --outcome failed -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := openPool(ctx, config.Load())
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := buildDeliveriesResult(ctx, ledger.NewPGLedger(pool), ledger.Filter{
				ComplaintID: complaintID,
				Outcome:     complaint.Outcome(outcome),
				Limit:       limit,
			})
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), res, outputFmt)
		},
	}

	cmd.Flags().StringVar(&complaintID, "complaint", "", "Only rows for this complaint")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only rows with this outcome (pending, sent, failed, gateway_error)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")

	return cmd
}

func buildDeliveriesResult(ctx context.Context, l ledger.Ledger, filter ledger.Filter) (DeliveriesResult, error) {
	rows, err := l.List(ctx, filter)
	if err != nil {
		return DeliveriesResult{}, fmt.Errorf("failed to list deliveries: %w", err)
	}
	stats, err := l.Stats(ctx)
	if err != nil {
		return DeliveriesResult{}, fmt.Errorf("failed to count deliveries: %w", err)
	}

	res := DeliveriesResult{Deliveries: rows, Total: stats.Total(), Outcomes: map[string]int{}}
	for o, n := range stats {
		res.Outcomes[string(o)] = n
	}
	return res, nil
}

func complaintsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "complaints",
		Short: "List the most recent complaint snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := openPool(ctx, config.Load())
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := buildComplaintsResult(ctx, storage.NewPGStore(pool), limit)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), res, outputFmt)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum complaints")
	return cmd
}

func buildComplaintsResult(ctx context.Context, store storage.Store, limit int) (ComplaintsResult, error) {
	recent, err := store.Recent(ctx, limit)
	if err != nil {
		return ComplaintsResult{}, fmt.Errorf("failed to list complaints: %w", err)
	}

	res := ComplaintsResult{Complaints: make([]ComplaintInfo, 0, len(recent))}
	for _, c := range recent {
		res.Complaints = append(res.Complaints, ComplaintInfo{
			ID:          c.ID,
			City:        c.City,
			Category:    c.Category,
			Location:    c.Location,
			Description: compose.Truncate(c.Description, descriptionPreview),
			Status:      string(c.Status),
			Submitter:   c.SubmitterName,
			CreatedAt:   c.CreatedAt,
		})
	}
	return res, nil
}
