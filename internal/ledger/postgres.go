package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicnotify/internal/complaint"
)

const schema = `
CREATE TABLE IF NOT EXISTS dispatch_attempts (
	complaint_id    TEXT        NOT NULL,
	role            TEXT        NOT NULL,
	id              TEXT        NOT NULL,
	address         TEXT        NOT NULL,
	body_hash       TEXT        NOT NULL,
	attempts        INTEGER     NOT NULL,
	last_attempt_at TIMESTAMPTZ NOT NULL,
	outcome         TEXT        NOT NULL,
	last_error      TEXT        NOT NULL DEFAULT '',
	provider_id     TEXT        NOT NULL DEFAULT '',
	PRIMARY KEY (complaint_id, role)
);
CREATE INDEX IF NOT EXISTS dispatch_attempts_outcome_idx ON dispatch_attempts (outcome);
`

// PGLedger is the PostgreSQL implementation of Ledger.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewPGLedger creates a PGLedger backed by the given pool.
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// Ensure PGLedger implements Ledger at compile time.
var _ Ledger = (*PGLedger)(nil)

// Migrate creates the dispatch_attempts table if it does not exist.
func (l *PGLedger) Migrate(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate dispatch_attempts: %w", err)
	}
	return nil
}

// Record upserts the row keyed by (complaint_id, role). The primary key
// guarantees a single row, hence at most one sent outcome, per key.
func (l *PGLedger) Record(ctx context.Context, a complaint.DispatchAttempt) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO dispatch_attempts
			(complaint_id, role, id, address, body_hash, attempts, last_attempt_at, outcome, last_error, provider_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (complaint_id, role) DO UPDATE SET
			id = EXCLUDED.id,
			address = EXCLUDED.address,
			body_hash = EXCLUDED.body_hash,
			attempts = EXCLUDED.attempts,
			last_attempt_at = EXCLUDED.last_attempt_at,
			outcome = EXCLUDED.outcome,
			last_error = EXCLUDED.last_error,
			provider_id = EXCLUDED.provider_id`,
		a.ComplaintID, string(a.Role), a.ID, a.Address, a.BodyHash, a.Attempts,
		a.LastAttemptAt, string(a.Outcome), a.LastError, a.ProviderID,
	)
	return err
}

const selectColumns = `SELECT complaint_id, role, id, address, body_hash, attempts, last_attempt_at, outcome, last_error, provider_id
	FROM dispatch_attempts `

func scanAttempt(row pgx.Row) (complaint.DispatchAttempt, error) {
	var a complaint.DispatchAttempt
	var role, outcome string
	err := row.Scan(&a.ComplaintID, &role, &a.ID, &a.Address, &a.BodyHash, &a.Attempts,
		&a.LastAttemptAt, &outcome, &a.LastError, &a.ProviderID)
	a.Role = complaint.Role(role)
	a.Outcome = complaint.Outcome(outcome)
	return a, err
}

func (l *PGLedger) LastOutcome(ctx context.Context, complaintID string, role complaint.Role) (complaint.DispatchAttempt, bool, error) {
	a, err := scanAttempt(l.pool.QueryRow(ctx,
		selectColumns+`WHERE complaint_id = $1 AND role = $2`, complaintID, string(role)))
	if errors.Is(err, pgx.ErrNoRows) {
		return complaint.DispatchAttempt{}, false, nil
	}
	if err != nil {
		return complaint.DispatchAttempt{}, false, err
	}
	return a, true, nil
}

func (l *PGLedger) List(ctx context.Context, filter Filter) ([]complaint.DispatchAttempt, error) {
	var conditions []string
	var args []any

	if filter.ComplaintID != "" {
		args = append(args, filter.ComplaintID)
		conditions = append(conditions, "complaint_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Outcome != "" {
		args = append(args, string(filter.Outcome))
		conditions = append(conditions, "outcome = $"+strconv.Itoa(len(args)))
	}

	query := selectColumns
	if len(conditions) > 0 {
		query += "WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_attempt_at DESC, complaint_id, role"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []complaint.DispatchAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (l *PGLedger) Stats(ctx context.Context) (Stats, error) {
	rows, err := l.pool.Query(ctx, `SELECT outcome, COUNT(*) FROM dispatch_attempts GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(Stats)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		stats[complaint.Outcome(outcome)] = n
	}
	return stats, rows.Err()
}
