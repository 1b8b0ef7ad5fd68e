package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicnotify/internal/complaint"
)

const schema = `
CREATE TABLE IF NOT EXISTS complaints (
	id                TEXT PRIMARY KEY,
	city              TEXT        NOT NULL,
	category          TEXT        NOT NULL,
	description       TEXT        NOT NULL DEFAULT '',
	location          TEXT        NOT NULL DEFAULT '',
	submitter_name    TEXT        NOT NULL DEFAULT '',
	submitter_address TEXT        NOT NULL DEFAULT '',
	status            TEXT        NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const selectColumns = `SELECT id, city, category, description, location, submitter_name, submitter_address, status, created_at, updated_at
	FROM complaints `

// PGStore is the PostgreSQL implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

// Migrate creates the complaints table if it does not exist.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate complaints: %w", err)
	}
	return nil
}

func scanComplaint(row pgx.Row) (complaint.Complaint, error) {
	var c complaint.Complaint
	var status string
	err := row.Scan(&c.ID, &c.City, &c.Category, &c.Description, &c.Location,
		&c.SubmitterName, &c.SubmitterAddress, &status, &c.CreatedAt, &c.UpdatedAt)
	c.Status = complaint.Status(status)
	return c, err
}

func (s *PGStore) Get(ctx context.Context, id string) (complaint.Complaint, error) {
	c, err := scanComplaint(s.pool.QueryRow(ctx, selectColumns+`WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return complaint.Complaint{}, ErrNotFound
	}
	return c, err
}

// Put inserts the snapshot, or replaces it when the identifier exists and
// the stored row does not supersede it. Zero timestamps default to NOW().
func (s *PGStore) Put(ctx context.Context, c complaint.Complaint) error {
	var createdAt, updatedAt *time.Time
	if !c.CreatedAt.IsZero() {
		createdAt = &c.CreatedAt
	}
	if !c.UpdatedAt.IsZero() {
		updatedAt = &c.UpdatedAt
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO complaints (id, city, category, description, location, submitter_name, submitter_address, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::timestamptz, NOW()), COALESCE($10::timestamptz, NOW()))
		 ON CONFLICT (id) DO UPDATE SET
			city = EXCLUDED.city, category = EXCLUDED.category, description = EXCLUDED.description,
			location = EXCLUDED.location, submitter_name = EXCLUDED.submitter_name,
			submitter_address = EXCLUDED.submitter_address, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		 WHERE NOT (
			($10::timestamptz IS NOT NULL AND complaints.updated_at > EXCLUDED.updated_at)
			OR (complaints.status NOT IN ('', 'submitted') AND EXCLUDED.status IN ('', 'submitted'))
		 )`,
		c.ID, c.City, c.Category, c.Description, c.Location, c.SubmitterName, c.SubmitterAddress, string(c.Status),
		createdAt, updatedAt,
	)
	return err
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, status complaint.Status) (complaint.Complaint, error) {
	c, err := scanComplaint(s.pool.QueryRow(ctx,
		`UPDATE complaints SET status = $1, updated_at = NOW() WHERE id = $2
		 RETURNING id, city, category, description, location, submitter_name, submitter_address, status, created_at, updated_at`,
		string(status), id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return complaint.Complaint{}, ErrNotFound
	}
	return c, err
}

func (s *PGStore) Recent(ctx context.Context, limit int) ([]complaint.Complaint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectColumns+`ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []complaint.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
