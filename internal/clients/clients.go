// Package clients is the read side of the Clients collaborator: the
// scheduling core looks up contact details by id and reports completed
// visits, it never owns client records.
package clients

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrClientNotFound = errors.New("client not found")

type Client struct {
	ID          uuid.UUID
	Name        string
	Phone       string
	Email       *string
	TotalVisits int
	TotalSpent  float64
	LastVisitAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Directory resolves a client's contact details.
type Directory interface {
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)
}

// StatsRecorder refreshes a client's visit statistics when an appointment
// completes.
type StatsRecorder interface {
	RecordCompletion(ctx context.Context, clientID uuid.UUID, spent float64, visitedAt time.Time) error
}

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, total_visits, total_spent, last_visit_at, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (d *PgDirectory) RecordCompletion(ctx context.Context, clientID uuid.UUID, spent float64, visitedAt time.Time) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE clients
		SET total_visits = total_visits + 1,
		    total_spent = total_spent + $2,
		    last_visit_at = $3,
		    updated_at = now()
		WHERE id = $1
	`, clientID, spent, visitedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var email *string
	var lastVisitAt *time.Time

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Phone,
		&email,
		&c.TotalVisits,
		&c.TotalSpent,
		&lastVisitAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	c.Email = email
	c.LastVisitAt = lastVisitAt
	return &c, nil
}
