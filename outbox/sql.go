package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// lease is how long a claimed event is hidden from other dispatchers.
const lease = time.Minute

// Insert writes events through e, normally the lifecycle transaction.
func Insert(ctx context.Context, e sqlx.ExtContext, events ...Event) error {
	for i := range events {
		if _, err := sqlx.NamedExecContext(ctx, e, insertQuery, &events[i]); err != nil {
			return err
		}
	}
	return nil
}

const insertQuery = `
INSERT INTO outbox (id, kind, payload, attempts, next_attempt_at, created_at)
VALUES (:id, :kind, :payload, :attempts, :next_attempt_at, :created_at)
`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Pending(ctx context.Context, now time.Time, limit int) ([]Event, error) {
	var events []Event
	err := r.db.SelectContext(ctx, &events, claimQuery, now, now.Add(lease), limit)
	return events, err
}

// claimQuery pushes next_attempt_at past the lease so concurrent
// dispatchers skip the rows it returns.
const claimQuery = `
UPDATE outbox SET next_attempt_at = $2
WHERE id IN (
    SELECT id FROM outbox
    WHERE delivered_at IS NULL
      AND dead_at IS NULL
      AND next_attempt_at <= $1
    ORDER BY created_at ASC
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING *
`

func (r *Repository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, markDeliveredQuery, id, at)
	return err
}

const markDeliveredQuery = `UPDATE outbox SET delivered_at = $2, attempts = attempts + 1, last_error = NULL WHERE id = $1`

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAt time.Time) error {
	_, err := r.db.ExecContext(ctx, markFailedQuery, id, reason, retryAt)
	return err
}

const markFailedQuery = `UPDATE outbox SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3 WHERE id = $1`

func (r *Repository) MarkDead(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, markDeadQuery, id, reason, at)
	return err
}

const markDeadQuery = `UPDATE outbox SET attempts = attempts + 1, last_error = $2, dead_at = $3 WHERE id = $1`
