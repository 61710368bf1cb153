package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends audit events to Postgres.
//
// NOTE: assumes an `audit_events` table with an INSERT-only policy.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events
	(id, type, actor_user_id, actor_role, ip_address, account_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.AccountID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
