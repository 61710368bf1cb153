package delivery

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo persists the delivery log in Postgres via database/sql.
//
// NOTE: assumes a `delivery_log` table with an index on
// provider_message_id and on (account_id, created_at).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const recordColumns = `
id, job_id, account_id, recipient, provider_message_id, message_type,
status, error_message, created_at, updated_at`

func (r *PostgresRepo) Insert(ctx context.Context, rec *Record) error {
	const q = `
INSERT INTO delivery_log (` + recordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.JobID,
		rec.AccountID,
		rec.Recipient,
		nullable(rec.ProviderMessageID),
		rec.MessageType,
		rec.Status,
		nullable(rec.ErrorMessage),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*Record, error) {
	const q = `
SELECT ` + recordColumns + `
FROM delivery_log
WHERE provider_message_id = $1
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status, errorMessage string, at time.Time) error {
	const q = `
UPDATE delivery_log
SET status = $2,
    error_message = COALESCE($3, error_message),
    updated_at = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, status, nullable(errorMessage), at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, accountID string, from, to time.Time) ([]Record, error) {
	const q = `
SELECT ` + recordColumns + `
FROM delivery_log
WHERE created_at >= $1 AND created_at < $2
  AND ($3 = '' OR account_id = $3)
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, from, to, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var providerID, errorMessage sql.NullString
	if err := row.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.AccountID,
		&rec.Recipient,
		&providerID,
		&rec.MessageType,
		&rec.Status,
		&errorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.ProviderMessageID = providerID.String
	rec.ErrorMessage = errorMessage.String
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
