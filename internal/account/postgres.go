package account

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo persists accounts in Postgres via database/sql.
//
// NOTE: This repository assumes an `accounts` table with a UNIQUE
// constraint on phone_number.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const accountColumns = `
id, phone_number, display_name, health_score, status, is_active,
quality_rating_tier, messaging_limit_tier, created_at, updated_at, last_health_update_at`

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (*Account, error) {
	const q = `
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1
`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) FindByPhoneNumber(ctx context.Context, phoneNumber string) (*Account, error) {
	const q = `
SELECT ` + accountColumns + `
FROM accounts
WHERE phone_number = $1
`
	return r.scanOne(r.db.QueryRowContext(ctx, q, phoneNumber))
}

func (r *PostgresRepo) GetAllActive(ctx context.Context) ([]*Account, error) {
	const q = `
SELECT ` + accountColumns + `
FROM accounts
WHERE is_active = TRUE
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Save(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO accounts (` + accountColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id)
DO UPDATE SET display_name = EXCLUDED.display_name,
              health_score = EXCLUDED.health_score,
              status = EXCLUDED.status,
              is_active = EXCLUDED.is_active,
              quality_rating_tier = EXCLUDED.quality_rating_tier,
              messaging_limit_tier = EXCLUDED.messaging_limit_tier,
              updated_at = EXCLUDED.updated_at,
              last_health_update_at = EXCLUDED.last_health_update_at
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID,
		a.PhoneNumber,
		a.DisplayName,
		a.HealthScore,
		string(a.Status),
		a.IsActive,
		a.QualityRatingTier,
		a.MessagingLimitTier,
		a.CreatedAt,
		a.UpdatedAt,
		a.LastHealthUpdateAt,
	)
	return err
}

func (r *PostgresRepo) UpdateHealthScoreAndStatus(ctx context.Context, id string, score int, status Status) error {
	now := r.clock().UTC()
	const q = `
UPDATE accounts
SET health_score = $2,
    status = $3,
    updated_at = $4,
    last_health_update_at = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, ClampScore(score), string(status), now)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepo) scanOne(row rowScanner) (*Account, error) {
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var displayName, qualityTier, limitTier sql.NullString
	var status string
	if err := row.Scan(
		&a.ID,
		&a.PhoneNumber,
		&displayName,
		&a.HealthScore,
		&status,
		&a.IsActive,
		&qualityTier,
		&limitTier,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.LastHealthUpdateAt,
	); err != nil {
		return nil, err
	}
	a.DisplayName = displayName.String
	a.QualityRatingTier = qualityTier.String
	a.MessagingLimitTier = limitTier.String
	a.Status = Status(status)
	return Rehydrate(a), nil
}
