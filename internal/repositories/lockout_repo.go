package repositories

import (
	"context"
	"time"

	"github.com/castellanhq/castellan/internal/database"
	"github.com/castellanhq/castellan/internal/models"
	"github.com/jackc/pgx/v5"
)

// LockoutRepository handles database operations for account lockouts
type LockoutRepository struct {
	db *database.DB
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// CreateLockout persists a new lockout episode.
func (r *LockoutRepository) CreateLockout(ctx context.Context, lockout *models.AccountLockout) error {
	query := `
		INSERT INTO account_lockouts (username, ip_address, reason, failed_attempts, duration_minutes, locked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		lockout.Username,
		lockout.IPAddress,
		lockout.Reason,
		lockout.FailedAttempts,
		lockout.DurationMinutes,
		lockout.LockedAt,
		lockout.ExpiresAt,
	)

	return database.MapPostgresError(err)
}

// GetActiveLockout returns the most recent lockout still in force for the
// username, or models.ErrNotFound. Active state is derived, never stored:
// the row counts while expires_at is in the future and no unlock is recorded.
func (r *LockoutRepository) GetActiveLockout(ctx context.Context, username string) (*models.AccountLockout, error) {
	query := `
		SELECT id, username, ip_address, reason, failed_attempts, duration_minutes,
		       locked_at, expires_at, unlocked_at, unlocked_by, unlock_reason
		FROM account_lockouts
		WHERE username = $1 AND expires_at > CURRENT_TIMESTAMP AND unlocked_at IS NULL
		ORDER BY locked_at DESC
		LIMIT 1
	`

	lockout, err := scanLockout(r.db.Pool.QueryRow(ctx, query, username))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return lockout, nil
}

// CountLockouts returns the lifetime number of lockouts recorded for a
// username. Drives the progressive duration escalation.
func (r *LockoutRepository) CountLockouts(ctx context.Context, username string) (int, error) {
	query := `SELECT COUNT(*) FROM account_lockouts WHERE username = $1`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, username).Scan(&count)
	return count, database.MapPostgresError(err)
}

// ListLockouts returns the lockout history for a username, newest first.
func (r *LockoutRepository) ListLockouts(ctx context.Context, username string, limit int) ([]*models.AccountLockout, error) {
	query := `
		SELECT id, username, ip_address, reason, failed_attempts, duration_minutes,
		       locked_at, expires_at, unlocked_at, unlocked_by, unlock_reason
		FROM account_lockouts
		WHERE username = $1
		ORDER BY locked_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, username, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var lockouts []*models.AccountLockout
	for rows.Next() {
		lockout, err := scanLockout(rows)
		if err != nil {
			return nil, database.MapPostgresError(err)
		}
		lockouts = append(lockouts, lockout)
	}

	return lockouts, database.MapPostgresError(rows.Err())
}

// UnlockAccount marks every active lockout for the username as manually
// unlocked and deletes the failed-attempt history, in a single transaction.
// Updating zero rows is not an error, which makes the operation idempotent.
func (r *LockoutRepository) UnlockAccount(ctx context.Context, username, unlockedBy, reason string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		unlockQuery := `
			UPDATE account_lockouts
			SET unlocked_at = CURRENT_TIMESTAMP, unlocked_by = $2, unlock_reason = $3
			WHERE username = $1 AND unlocked_at IS NULL AND expires_at > CURRENT_TIMESTAMP
		`
		if _, err := tx.Exec(ctx, unlockQuery, username, unlockedBy, reason); err != nil {
			return database.MapPostgresError(err)
		}

		deleteQuery := `DELETE FROM failed_login_attempts WHERE username = $1`
		if _, err := tx.Exec(ctx, deleteQuery, username); err != nil {
			return database.MapPostgresError(err)
		}

		return nil
	})
}

// DeleteExpiredLockouts removes lockout rows whose expiry is older than the
// retention cutoff and returns the number of rows deleted.
func (r *LockoutRepository) DeleteExpiredLockouts(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM account_lockouts WHERE expires_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

func scanLockout(row pgx.Row) (*models.AccountLockout, error) {
	var lockout models.AccountLockout
	err := row.Scan(
		&lockout.ID,
		&lockout.Username,
		&lockout.IPAddress,
		&lockout.Reason,
		&lockout.FailedAttempts,
		&lockout.DurationMinutes,
		&lockout.LockedAt,
		&lockout.ExpiresAt,
		&lockout.UnlockedAt,
		&lockout.UnlockedBy,
		&lockout.UnlockReason,
	)
	if err != nil {
		return nil, err
	}
	return &lockout, nil
}
