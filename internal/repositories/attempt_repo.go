package repositories

import (
	"context"
	"time"

	"github.com/castellanhq/castellan/internal/database"
	"github.com/castellanhq/castellan/internal/models"
)

// AttemptRepository handles database operations for failed login attempts
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// RecordAttempt persists a failed login attempt. The attempt timestamp is
// assigned by the database.
func (r *AttemptRepository) RecordAttempt(ctx context.Context, attempt *models.FailedLoginAttempt) error {
	query := `
		INSERT INTO failed_login_attempts (username, ip_address, user_agent, auth_source, error_type)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Username,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.AuthSource,
		attempt.ErrorType,
	)

	return database.MapPostgresError(err)
}

// CountFailedAttempts returns the number of failed attempts for a username
// within the trailing window. An empty ipAddress counts across all sources.
func (r *AttemptRepository) CountFailedAttempts(ctx context.Context, username, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM failed_login_attempts
		WHERE username = $1 AND attempt_time >= $2
		AND ($3 = '' OR ip_address = $3)
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, username, since, ipAddress).Scan(&count)
	return count, database.MapPostgresError(err)
}

// DeleteAttempts removes attempt rows for a username, optionally scoped to an
// IP address.
func (r *AttemptRepository) DeleteAttempts(ctx context.Context, username, ipAddress string) error {
	query := `
		DELETE FROM failed_login_attempts
		WHERE username = $1 AND ($2 = '' OR ip_address = $2)
	`

	_, err := r.db.Pool.Exec(ctx, query, username, ipAddress)
	return database.MapPostgresError(err)
}

// DeleteExpiredAttempts removes attempts older than the retention cutoff and
// returns the number of rows deleted.
func (r *AttemptRepository) DeleteExpiredAttempts(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM failed_login_attempts WHERE attempt_time < $1`

	tag, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
