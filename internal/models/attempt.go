package models

import (
	"time"

	"github.com/google/uuid"
)

// AttemptErrorType classifies why an authentication attempt failed
type AttemptErrorType string

const (
	ErrorTypeInvalidCredentials AttemptErrorType = "invalid_credentials"
	ErrorTypeAccountLocked      AttemptErrorType = "account_locked"
	ErrorTypeUserNotFound       AttemptErrorType = "user_not_found"
	ErrorTypeUserInactive       AttemptErrorType = "user_inactive"
	ErrorTypeServiceError       AttemptErrorType = "service_error"
)

// FailedLoginAttempt is an immutable record of one failed authentication.
// The attempt timestamp is assigned by the database on insert.
type FailedLoginAttempt struct {
	ID          uuid.UUID        `db:"id"`
	Username    string           `db:"username"`
	IPAddress   string           `db:"ip_address"`
	UserAgent   string           `db:"user_agent"`
	AuthSource  string           `db:"auth_source"`
	ErrorType   AttemptErrorType `db:"error_type"`
	AttemptTime time.Time        `db:"attempt_time"`
}
