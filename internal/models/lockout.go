package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountLockout represents one lockout episode. A lockout becomes inert once
// ExpiresAt passes; explicit deletion is never required because the active
// state is derived from `now < expires_at AND unlocked_at IS NULL`.
type AccountLockout struct {
	ID              uuid.UUID  `db:"id"`
	Username        string     `db:"username"`
	IPAddress       string     `db:"ip_address"`
	Reason          string     `db:"reason"`
	FailedAttempts  int        `db:"failed_attempts"`
	DurationMinutes int        `db:"duration_minutes"`
	LockedAt        time.Time  `db:"locked_at"`
	ExpiresAt       time.Time  `db:"expires_at"`
	UnlockedAt      *time.Time `db:"unlocked_at"`
	UnlockedBy      *string    `db:"unlocked_by"`
	UnlockReason    *string    `db:"unlock_reason"`
}

// Active reports whether the lockout is still in force at the given time.
func (l *AccountLockout) Active(now time.Time) bool {
	return l.UnlockedAt == nil && now.Before(l.ExpiresAt)
}

// LockoutStatus is the cached projection surfaced to callers. It is never
// persisted independently; it is recomputed from the store on a cache miss.
type LockoutStatus struct {
	IsLocked         bool       `json:"is_locked"`
	FailedAttempts   int        `json:"failed_attempts"`
	LockoutExpiresAt *time.Time `json:"lockout_expires_at,omitempty"`
	LockoutReason    string     `json:"lockout_reason,omitempty"`
}
