package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/castellanhq/castellan/internal/cache"
	"github.com/castellanhq/castellan/internal/models"
	pkglogger "github.com/castellanhq/castellan/pkg/logger"
)

// AttemptStore defines the durable operations over failed login attempts
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *models.FailedLoginAttempt) error
	CountFailedAttempts(ctx context.Context, username, ipAddress string, since time.Time) (int, error)
	DeleteAttempts(ctx context.Context, username, ipAddress string) error
}

// LockoutStore defines the durable operations over lockout episodes
type LockoutStore interface {
	CreateLockout(ctx context.Context, lockout *models.AccountLockout) error
	GetActiveLockout(ctx context.Context, username string) (*models.AccountLockout, error)
	CountLockouts(ctx context.Context, username string) (int, error)
	ListLockouts(ctx context.Context, username string, limit int) ([]*models.AccountLockout, error)
	UnlockAccount(ctx context.Context, username, unlockedBy, reason string) error
}

// StatusCache is the TTL-bounded hint layer in front of the store
type StatusCache interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// LockoutNotifier receives best-effort alerts when an account locks
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, lockout *models.AccountLockout)
}

// LockoutConfig holds the thresholds and durations of the lockout policy
type LockoutConfig struct {
	MaxFailedAttempts   int
	AttemptWindow       time.Duration
	BaseLockoutDuration time.Duration
	MaxLockoutDuration  time.Duration
}

// LockoutService decides, records, and enforces account lockout. The cache
// and the store are kept consistent by explicit invalidation on every
// state-changing write, never by a cross-store transaction; authoritative
// decisions always re-derive from the store.
type LockoutService struct {
	attempts AttemptStore
	lockouts LockoutStore
	cache    StatusCache
	notifier LockoutNotifier
	config   LockoutConfig
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewLockoutService creates a new LockoutService. notifier may be nil.
func NewLockoutService(
	attempts AttemptStore,
	lockouts LockoutStore,
	statusCache StatusCache,
	notifier LockoutNotifier,
	config LockoutConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *LockoutService {
	return &LockoutService{
		attempts: attempts,
		lockouts: lockouts,
		cache:    statusCache,
		notifier: notifier,
		config:   config,
		logger:   logger,
		audit:    audit,
	}
}

// RecordFailedAttempt persists a failed attempt and re-derives the lockout
// decision from the authoritative windowed count. Every degradation on this
// path resolves to a safe default instead of an error: a failed attempt must
// never go unrecorded because a secondary query misbehaved.
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, attempt *models.FailedLoginAttempt) *models.LockoutStatus {
	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to persist login attempt",
			slog.String("username", attempt.Username),
			slog.Any("error", err))
	}

	// Fast-path hint only; the decision below comes from the store.
	if _, err := s.cache.Increment(ctx, s.counterKey(attempt.Username, attempt.IPAddress), s.config.AttemptWindow); err != nil {
		s.logger.Warn("failed to increment attempt counter", slog.Any("error", err))
	}

	since := time.Now().Add(-s.config.AttemptWindow)
	count, err := s.attempts.CountFailedAttempts(ctx, attempt.Username, attempt.IPAddress, since)
	if err != nil {
		s.logger.Error("failed to count login attempts",
			slog.String("username", attempt.Username),
			slog.Any("error", err))
		return &models.LockoutStatus{}
	}

	if count < s.config.MaxFailedAttempts {
		return &models.LockoutStatus{FailedAttempts: count}
	}

	return s.lockAccount(ctx, attempt, count)
}

// lockAccount creates a lockout episode with a progressively escalating
// duration and caches the resulting status.
func (s *LockoutService) lockAccount(ctx context.Context, attempt *models.FailedLoginAttempt, count int) *models.LockoutStatus {
	duration := s.config.BaseLockoutDuration

	priorLockouts, err := s.lockouts.CountLockouts(ctx, attempt.Username)
	if err != nil {
		// Fall back to the minimum duration rather than aborting.
		s.logger.Error("failed to determine prior lockouts, using base duration",
			slog.String("username", attempt.Username),
			slog.Any("error", err))
	} else {
		duration = s.progressiveDuration(priorLockouts)
	}

	now := time.Now()
	expiresAt := now.Add(duration)

	lockout := &models.AccountLockout{
		Username:        attempt.Username,
		IPAddress:       attempt.IPAddress,
		Reason:          fmt.Sprintf("Account locked after %d failed login attempts", count),
		FailedAttempts:  count,
		DurationMinutes: int(duration.Minutes()),
		LockedAt:        now,
		ExpiresAt:       expiresAt,
	}

	if err := s.lockouts.CreateLockout(ctx, lockout); err != nil {
		// The cached status still enforces the lockout for its duration.
		s.logger.Error("failed to persist account lockout",
			slog.String("username", attempt.Username),
			slog.Any("error", err))
	}

	status := &models.LockoutStatus{
		IsLocked:         true,
		FailedAttempts:   count,
		LockoutExpiresAt: &expiresAt,
		LockoutReason:    lockout.Reason,
	}
	s.cacheStatus(ctx, attempt.Username, attempt.IPAddress, status)

	s.logger.Warn("account locked",
		slog.String("username", attempt.Username),
		slog.String("ip_address", attempt.IPAddress),
		slog.Int("failed_attempts", count),
		slog.Duration("duration", duration))
	s.audit.LogLockout(attempt.Username, attempt.IPAddress, lockout.Reason, duration)

	if s.notifier != nil {
		s.notifier.NotifyLockout(ctx, lockout)
	}

	return status
}

// CheckLockoutStatus is cache-first: the IP-scoped key, then the username
// key. On a full miss the store is authoritative. Read failures fail open so
// a store outage cannot deny service to legitimate users.
func (s *LockoutService) CheckLockoutStatus(ctx context.Context, username, ipAddress string) *models.LockoutStatus {
	if ipAddress != "" {
		if status := s.cachedStatus(ctx, s.statusIPKey(username, ipAddress)); status != nil {
			return status
		}
	}
	if status := s.cachedStatus(ctx, s.statusUserKey(username)); status != nil {
		return status
	}

	lockout, err := s.lockouts.GetActiveLockout(ctx, username)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to query lockout state, failing open",
			slog.String("username", username),
			slog.Any("error", err))
		return &models.LockoutStatus{}
	}

	since := time.Now().Add(-s.config.AttemptWindow)
	count, err := s.attempts.CountFailedAttempts(ctx, username, ipAddress, since)
	if err != nil {
		s.logger.Error("failed to count login attempts",
			slog.String("username", username),
			slog.Any("error", err))
		count = 0
	}

	if lockout == nil {
		return &models.LockoutStatus{FailedAttempts: count}
	}

	status := &models.LockoutStatus{
		IsLocked:         true,
		FailedAttempts:   count,
		LockoutExpiresAt: &lockout.ExpiresAt,
		LockoutReason:    lockout.Reason,
	}
	s.cacheStatus(ctx, username, ipAddress, status)

	return status
}

// ClearFailedAttempts removes attempt history and invalidates every related
// cache key after a successful login. Best-effort cleanup: each failure is
// caught and logged independently, never propagated.
func (s *LockoutService) ClearFailedAttempts(ctx context.Context, username, ipAddress string) {
	if err := s.attempts.DeleteAttempts(ctx, username, ipAddress); err != nil {
		s.logger.Error("failed to clear login attempts",
			slog.String("username", username),
			slog.Any("error", err))
	}

	if err := s.cache.DeletePattern(ctx, fmt.Sprintf("failed_login:%s:*", username)); err != nil {
		s.logger.Warn("failed to invalidate username cache keys", slog.Any("error", err))
	}
	if ipAddress != "" {
		if err := s.cache.DeletePattern(ctx, fmt.Sprintf("failed_login:*:%s", ipAddress)); err != nil {
			s.logger.Warn("failed to invalidate ip cache keys", slog.Any("error", err))
		}
	}
	if err := s.cache.Delete(ctx, s.statusUserKey(username)); err != nil {
		s.logger.Warn("failed to invalidate status cache key", slog.Any("error", err))
	}
}

// UnlockAccount clears an active lockout and the attempt history in one
// atomic transaction. This path is correctness-critical: store failures
// propagate so an administrator never gets an ambiguous result. The cache
// invalidation afterwards is best-effort; a missed entry expires on its own.
func (s *LockoutService) UnlockAccount(ctx context.Context, username, unlockedBy, reason string) error {
	if err := s.lockouts.UnlockAccount(ctx, username, unlockedBy, reason); err != nil {
		s.logger.Error("failed to unlock account",
			slog.String("username", username),
			slog.String("unlocked_by", unlockedBy),
			slog.Any("error", err))
		return err
	}

	if err := s.cache.DeletePattern(ctx, fmt.Sprintf("failed_login:%s:*", username)); err != nil {
		s.logger.Warn("failed to invalidate cache after unlock", slog.Any("error", err))
	}
	if err := s.cache.Delete(ctx, s.statusUserKey(username)); err != nil {
		s.logger.Warn("failed to invalidate cache after unlock", slog.Any("error", err))
	}

	s.logger.Info("account unlocked",
		slog.String("username", username),
		slog.String("unlocked_by", unlockedBy))
	s.audit.LogUnlock(username, unlockedBy, reason)

	return nil
}

// GetLockoutHistory returns recent lockout episodes, newest first. Store
// failures yield an empty list, not an error.
func (s *LockoutService) GetLockoutHistory(ctx context.Context, username string, limit int) []*models.AccountLockout {
	if limit <= 0 {
		limit = 10
	}

	lockouts, err := s.lockouts.ListLockouts(ctx, username, limit)
	if err != nil {
		s.logger.Error("failed to load lockout history",
			slog.String("username", username),
			slog.Any("error", err))
		return []*models.AccountLockout{}
	}

	if lockouts == nil {
		lockouts = []*models.AccountLockout{}
	}
	return lockouts
}

// progressiveDuration escalates by offense number: the base duration on the
// first offense, increasing linearly and clamped at the configured ceiling.
func (s *LockoutService) progressiveDuration(priorLockouts int) time.Duration {
	duration := s.config.BaseLockoutDuration * time.Duration(priorLockouts+1)
	if duration > s.config.MaxLockoutDuration {
		duration = s.config.MaxLockoutDuration
	}
	return duration
}

// cacheStatus stores a lockout status under both the IP-scoped and the
// username key, with a TTL bounded by the remaining time until expiry.
// Statuses without a future expiry are never cached: a stale positive must
// not outlive the lockout it describes.
func (s *LockoutService) cacheStatus(ctx context.Context, username, ipAddress string, status *models.LockoutStatus) {
	if status.LockoutExpiresAt == nil {
		return
	}

	ttl := time.Until(*status.LockoutExpiresAt)
	if ttl <= 0 {
		return
	}

	payload, err := json.Marshal(status)
	if err != nil {
		s.logger.Error("failed to encode lockout status", slog.Any("error", err))
		return
	}

	keys := []string{s.statusUserKey(username)}
	if ipAddress != "" {
		keys = append(keys, s.statusIPKey(username, ipAddress))
	}

	for _, key := range keys {
		if err := s.cache.SetWithTTL(ctx, key, string(payload), ttl); err != nil {
			s.logger.Warn("failed to cache lockout status",
				slog.String("key", key),
				slog.Any("error", err))
		}
	}
}

// cachedStatus returns a decoded cache hit, or nil on miss or any cache
// failure. Cache unavailability falls through to the store query.
func (s *LockoutService) cachedStatus(ctx context.Context, key string) *models.LockoutStatus {
	payload, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("lockout cache unavailable, falling back to store", slog.Any("error", err))
		}
		return nil
	}

	var status models.LockoutStatus
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		s.logger.Warn("discarding undecodable cached lockout status", slog.Any("error", err))
		return nil
	}

	return &status
}

func (s *LockoutService) counterKey(username, ipAddress string) string {
	return fmt.Sprintf("failed_login:%s:%s:count", username, ipAddress)
}

func (s *LockoutService) statusIPKey(username, ipAddress string) string {
	return fmt.Sprintf("failed_login:%s:%s", username, ipAddress)
}

func (s *LockoutService) statusUserKey(username string) string {
	return fmt.Sprintf("failed_login:%s", username)
}
